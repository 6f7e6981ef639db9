package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/pysugar/command-center/internal/accounts"
	"github.com/pysugar/command-center/internal/api/handlers"
	authgoogle "github.com/pysugar/command-center/internal/auth/google"
	"github.com/pysugar/command-center/internal/auth/session"
	"github.com/pysugar/command-center/internal/auth/token"
	"github.com/pysugar/command-center/internal/config"
	"github.com/pysugar/command-center/internal/db"
	"github.com/pysugar/command-center/internal/documents"
	"github.com/pysugar/command-center/internal/google"
	"github.com/pysugar/command-center/internal/google/calendar"
	"github.com/pysugar/command-center/internal/google/contacts"
	"github.com/pysugar/command-center/internal/google/drive"
	"github.com/pysugar/command-center/internal/google/gmail"
	"github.com/pysugar/command-center/internal/relationships"
	"github.com/pysugar/command-center/internal/version"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// app holds the long-lived components shared by the server and the
// account commands.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	secret   []byte
	oauth    *oauth2.Config
	sessions *session.Manager
	registry *accounts.Registry
	tokens   *token.Manager
}

func newApp(cfg *config.Config) (*app, error) {
	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	secret, err := db.EnsureSecret(database)
	if err != nil {
		return nil, fmt.Errorf("load signing secret: %w", err)
	}
	oauthCfg := authgoogle.OAuthConfig(cfg.Google, cfg.ExternalURL()+authgoogle.CallbackPath)
	return &app{
		cfg:      cfg,
		db:       database,
		secret:   []byte(secret),
		oauth:    oauthCfg,
		sessions: session.NewManager(database, cfg.Session.Days, cfg.Session.RefreshDays, cfg.Session.SecureCookies),
		registry: accounts.NewRegistry(database),
		tokens:   token.NewManager(database, oauthCfg),
	}, nil
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}

func (a *app) router() http.Handler {
	factory := google.NewFactory(a.tokens)
	var importer *relationships.Importer
	if a.cfg.Discovery.File != "" {
		importer = relationships.NewImporter(a.db, a.cfg.Discovery.File)
	}

	deps := &handlers.Deps{
		Sessions:      a.sessions,
		Registry:      a.registry,
		Tokens:        a.tokens,
		Gmail:         gmail.New(factory),
		Calendar:      calendar.New(factory),
		Contacts:      contacts.New(factory, a.cfg.Fetch.ContactsMaxPages),
		Drive:         drive.New(factory),
		Documents:     documents.NewStore(a.db),
		Relationships: relationships.NewStore(a.db, importer),
		Concurrency:   a.cfg.Fetch.Concurrency,
		MaxResults:    int64(a.cfg.Fetch.MaxResults),
		DemoFallback:  a.cfg.DemoFallback,
	}

	var flow *authgoogle.Flow
	if a.cfg.Google.ClientID != "" {
		flow = &authgoogle.Flow{
			OAuth:     a.oauth,
			Sessions:  a.sessions,
			Registry:  a.registry,
			Secret:    a.secret,
			ReturnURL: a.cfg.ExternalURL(),
		}
	}
	return handlers.NewRouter(deps, a.cfg.AdminPassword, flow)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		if !cfg.DemoFallback {
			return err
		}
		log.Printf("⚠️  %v; serving demo data only", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	addr := cfg.Addr()
	log.Printf("🚀 Command Center %s starting on http://%s", version.Version, addr)
	log.Printf("🔐 Connect an account: %s/api/auth/google", cfg.ExternalURL())
	if cfg.AdminPassword != "" {
		log.Printf("🛡️  Admin authentication enabled")
	}
	if cfg.DemoFallback {
		log.Printf("🎭 Demo fallback enabled")
	}

	if err := http.ListenAndServe(addr, a.router()); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
