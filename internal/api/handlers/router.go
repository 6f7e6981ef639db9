package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/command-center/internal/api/middleware"
	authgoogle "github.com/pysugar/command-center/internal/auth/google"
	"github.com/pysugar/command-center/internal/logging"
)

// NewRouter mounts every route. The OAuth round trip stays outside admin
// auth since its state is signed and bound to the session. flow may be
// nil when Google credentials are not configured.
func NewRouter(d *Deps, adminPassword string, flow *authgoogle.Flow) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	if flow != nil {
		r.Get("/api/auth/google", authgoogle.HandleLogin(flow))
		r.Get(authgoogle.CallbackPath, authgoogle.HandleCallback(flow))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AdminAuth(adminPassword))

		r.Get("/version", VersionHandler())

		r.Route("/auth", func(r chi.Router) {
			r.Get("/status", AuthStatusHandler(d))
			r.Get("/accounts", AccountsHandler(d))
			r.Delete("/accounts", RemoveAccountHandler(d))
			r.Post("/refresh", RefreshHandler(d))
		})

		r.Route("/gmail", func(r chi.Router) {
			r.Get("/", GmailInboxHandler(d))
			r.Get("/messages", GmailInboxHandler(d))
			r.Get("/messages/{id}", GmailMessageHandler(d))
			r.Post("/actions", GmailActionHandler(d))
			r.Post("/send", GmailSendHandler(d))
		})

		r.Route("/calendar/events", func(r chi.Router) {
			r.Get("/", CalendarEventsHandler(d))
			r.Post("/", CreateEventHandler(d))
			r.Patch("/{id}", PatchEventHandler(d))
			r.Delete("/{id}", DeleteEventHandler(d))
		})

		r.Get("/contacts", ContactsHandler(d))
		r.Get("/drive/files", DriveFilesHandler(d))
		r.Get("/search", SearchHandler(d))

		for path, collection := range collectionPaths() {
			r.Route("/"+path, func(r chi.Router) {
				documentRoutes(r, d, collection)
			})
		}

		r.Route("/relationships/projects", func(r chi.Router) {
			r.Get("/", ListProjectsHandler(d))
			r.Post("/", CreateProjectHandler(d))
			r.Delete("/{id}", DeleteProjectHandler(d))
			r.Get("/{id}/contacts", ListProjectContactsHandler(d))
			r.Post("/{id}/contacts", CreateProjectContactHandler(d))
			r.Delete("/{id}/contacts/{contactId}", DeleteProjectContactHandler(d))
		})
	})

	return r
}
