package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pysugar/command-center/internal/db/models"
	"github.com/pysugar/command-center/internal/util"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

var (
	// ErrNotFound means no account is stored under the key.
	ErrNotFound = errors.New("token: account not found")
	// ErrNoRefreshToken means the access token expired and nothing can renew it.
	ErrNoRefreshToken = errors.New("token: expired and no refresh token")
	// ErrReauthRequired means the user has to go through the consent flow again.
	ErrReauthRequired = errors.New("token: re-authentication required")
	// ErrRefreshFailed wraps transient refresh failures.
	ErrRefreshFailed = errors.New("token: refresh failed")
)

// Record is the stored token state of one account. A zero ExpiresAt means
// the provider gave no expiry and the access token is treated as valid.
type Record struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token must be refreshed at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Resolve returns a record holding a valid access token. A refresh request
// is sent only when the stored token has expired; refreshed reports whether
// that happened.
func Resolve(ctx context.Context, cfg *oauth2.Config, rec Record, now time.Time) (out Record, refreshed bool, err error) {
	if !rec.Expired(now) {
		return rec, false, nil
	}
	if rec.RefreshToken == "" {
		return rec, false, ErrNoRefreshToken
	}
	out, err = refresh(ctx, cfg, rec)
	if err != nil {
		return rec, false, err
	}
	return out, true, nil
}

func refresh(ctx context.Context, cfg *oauth2.Config, rec Record) (Record, error) {
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	if err != nil {
		if isPermanentRefreshError(err) {
			return rec, fmt.Errorf("%w: %w", ErrReauthRequired, err)
		}
		return rec, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	out := Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if tok.RefreshToken != "" {
		out.RefreshToken = tok.RefreshToken
	}
	return out, nil
}

// Manager resolves access tokens for stored accounts. Refreshes of the same
// account are serialised in process, and the write back is conditional on
// the previous access token so concurrent processes cannot clobber each
// other.
type Manager struct {
	db    *gorm.DB
	oauth *oauth2.Config
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a token manager refreshing through cfg.
func NewManager(db *gorm.DB, cfg *oauth2.Config) *Manager {
	return &Manager{
		db:    db,
		oauth: cfg,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lock(key string) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (m *Manager) load(ctx context.Context, key string) (*models.Account, error) {
	var acc models.Account
	if err := m.db.WithContext(ctx).First(&acc, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return &acc, nil
}

// AccessToken returns a valid access token for the account key.
func (m *Manager) AccessToken(ctx context.Context, key string) (string, error) {
	tok, err := m.Token(ctx, key)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Token returns the account's current token, refreshing it when expired.
func (m *Manager) Token(ctx context.Context, key string) (*oauth2.Token, error) {
	acc, err := m.load(ctx, key)
	if err != nil {
		return nil, err
	}
	rec := recordOf(acc)
	if !rec.Expired(m.now()) {
		return rec.oauth2(), nil
	}

	unlock := m.lock(key)
	defer unlock()

	// another goroutine may have refreshed while we waited
	if acc, err = m.load(ctx, key); err != nil {
		return nil, err
	}
	if m.expired(acc) && acc.Status == models.AccountReauthRequired {
		return nil, fmt.Errorf("%w: %s", ErrReauthRequired, acc.Email)
	}
	return m.resolveLocked(ctx, acc, false)
}

// Refresh forces a refresh of the account's token regardless of expiry.
func (m *Manager) Refresh(ctx context.Context, key string) (*oauth2.Token, error) {
	unlock := m.lock(key)
	defer unlock()

	acc, err := m.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return m.resolveLocked(ctx, acc, true)
}

func (m *Manager) expired(acc *models.Account) bool {
	return recordOf(acc).Expired(m.now())
}

// resolveLocked runs Resolve for acc and stores a refreshed token. force
// treats the stored token as expired. The caller holds the account lock.
func (m *Manager) resolveLocked(ctx context.Context, acc *models.Account, force bool) (*oauth2.Token, error) {
	now := m.now()
	prev := recordOf(acc)
	in := prev
	if force {
		in.ExpiresAt = now
	} else if prev.Expired(now) {
		log.Printf("⚠️ Token for %s is expired, refreshing...", acc.Email)
	}

	next, refreshed, err := Resolve(ctx, m.oauth, in, now)
	if err != nil {
		log.Printf("❌ Refresh token failed for %s: %v", acc.Email, err)
		if errors.Is(err, ErrNoRefreshToken) && !prev.Expired(now) {
			// the stored access token still works until it expires
			return nil, err
		}
		if errors.Is(err, ErrReauthRequired) || errors.Is(err, ErrNoRefreshToken) {
			m.markReauth(ctx, acc, err)
			log.Printf("🔒 Account %s marked as reauth_required. Please re-login.", acc.Email)
			if errors.Is(err, ErrNoRefreshToken) {
				return nil, fmt.Errorf("%w: %w", ErrReauthRequired, err)
			}
		}
		return nil, err
	}
	if !refreshed {
		return prev.oauth2(), nil
	}

	res := m.db.WithContext(ctx).Model(&models.Account{}).
		Where("key = ? AND access_token = ?", acc.Key, prev.AccessToken).
		Updates(map[string]any{
			"access_token":  next.AccessToken,
			"refresh_token": next.RefreshToken,
			"expires_at":    next.ExpiresAt,
			"status":        models.AccountActive,
			"last_error":    "",
		})
	if res.Error != nil {
		return nil, fmt.Errorf("save refreshed token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// lost the race to another writer; their token is just as good
		winner, err := m.load(ctx, acc.Key)
		if err != nil {
			return nil, err
		}
		log.Printf("🔁 Token for %s was refreshed elsewhere, using stored token", acc.Email)
		return recordOf(winner).oauth2(), nil
	}
	if next.RefreshToken != prev.RefreshToken {
		log.Printf("🔄 Rotating refresh token for: %s", acc.Email)
	}
	log.Printf("✅ Refreshed token for: %s (%s, expires: %s)", acc.Email, util.MaskToken(next.AccessToken), next.ExpiresAt.Format(time.RFC3339))
	return next.oauth2(), nil
}

func (m *Manager) markReauth(ctx context.Context, acc *models.Account, cause error) {
	err := m.db.WithContext(ctx).Model(&models.Account{}).
		Where("key = ?", acc.Key).
		Updates(map[string]any{
			"status":     models.AccountReauthRequired,
			"last_error": util.TruncateLog(cause.Error(), 200),
		}).Error
	if err != nil {
		log.Printf("⚠️ Failed to mark %s as reauth_required: %v", acc.Email, err)
	}
}

// RefreshResult is the outcome of refreshing one account.
type RefreshResult struct {
	Key       string    `json:"key"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// RefreshAll forces a refresh of every listed account and reports each
// outcome. One failing account does not stop the others. Accounts without
// a refresh token keep their access token while it is still valid.
func (m *Manager) RefreshAll(ctx context.Context, keys []string) []RefreshResult {
	results := make([]RefreshResult, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			r := RefreshResult{Key: key}
			if acc, err := m.load(ctx, key); err == nil {
				r.Email = acc.Email
				if acc.RefreshToken == "" && !m.expired(acc) {
					log.Printf("ℹ️ %s has no refresh token, keeping its access token", acc.Email)
					r.ExpiresAt = acc.ExpiresAt
					results[i] = r
					return
				}
			}
			tok, err := m.Refresh(ctx, key)
			if err != nil {
				r.Error = err.Error()
			} else {
				r.ExpiresAt = tok.Expiry
			}
			results[i] = r
		}(i, key)
	}
	wg.Wait()
	log.Printf("🔄 Refreshed %d accounts", len(keys))
	return results
}

func recordOf(acc *models.Account) Record {
	return Record{
		AccessToken:  acc.AccessToken,
		RefreshToken: acc.RefreshToken,
		ExpiresAt:    acc.ExpiresAt,
	}
}

func (r Record) oauth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: r.RefreshToken,
		Expiry:       r.ExpiresAt,
	}
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
