// Package session keeps the browser session server side. The browser holds
// an opaque random token; the store only sees its sha256.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pysugar/command-center/internal/db/models"
	"github.com/pysugar/command-center/internal/util"
	"gorm.io/gorm"
)

// Cookie names. CookieSession is the only one the server trusts; the other
// two are hints for the UI.
const (
	CookieSession       = "cc_session"
	CookieAccounts      = "cc_accounts"
	CookieActiveAccount = "cc_active_account"
)

// ErrNoSession is returned when the request carries no valid session.
var ErrNoSession = errors.New("session: no active session")

// Manager creates, validates and destroys sessions.
type Manager struct {
	db               *gorm.DB
	ttl              time.Duration
	refreshThreshold time.Duration
	secure           bool
	now              func() time.Time
}

// NewManager creates a Manager. Sessions last days and are extended once
// fewer than refreshDays remain.
func NewManager(db *gorm.DB, days, refreshDays int, secure bool) *Manager {
	if days <= 0 {
		days = 30
	}
	if refreshDays < 0 || refreshDays >= days {
		refreshDays = days / 4
	}
	return &Manager{
		db:               db,
		ttl:              time.Duration(days) * 24 * time.Hour,
		refreshThreshold: time.Duration(refreshDays) * 24 * time.Hour,
		secure:           secure,
		now:              time.Now,
	}
}

// RandomToken returns a lowercase base32 token with 200 bits of entropy.
func RandomToken() (string, error) {
	b := make([]byte, 25)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return strings.ToLower(base32.StdEncoding.EncodeToString(b)), nil
}

// HashToken maps a cookie token to its stored session id.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Current returns the request's session, extending it when it is within
// the refresh threshold. Expired sessions are deleted.
func (m *Manager) Current(r *http.Request) (*models.Session, error) {
	cookie, err := r.Cookie(CookieSession)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}

	var s models.Session
	if err := m.db.WithContext(r.Context()).First(&s, "id = ?", HashToken(cookie.Value)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	now := m.now()
	if !now.Before(s.ExpiresAt) {
		m.deleteSession(r, s.ID)
		return nil, ErrNoSession
	}
	if now.After(s.ExpiresAt.Add(-m.refreshThreshold)) {
		s.ExpiresAt = now.Add(m.ttl)
		if err := m.db.WithContext(r.Context()).Model(&s).Update("expires_at", s.ExpiresAt).Error; err != nil {
			return nil, fmt.Errorf("extend session: %w", err)
		}
	}
	return &s, nil
}

// Ensure returns the current session or starts a new one.
func (m *Manager) Ensure(w http.ResponseWriter, r *http.Request) (*models.Session, error) {
	s, err := m.Current(r)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNoSession) {
		return nil, err
	}
	return m.Create(w, r)
}

// Create starts a new session and sets its cookie.
func (m *Manager) Create(w http.ResponseWriter, r *http.Request) (*models.Session, error) {
	token, err := RandomToken()
	if err != nil {
		return nil, err
	}
	s := &models.Session{
		ID:        HashToken(token),
		ExpiresAt: m.now().Add(m.ttl),
	}
	if err := m.db.WithContext(r.Context()).Create(s).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieSession,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  s.ExpiresAt,
	})
	return s, nil
}

// Destroy deletes the session with its account links and clears all
// session cookies.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, sessionID string) {
	m.deleteSession(r, sessionID)
	m.ClearCookies(w)
}

func (m *Manager) deleteSession(r *http.Request, id string) {
	err := m.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.SessionAccount{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Session{}, "id = ?", id).Error
	})
	if err != nil {
		log.Printf("⚠️ Failed to delete session %s: %v", util.MaskToken(id), err)
	}
}

// SetAccountHints writes the UI-visible account list and active account.
func (m *Manager) SetAccountHints(w http.ResponseWriter, emails []string, active string) {
	if active == "" && len(emails) > 0 {
		active = emails[0]
	}
	m.setHint(w, CookieAccounts, url.QueryEscape(strings.Join(emails, ",")))
	m.setHint(w, CookieActiveAccount, url.QueryEscape(active))
}

// ActiveAccount reads the UI's selected account hint.
func ActiveAccount(r *http.Request) string {
	c, err := r.Cookie(CookieActiveAccount)
	if err != nil {
		return ""
	}
	v, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return v
}

func (m *Manager) setHint(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  m.now().Add(m.ttl),
	})
}

// ClearCookies expires all three session cookies.
func (m *Manager) ClearCookies(w http.ResponseWriter) {
	for _, name := range []string{CookieSession, CookieAccounts, CookieActiveAccount} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: name == CookieSession,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}
