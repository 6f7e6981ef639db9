// Package accounts is the registry of connected Google accounts and the
// browser sessions they are linked to.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/pysugar/command-center/internal/db/models"
	"github.com/pysugar/command-center/internal/util"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound     = errors.New("accounts: account not found")
	ErrInvalidEmail = errors.New("accounts: invalid email")
	// ErrKeyCollision means a different email already owns the sanitized key.
	ErrKeyCollision = errors.New("accounts: sanitized key collision")
)

// SanitizeKey strips every non-alphanumeric character from email.
func SanitizeKey(email string) string {
	var b strings.Builder
	b.Grow(len(email))
	for _, c := range email {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Profile is the identity Google reports for a token.
type Profile struct {
	Email string
	Name  string
}

// Registry stores accounts and their session links.
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a Registry.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Connect upserts the account for p and links it to sessionID. A missing
// refresh token in tok keeps the stored one. Connecting lifts a blacklist
// entry for the email.
func (r *Registry) Connect(ctx context.Context, sessionID string, p Profile, tok *oauth2.Token, scopes string) (*models.Account, error) {
	email := normalizeEmail(p.Email)
	key := SanitizeKey(email)
	if email == "" || key == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, p.Email)
	}

	var acc models.Account
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&acc, "key = ?", key).Error
		switch {
		case err == nil:
			if acc.Email != email {
				return fmt.Errorf("%w: %s and %s both map to %s", ErrKeyCollision, acc.Email, email, key)
			}
			acc.AccessToken = tok.AccessToken
			acc.ExpiresAt = tok.Expiry
			if tok.RefreshToken != "" {
				acc.RefreshToken = tok.RefreshToken
			}
			if p.Name != "" {
				acc.Name = p.Name
			}
			acc.Scopes = scopes
			acc.Status = models.AccountActive
			acc.LastError = ""
			if err := tx.Save(&acc).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			acc = models.Account{
				Key:          key,
				Email:        email,
				Name:         p.Name,
				AccessToken:  tok.AccessToken,
				RefreshToken: tok.RefreshToken,
				ExpiresAt:    tok.Expiry,
				Status:       models.AccountActive,
				Scopes:       scopes,
			}
			if err := tx.Create(&acc).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if err := tx.Delete(&models.BlacklistedAccount{}, "email = ?", email).Error; err != nil {
			return err
		}
		if sessionID == "" {
			return nil
		}
		return link(tx, sessionID, key)
	})
	if err != nil {
		return nil, err
	}
	if acc.RefreshToken == "" {
		log.Printf("⚠️ Account %s has no refresh token; it will need re-consent when the access token expires", acc.Email)
	}
	log.Printf("✅ Connected account %s (%s)", acc.Email, util.MaskToken(acc.AccessToken))
	return &acc, nil
}

func link(tx *gorm.DB, sessionID, key string) error {
	var next int
	if err := tx.Model(&models.SessionAccount{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(position), -1) + 1").
		Scan(&next).Error; err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.SessionAccount{
		SessionID:  sessionID,
		AccountKey: key,
		Position:   next,
	}).Error
}

// List returns the accounts linked to sessionID in connection order.
func (r *Registry) List(ctx context.Context, sessionID string) ([]models.Account, error) {
	var list []models.Account
	err := r.db.WithContext(ctx).
		Joins("JOIN session_accounts ON session_accounts.account_key = accounts.key").
		Where("session_accounts.session_id = ?", sessionID).
		Order("session_accounts.position").
		Find(&list).Error
	return list, err
}

// ListAll returns every stored account.
func (r *Registry) ListAll(ctx context.Context) ([]models.Account, error) {
	var list []models.Account
	err := r.db.WithContext(ctx).Order("email").Find(&list).Error
	return list, err
}

// Emails returns the emails linked to sessionID in connection order.
func (r *Registry) Emails(ctx context.Context, sessionID string) ([]string, error) {
	list, err := r.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	emails := make([]string, len(list))
	for i, a := range list {
		emails[i] = a.Email
	}
	return emails, nil
}

// Get returns the account for email if it is linked to sessionID.
func (r *Registry) Get(ctx context.Context, sessionID, email string) (*models.Account, error) {
	email = normalizeEmail(email)
	var acc models.Account
	err := r.db.WithContext(ctx).
		Joins("JOIN session_accounts ON session_accounts.account_key = accounts.key").
		Where("session_accounts.session_id = ? AND accounts.email = ?", sessionID, email).
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// Remove deletes the account's token record and every session link to it
// and blacklists the email, all in one transaction. It returns the emails
// still linked to sessionID.
func (r *Registry) Remove(ctx context.Context, sessionID, email string) ([]string, error) {
	email = normalizeEmail(email)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc models.Account
		if err := tx.First(&acc, "email = ?", email).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, email)
			}
			return err
		}
		if err := tx.Where("account_key = ?", acc.Key).Delete(&models.SessionAccount{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&acc).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&models.BlacklistedAccount{
			Email:  email,
			Reason: "disconnected",
		}).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🗑️ Removed account %s", email)
	if sessionID == "" {
		return nil, nil
	}
	return r.Emails(ctx, sessionID)
}

// IsBlacklisted reports whether email was disconnected and not reconnected.
func (r *Registry) IsBlacklisted(ctx context.Context, email string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.BlacklistedAccount{}).
		Where("email = ?", normalizeEmail(email)).
		Count(&n).Error
	return n > 0, err
}
