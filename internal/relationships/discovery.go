package relationships

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pysugar/command-center/internal/db"
	"github.com/pysugar/command-center/internal/db/models"
	"gorm.io/gorm"
)

// KeyDiscoveryHash is the configs row holding the hash of the last
// imported discovery file.
const KeyDiscoveryHash = "relationships.discovery_hash"

// ImportedSuffix is appended to the discovery file after a successful import.
const ImportedSuffix = ".imported"

// DiscoveryFile is the document an external job writes.
type DiscoveryFile struct {
	GeneratedAt string              `json:"generated_at,omitempty"`
	Projects    []DiscoveredProject `json:"projects"`
}

// DiscoveredProject is one project and the contacts found for it.
type DiscoveredProject struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Status      string              `json:"status,omitempty"`
	Contacts    []DiscoveredContact `json:"contacts"`
}

// DiscoveredContact is a person found for a project.
type DiscoveredContact struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	Company  string `json:"company,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// ImportResult counts what an import touched.
type ImportResult struct {
	Projects int `json:"projects"`
	Contacts int `json:"contacts"`
	Skipped  int `json:"skipped"`
}

// Importer merges a discovery file into the store.
type Importer struct {
	db   *gorm.DB
	path string
	mu   sync.Mutex
}

// NewImporter creates an Importer for the file at path.
func NewImporter(db *gorm.DB, path string) *Importer {
	return &Importer{db: db, path: path}
}

// ImportIfChanged imports the discovery file when it exists and differs
// from the last import, then renames it with ImportedSuffix. A missing
// file is not an error and returns nil.
func (im *Importer) ImportIfChanged(ctx context.Context) (*ImportResult, error) {
	if im.path == "" {
		return nil, nil
	}
	im.mu.Lock()
	defer im.mu.Unlock()

	raw, err := os.ReadFile(im.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read discovery file: %w", err)
	}
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	if last, err := db.GetConfig(im.db.WithContext(ctx), KeyDiscoveryHash); err == nil && last == hash {
		im.archive()
		return nil, nil
	}

	var file DiscoveryFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse discovery file: %w", err)
	}

	var res ImportResult
	err = im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dp := range file.Projects {
			name := strings.TrimSpace(dp.Name)
			if name == "" {
				res.Skipped++
				continue
			}
			p, err := upsertProject(tx, name, dp)
			if err != nil {
				return err
			}
			res.Projects++
			for _, dc := range dp.Contacts {
				if strings.TrimSpace(dc.Name) == "" && strings.TrimSpace(dc.Email) == "" {
					res.Skipped++
					continue
				}
				if err := upsertContact(tx, p.ID, dc); err != nil {
					return err
				}
				res.Contacts++
			}
		}
		return db.SetConfig(tx, KeyDiscoveryHash, hash)
	})
	if err != nil {
		return nil, fmt.Errorf("import discovery file: %w", err)
	}

	log.Printf("🔍 Discovery: imported %d projects and %d contacts from %s", res.Projects, res.Contacts, im.path)
	im.archive()
	return &res, nil
}

func (im *Importer) archive() {
	if err := os.Rename(im.path, im.path+ImportedSuffix); err != nil {
		log.Printf("⚠️ Failed to archive discovery file %s: %v", im.path, err)
	}
}

func upsertProject(tx *gorm.DB, name string, dp DiscoveredProject) (*models.Project, error) {
	var p models.Project
	err := tx.First(&p, "name = ?", name).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		p = models.Project{
			ID:          uuid.NewString(),
			Name:        name,
			Description: dp.Description,
			Status:      dp.Status,
			Source:      SourceDiscovery,
		}
		if p.Status == "" {
			p.Status = "active"
		}
		return &p, tx.Create(&p).Error
	case err != nil:
		return nil, err
	}
	if dp.Description != "" {
		p.Description = dp.Description
	}
	if dp.Status != "" {
		p.Status = dp.Status
	}
	return &p, tx.Save(&p).Error
}

func upsertContact(tx *gorm.DB, projectID string, dc DiscoveredContact) error {
	email := strings.ToLower(strings.TrimSpace(dc.Email))
	name := strings.TrimSpace(dc.Name)
	if name == "" {
		name = email
	}

	var c models.Contact
	q := tx.Where("project_id = ?", projectID)
	if email != "" {
		q = q.Where("email = ?", email)
	} else {
		q = q.Where("email = '' AND name = ?", name)
	}
	err := q.First(&c).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c = models.Contact{ID: uuid.NewString(), ProjectID: projectID, Email: email, Source: SourceDiscovery}
	case err != nil:
		return err
	}

	c.Name = name
	setIf(&c.Role, dc.Role)
	setIf(&c.Company, dc.Company)
	setIf(&c.LinkedIn, dc.LinkedIn)
	setIf(&c.Notes, dc.Notes)
	return tx.Save(&c).Error
}

func setIf(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
