// Package relationships tracks projects and the people attached to them.
// An external agent job can drop a discovery file that is merged in on the
// next listing.
package relationships

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/pysugar/command-center/internal/db/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("relationships: not found")
	ErrInvalid   = errors.New("relationships: invalid input")
	ErrDuplicate = errors.New("relationships: project already exists")
)

// Sources recorded on rows.
const (
	SourceManual    = "manual"
	SourceDiscovery = "discovery"
)

// ProjectView is a project with its contact count.
type ProjectView struct {
	models.Project
	ContactCount int64 `json:"contact_count"`
}

// Store persists projects and contacts.
type Store struct {
	db       *gorm.DB
	importer *Importer
}

// NewStore creates a Store. importer may be nil.
func NewStore(db *gorm.DB, importer *Importer) *Store {
	return &Store{db: db, importer: importer}
}

// ListProjects imports a pending discovery file, then returns every
// project by name.
func (s *Store) ListProjects(ctx context.Context) ([]ProjectView, error) {
	if s.importer != nil {
		if _, err := s.importer.ImportIfChanged(ctx); err != nil {
			log.Printf("⚠️ Relationship discovery import failed: %v", err)
		}
	}

	var projects []models.Project
	if err := s.db.WithContext(ctx).Order("name").Find(&projects).Error; err != nil {
		return nil, err
	}
	type count struct {
		ProjectID string
		N         int64
	}
	var counts []count
	if err := s.db.WithContext(ctx).Model(&models.Contact{}).
		Select("project_id, COUNT(*) AS n").
		Group("project_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	byProject := make(map[string]int64, len(counts))
	for _, c := range counts {
		byProject[c.ProjectID] = c.N
	}

	out := make([]ProjectView, len(projects))
	for i, p := range projects {
		out[i] = ProjectView{Project: p, ContactCount: byProject[p.ID]}
	}
	return out, nil
}

// CreateProject stores a new manual project. Names are unique.
func (s *Store) CreateProject(ctx context.Context, p models.Project) (*models.Project, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Where("name = ?", p.Name).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, p.Name)
	}
	p.ID = uuid.NewString()
	if p.Status == "" {
		p.Status = "active"
	}
	if p.Source == "" {
		p.Source = SourceManual
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProject removes a project and all of its contacts.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&models.Contact{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Project{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: project %s", ErrNotFound, id)
		}
		return nil
	})
}

func (s *Store) project(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return &p, err
}

// ListContacts returns a project's contacts by name.
func (s *Store) ListContacts(ctx context.Context, projectID string) ([]models.Contact, error) {
	if _, err := s.project(ctx, projectID); err != nil {
		return nil, err
	}
	contacts := []models.Contact{}
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("name").Find(&contacts).Error
	return contacts, err
}

// CreateContact adds a contact to a project.
func (s *Store) CreateContact(ctx context.Context, projectID string, c models.Contact) (*models.Contact, error) {
	if _, err := s.project(ctx, projectID); err != nil {
		return nil, err
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	c.ID = uuid.NewString()
	c.ProjectID = projectID
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.Source == "" {
		c.Source = SourceManual
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteContact removes one contact from a project.
func (s *Store) DeleteContact(ctx context.Context, projectID, contactID string) error {
	res := s.db.WithContext(ctx).Where("project_id = ? AND id = ?", projectID, contactID).Delete(&models.Contact{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: contact %s", ErrNotFound, contactID)
	}
	return nil
}
