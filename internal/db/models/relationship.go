package models

import "time"

// Project is a tracked relationship-intel project.
type Project struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex" json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// Contact belongs to a Project. Imports upsert on (ProjectID, Email) when
// Email is set.
type Contact struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	ProjectID string    `gorm:"index:idx_project_email" json:"project_id"`
	Name      string    `json:"name"`
	Email     string    `gorm:"index:idx_project_email" json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	Company   string    `json:"company,omitempty"`
	LinkedIn  string    `json:"linkedin,omitempty"`
	Notes     string    `gorm:"type:text" json:"notes,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
