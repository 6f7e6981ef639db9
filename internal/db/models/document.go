package models

import "time"

// Document is one item of a manually ordered collection (investors,
// missions, recommendations, tasks). Data holds the JSON fields.
type Document struct {
	ID         string `gorm:"primaryKey"`
	Collection string `gorm:"index:idx_collection_position"`
	Position   int    `gorm:"index:idx_collection_position"`
	Data       string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
