// Package documents keeps the small, manually ordered lists on the
// dashboard (investors, missions, recommendations, tasks) as JSON
// documents.
package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/pysugar/command-center/internal/db/models"
	"gorm.io/gorm"
)

var (
	ErrUnknownCollection = errors.New("documents: unknown collection")
	ErrNotFound          = errors.New("documents: not found")
	ErrInvalid           = errors.New("documents: invalid document")
)

// Collections maps each collection to its required title field.
var Collections = map[string]string{
	"investors":       "name",
	"missions":        "title",
	"recommendations": "title",
	"tasks":           "title",
}

// aliases accepted in routes.
var aliases = map[string]string{
	"mission": "missions",
}

// reserved keys are owned by the store and never read from input.
var reserved = []string{"id", "position", "createdAt", "updatedAt", "collection"}

// Resolve returns the canonical collection name.
func Resolve(name string) (string, error) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	if _, ok := Collections[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return name, nil
}

// Item is a document as returned to clients: its fields plus id,
// position and epoch-millisecond timestamps.
type Item map[string]any

// Store persists documents through gorm.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// List returns a collection in position order.
func (s *Store) List(ctx context.Context, collection string) ([]Item, error) {
	coll, err := Resolve(collection)
	if err != nil {
		return nil, err
	}
	var docs []models.Document
	if err := s.db.WithContext(ctx).Where("collection = ?", coll).Order("position, created_at").Find(&docs).Error; err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(docs))
	for i := range docs {
		it, err := toItem(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// Create appends a document to the end of the collection.
func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (Item, error) {
	coll, err := Resolve(collection)
	if err != nil {
		return nil, err
	}
	title := Collections[coll]
	if v, ok := fields[title].(string); !ok || strings.TrimSpace(v) == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalid, title)
	}
	data, err := encode(fields)
	if err != nil {
		return nil, err
	}

	doc := models.Document{ID: uuid.NewString(), Collection: coll, Data: data}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var next int
		if err := tx.Model(&models.Document{}).
			Where("collection = ?", coll).
			Select("COALESCE(MAX(position), -1) + 1").
			Scan(&next).Error; err != nil {
			return err
		}
		doc.Position = next
		return tx.Create(&doc).Error
	})
	if err != nil {
		return nil, err
	}
	return toItem(&doc)
}

// Update merges fields into the document. A null value deletes a field.
// If fields carries a numeric position the document is moved there.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) (Item, error) {
	coll, err := Resolve(collection)
	if err != nil {
		return nil, err
	}
	title := Collections[coll]
	if v, ok := fields[title]; ok {
		if str, _ := v.(string); strings.TrimSpace(str) == "" {
			return nil, fmt.Errorf("%w: %s must be a non-empty string", ErrInvalid, title)
		}
	}
	move, hasMove := position(fields)

	var doc models.Document
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := load(tx, coll, id, &doc); err != nil {
			return err
		}
		current := map[string]any{}
		if err := json.Unmarshal([]byte(doc.Data), &current); err != nil {
			return fmt.Errorf("decode document %s: %w", id, err)
		}
		for k, v := range fields {
			if isReserved(k) {
				continue
			}
			if v == nil {
				delete(current, k)
				continue
			}
			current[k] = v
		}
		data, err := encode(current)
		if err != nil {
			return err
		}
		doc.Data = data
		if err := tx.Save(&doc).Error; err != nil {
			return err
		}
		if !hasMove {
			return nil
		}
		ids, err := orderedIDs(tx, coll)
		if err != nil {
			return err
		}
		ids = moveID(ids, id, move)
		if err := writePositions(tx, coll, ids); err != nil {
			return err
		}
		return load(tx, coll, id, &doc)
	})
	if err != nil {
		return nil, err
	}
	return toItem(&doc)
}

// Delete removes a document and closes the gap in positions.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	coll, err := Resolve(collection)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("collection = ? AND id = ?", coll, id).Delete(&models.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, coll, id)
		}
		ids, err := orderedIDs(tx, coll)
		if err != nil {
			return err
		}
		return writePositions(tx, coll, ids)
	})
}

// Reorder puts the listed ids first, in the given order; documents not
// listed follow in their current order. Unknown ids are rejected.
func (s *Store) Reorder(ctx context.Context, collection string, ids []string) ([]Item, error) {
	coll, err := Resolve(collection)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := orderedIDs(tx, coll)
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(current))
		for _, id := range current {
			known[id] = true
		}
		seen := make(map[string]bool, len(ids))
		order := make([]string, 0, len(current))
		for _, id := range ids {
			if !known[id] {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, coll, id)
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			order = append(order, id)
		}
		for _, id := range current {
			if !seen[id] {
				order = append(order, id)
			}
		}
		return writePositions(tx, coll, order)
	})
	if err != nil {
		return nil, err
	}
	return s.List(ctx, coll)
}

func load(tx *gorm.DB, coll, id string, doc *models.Document) error {
	err := tx.Where("collection = ? AND id = ?", coll, id).First(doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, coll, id)
	}
	return err
}

func orderedIDs(tx *gorm.DB, coll string) ([]string, error) {
	var ids []string
	err := tx.Model(&models.Document{}).
		Where("collection = ?", coll).
		Order("position, created_at").
		Pluck("id", &ids).Error
	return ids, err
}

func writePositions(tx *gorm.DB, coll string, ids []string) error {
	for i, id := range ids {
		if err := tx.Model(&models.Document{}).
			Where("collection = ? AND id = ?", coll, id).
			UpdateColumn("position", i).Error; err != nil {
			return err
		}
	}
	return nil
}

func moveID(ids []string, id string, to int) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if to < 0 {
		to = 0
	}
	if to > len(out) {
		to = len(out)
	}
	out = append(out, "")
	copy(out[to+1:], out[to:])
	out[to] = id
	return out
}

func position(fields map[string]any) (int, bool) {
	f, ok := fields["position"].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func isReserved(k string) bool {
	for _, r := range reserved {
		if k == r {
			return true
		}
	}
	return false
}

func encode(fields map[string]any) (string, error) {
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if !isReserved(k) {
			clean[k] = v
		}
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return string(b), nil
}

func toItem(doc *models.Document) (Item, error) {
	it := Item{}
	if doc.Data != "" {
		if err := json.Unmarshal([]byte(doc.Data), &it); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", doc.ID, err)
		}
	}
	it["id"] = doc.ID
	it["position"] = doc.Position
	it["createdAt"] = doc.CreatedAt.UnixMilli()
	it["updatedAt"] = doc.UpdatedAt.UnixMilli()
	return it, nil
}
