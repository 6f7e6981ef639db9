package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/command-center/internal/documents"
	"github.com/pysugar/command-center/internal/logging"
)

// ListDocumentsHandler lists a collection in position order.
func ListDocumentsHandler(d *Deps, collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := d.Documents.List(r.Context(), collection)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// CreateDocumentHandler appends a document to a collection.
func CreateDocumentHandler(d *Deps, collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if err := decodeBody(r, &fields); err != nil {
			writeErr(w, r, err)
			return
		}
		item, err := d.Documents.Create(r.Context(), collection, fields)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		log.Printf("%s📝 Created %s/%v", logging.Prefix(r.Context()), collection, item["id"])
		writeJSON(w, http.StatusCreated, item)
	}
}

// UpdateDocumentHandler merges the body into a document.
func UpdateDocumentHandler(d *Deps, collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if err := decodeBody(r, &fields); err != nil {
			writeErr(w, r, err)
			return
		}
		item, err := d.Documents.Update(r.Context(), collection, chi.URLParam(r, "id"), fields)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// DeleteDocumentHandler deletes a document and compacts positions.
func DeleteDocumentHandler(d *Deps, collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := d.Documents.Delete(r.Context(), collection, id); err != nil {
			writeErr(w, r, err)
			return
		}
		log.Printf("%s🗑️ Deleted %s/%s", logging.Prefix(r.Context()), collection, id)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
	}
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

// ReorderDocumentsHandler moves the listed ids to the front in the given
// order and returns the whole collection.
func ReorderDocumentsHandler(d *Deps, collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reorderRequest
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, r, err)
			return
		}
		if len(req.IDs) == 0 {
			writeErr(w, r, errBadRequestf("ids are required"))
			return
		}
		items, err := d.Documents.Reorder(r.Context(), collection, req.IDs)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// documentRoutes mounts the CRUD routes of one collection on r.
func documentRoutes(r chi.Router, d *Deps, collection string) {
	r.Get("/", ListDocumentsHandler(d, collection))
	r.Post("/", CreateDocumentHandler(d, collection))
	r.Post("/reorder", ReorderDocumentsHandler(d, collection))
	r.Patch("/{id}", UpdateDocumentHandler(d, collection))
	r.Delete("/{id}", DeleteDocumentHandler(d, collection))
}

// collectionPaths lists every mounted path with the collection it serves.
func collectionPaths() map[string]string {
	paths := make(map[string]string, len(documents.Collections)+1)
	for name := range documents.Collections {
		paths[name] = name
	}
	paths["mission"] = "missions"
	return paths
}
