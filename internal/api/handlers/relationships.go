package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/command-center/internal/db/models"
)

// ListProjectsHandler imports a pending discovery file, then lists
// projects with their contact counts.
func ListProjectsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := d.Relationships.ListProjects(r.Context())
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"projects": projects,
			"count":    len(projects),
		})
	}
}

// CreateProjectHandler creates a manual project.
func CreateProjectHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p models.Project
		if err := decodeBody(r, &p); err != nil {
			writeErr(w, r, err)
			return
		}
		p.Source = ""
		created, err := d.Relationships.CreateProject(r.Context(), p)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

// DeleteProjectHandler deletes a project with its contacts.
func DeleteProjectHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := d.Relationships.DeleteProject(r.Context(), id); err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
	}
}

// ListProjectContactsHandler lists one project's contacts.
func ListProjectContactsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contacts, err := d.Relationships.ListContacts(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"contacts": contacts,
			"count":    len(contacts),
		})
	}
}

// CreateProjectContactHandler adds a contact to a project.
func CreateProjectContactHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c models.Contact
		if err := decodeBody(r, &c); err != nil {
			writeErr(w, r, err)
			return
		}
		c.Source = ""
		created, err := d.Relationships.CreateContact(r.Context(), chi.URLParam(r, "id"), c)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

// DeleteProjectContactHandler removes a contact from a project.
func DeleteProjectContactHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "contactId")
		if err := d.Relationships.DeleteContact(r.Context(), chi.URLParam(r, "id"), id); err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
	}
}
