// Package httptransport exposes the engine over the REST conventions the
// generated clients expect: list envelopes with pagination, projected single
// items, and junction sub-resources. It stays thin; all domain behavior
// lives in the engine.
package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"terrane/internal/engine"
	"terrane/internal/filter"
	"terrane/internal/model"
	"terrane/internal/platform/middleware"
	"terrane/internal/registry"
	"terrane/pkg/domainerrors"
	stringsutil "terrane/pkg/platform/strings"
)

type Handler struct {
	engine *engine.Engine
	log    *slog.Logger
}

func NewHandler(eng *engine.Engine, log *slog.Logger) *Handler {
	return &Handler{engine: eng, log: log}
}

// Router builds the resource routes from the registry. Disabled entities are
// simply not mounted, so every verb on them lands on the JSON not-found
// handler below.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(h.log))
	r.Use(middleware.Logger(h.log))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, domainerrors.New(domainerrors.CodeNotFound, "not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, domainerrors.New(domainerrors.CodeNotFound, "not found"))
	})
	for _, ent := range h.engine.Registry().Entities() {
		if ent.Disabled {
			continue
		}
		h.mount(r, ent)
	}
	return r
}

func (h *Handler) mount(r chi.Router, ent *registry.Entity) {
	r.Route("/"+ent.Collection, func(r chi.Router) {
		r.Get("/", h.handleList(ent))
		r.Post("/", h.handleCreate(ent))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet(ent))
			r.Put("/", h.handleUpdate(ent))
			r.Delete("/", h.handleDelete(ent))
			for i := range ent.Relations {
				rel := &ent.Relations[i]
				if rel.Kind != registry.ManyToMany {
					continue
				}
				r.Get("/"+rel.Name, h.handleListAssociations(ent, rel))
				r.Post("/"+rel.Name, h.handleAddAssociations(ent, rel))
				r.Delete("/"+rel.Name, h.handleRemoveAssociations(ent, rel))
			}
		})
	})
}

func (h *Handler) handleList(ent *registry.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseListQuery(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		result, err := h.engine.FindMany(r.Context(), ent.Name, q, nil)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) handleCreate(ent *registry.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := decodeBody(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		created, err := h.engine.Create(r.Context(), ent.Name, input, nil)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, created)
	}
}

func (h *Handler) handleGet(ent *registry.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includes := splitList(r.URL.Query().Get("include"))
		item, err := h.engine.FindByID(r.Context(), ent.Name, chi.URLParam(r, "id"), includes, nil)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, item)
	}
}

func (h *Handler) handleUpdate(ent *registry.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := decodeBody(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		updated, err := h.engine.Update(r.Context(), ent.Name, chi.URLParam(r, "id"), input, nil)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, updated)
	}
}

func (h *Handler) handleDelete(ent *registry.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := h.engine.Delete(r.Context(), ent.Name, chi.URLParam(r, "id"), nil)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, deleted)
	}
}

type associationRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) handleListAssociations(ent *registry.Entity, rel *registry.Relation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.engine.ListAssociations(r.Context(), ent.Name, rel.Name, chi.URLParam(r, "id"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"data": items})
	}
}

func (h *Handler) handleAddAssociations(ent *registry.Entity, rel *registry.Relation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req associationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, r, domainerrors.New(domainerrors.CodeValidation, "invalid request body"))
			return
		}
		if len(req.IDs) == 0 {
			h.writeError(w, r, domainerrors.New(domainerrors.CodeValidation, "ids must not be empty"))
			return
		}
		if err := h.engine.AddAssociation(r.Context(), ent.Name, rel.Name, chi.URLParam(r, "id"), req.IDs, nil); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusNoContent, nil)
	}
}

func (h *Handler) handleRemoveAssociations(ent *registry.Entity, rel *registry.Relation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := splitList(r.URL.Query().Get("ids"))
		if len(ids) == 0 {
			h.writeError(w, r, domainerrors.New(domainerrors.CodeValidation, "ids must not be empty"))
			return
		}
		if err := h.engine.RemoveAssociation(r.Context(), ent.Name, rel.Name, chi.URLParam(r, "id"), ids, nil); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusNoContent, nil)
	}
}

func decodeBody(r *http.Request) (model.Instance, error) {
	var input model.Instance
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeValidation, "invalid request body", err)
	}
	return input, nil
}

func parseListQuery(r *http.Request) (engine.Query, error) {
	values := r.URL.Query()
	q := engine.Query{Include: splitList(values.Get("include"))}
	var err error
	if q.Limit, err = parseIntParam(values.Get("limit"), "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = parseIntParam(values.Get("offset"), "offset"); err != nil {
		return q, err
	}
	q.OrderBy = values.Get("orderBy")
	switch dir := values.Get("orderDirection"); dir {
	case "", "asc":
	case "desc":
		q.Descending = true
	default:
		return q, domainerrors.Newf(domainerrors.CodeValidation, "orderDirection must be asc or desc, got %q", dir)
	}
	if token := values.Get("where"); token != "" {
		expr, err := filter.DecodeToken(token)
		if err != nil {
			return q, domainerrors.Wrap(domainerrors.CodeValidation, err.Error(), err)
		}
		q.Where = expr
	}
	return q, nil
}

func parseIntParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domainerrors.Newf(domainerrors.CodeValidation, "%s must be a non-negative integer", name)
	}
	return n, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return stringsutil.DedupeAndTrim(strings.Split(raw, ","))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	if status == http.StatusNoContent || body == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("encode response", "error", err)
	}
}

// writeError renders the taxonomy: the coded message for client errors, a
// generic body for internal failures, whose detail goes to the log only.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domainerrors.CodeOf(err)
	if code == domainerrors.CodeInternal {
		h.log.Error("request failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	h.writeJSON(w, domainerrors.HTTPStatus(code), map[string]any{"error": domainerrors.Message(err)})
}
