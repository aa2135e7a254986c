package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/canvas-studio/engine/internal/api/middleware"
	"github.com/canvas-studio/engine/internal/api/types"
	"github.com/canvas-studio/engine/internal/services"
	"github.com/canvas-studio/engine/internal/store"
	appErr "github.com/canvas-studio/engine/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type CanvasesHandler struct {
	svc      services.CanvasService
	validate *validator.Validate
}

func NewCanvasesHandler(svc services.CanvasService, v *validator.Validate) *CanvasesHandler {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &CanvasesHandler{svc: svc, validate: v}
}

// Routes mounts the canvas endpoints; the caller applies the owner middleware.
func (h *CanvasesHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Put("/", h.Upsert)
	r.Get("/lookup", h.Lookup)
	r.Get("/duplicates", h.Duplicates)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Patch)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/shares", h.Share)
	r.Delete("/{id}/shares/{user}", h.Unshare)
}

func (h *CanvasesHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	owner := middleware.GetOwnerID(r.Context())
	items, total, err := h.svc.ListByOwner(r.Context(), owner, &services.CanvasFilters{Page: page, PageSize: size})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    items,
		Meta:    &types.Meta{RequestID: middleware.GetRequestID(r.Context()), Page: page, PageSize: size, Total: total},
	})
}

func (h *CanvasesHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeErrorStr(w, http.StatusBadRequest, "name is required")
		return
	}
	rec, err := h.svc.Load(r.Context(), store.Query{OwnerID: middleware.GetOwnerID(r.Context()), Name: name})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, r, appErr.NotFound("canvas %q not found", name))
		return
	}
	writeData(w, r, http.StatusOK, rec)
}

func (h *CanvasesHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeErrorStr(w, http.StatusBadRequest, "name is required")
		return
	}
	recs, err := h.svc.ListByOwnerAndName(r.Context(), middleware.GetOwnerID(r.Context()), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeData(w, r, http.StatusOK, recs)
}

func (h *CanvasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), middleware.GetOwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, rec)
}

// Upsert saves a canvas for the requesting owner. The body may omit
// owner_id; a different owner is rejected.
func (h *CanvasesHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var in store.UpsertInput
	if !decodeJSON(w, r, &in) {
		return
	}
	owner := middleware.GetOwnerID(r.Context())
	if in.OwnerID == "" {
		in.OwnerID = owner
	}
	if in.OwnerID != owner {
		writeError(w, r, appErr.Forbidden("owner_id does not match %s", middleware.OwnerHeader))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.svc.Upsert(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, rec)
}

func (h *CanvasesHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var req types.CanvasPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == nil && req.IsPublic == nil {
		writeErrorStr(w, http.StatusBadRequest, "nothing to update")
		return
	}

	owner, id := middleware.GetOwnerID(r.Context()), chi.URLParam(r, "id")
	var rec *store.Record
	var err error
	if req.Name != nil {
		if rec, err = h.svc.Rename(r.Context(), owner, id, *req.Name); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.IsPublic != nil {
		if rec, err = h.svc.SetPublic(r.Context(), owner, id, *req.IsPublic); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeData(w, r, http.StatusOK, rec)
}

func (h *CanvasesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Remove(r.Context(), middleware.GetOwnerID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CanvasesHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req types.ShareRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Share(r.Context(), middleware.GetOwnerID(r.Context()), chi.URLParam(r, "id"), req.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CanvasesHandler) Unshare(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Unshare(r.Context(), middleware.GetOwnerID(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
