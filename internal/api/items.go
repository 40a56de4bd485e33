package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/erazemk/porabnik/internal/imaging"
	"github.com/erazemk/porabnik/internal/inventory"
	"github.com/erazemk/porabnik/internal/model"
)

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	Engine *inventory.Engine
	Logger *zap.Logger
}

type listItemsResponse struct {
	Items []model.Item `json:"items"`
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := inventory.ListQuery{
		Search:    q.Get("search"),
		Model:     q.Get("item_model"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	if v := q.Get("showArchived"); v != "" {
		show, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid showArchived")
			return
		}
		query.ShowArchived = show
	}

	items, err := h.Engine.List(r.Context(), principal(r), query)
	if err != nil {
		engineError(w, h.Logger, err, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, listItemsResponse{Items: items})
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := parseItemForm(w, r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.Engine.Create(r.Context(), principal(r), in)
	if err != nil {
		engineError(w, h.Logger, err, "failed to create item")
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.Engine.Get(r.Context(), principal(r), id)
	if err != nil {
		engineError(w, h.Logger, err, "failed to get item")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	in, err := parseItemForm(w, r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	existing, err := formFilenames(r, fieldExistingImages)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	deleted, err := formFilenames(r, fieldDeletedImages)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.Engine.Update(r.Context(), principal(r), id, inventory.UpdateInput{
		ItemInput:      in,
		ExistingImages: existing,
		DeletedImages:  deleted,
	})
	if err != nil {
		engineError(w, h.Logger, err, "failed to update item")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Image handles GET /api/items/{id}/images/{filename}.
func (h *ItemsHandler) Image(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	filename := r.PathValue("filename")

	rc, err := h.Engine.Image(r.Context(), principal(r), id, filename)
	if err != nil {
		engineError(w, h.Logger, err, "failed to get image")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", imaging.MIMEFromExt(filepath.Ext(filename)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		h.Logger.Warn("streaming image", zap.Int64("item_id", id), zap.String("filename", filename), zap.Error(err))
	}
}
