package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/erazemk/porabnik/internal/inventory"
)

type moveRequest struct {
	Quantity int `json:"quantity"`
}

type moveResponse struct {
	NewQuantity      int `json:"newQuantity"`
	ArchivedQuantity int `json:"archivedQuantity"`
}

type moveFunc func(ctx context.Context, p inventory.Principal, id int64, k int) (int, int, error)

// Archive handles POST /api/items/{id}/archive.
func (h *ItemsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.Engine.Archive, "failed to archive units")
}

// Restore handles POST /api/items/{id}/restore.
func (h *ItemsHandler) Restore(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.Engine.Restore, "failed to restore units")
}

func (h *ItemsHandler) move(w http.ResponseWriter, r *http.Request, fn moveFunc, failure string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	quantity, archived, err := fn(r.Context(), principal(r), id, req.Quantity)
	if err != nil {
		engineError(w, h.Logger, err, failure)
		return
	}
	jsonResponse(w, http.StatusOK, moveResponse{NewQuantity: quantity, ArchivedQuantity: archived})
}
