package api

import (
	"database/sql"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/erazemk/porabnik/internal/model"
	"github.com/erazemk/porabnik/internal/store"
)

// OfficesHandler handles office endpoints (admin only).
type OfficesHandler struct {
	DB     *sql.DB
	Logger *zap.Logger
}

type createOfficeRequest struct {
	Name string `json:"name"`
}

// List handles GET /api/offices.
func (h *OfficesHandler) List(w http.ResponseWriter, r *http.Request) {
	offices, err := store.ListOffices(r.Context(), h.DB)
	if err != nil {
		h.Logger.Error("failed to list offices", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to list offices")
		return
	}
	if offices == nil {
		offices = []model.Office{}
	}
	jsonResponse(w, http.StatusOK, offices)
}

// Create handles POST /api/offices.
func (h *OfficesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOfficeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	office, err := store.CreateOffice(r.Context(), h.DB, name)
	if err != nil {
		jsonError(w, http.StatusConflict, "office already exists")
		return
	}

	h.Logger.Info("office created", zap.String("user", GetClaims(r.Context()).Username), zap.String("office", name))
	jsonResponse(w, http.StatusCreated, office)
}
