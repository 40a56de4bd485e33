package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/porabnik/internal/inventory"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			zap.L().Warn("error encoding response", zap.Error(err))
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// engineError maps an inventory error to a response. Store failures are
// logged and reported with the generic message.
func engineError(w http.ResponseWriter, logger *zap.Logger, err error, message string) {
	switch {
	case errors.Is(err, inventory.ErrValidation), errors.Is(err, inventory.ErrQuantityRange):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, inventory.ErrNotFound):
		jsonError(w, http.StatusNotFound, "item not found")
	default:
		var lost *inventory.LostBlobsError
		if errors.As(err, &lost) {
			logger.Error(message, zap.Strings("lost_images", lost.Filenames), zap.Error(err))
		} else {
			logger.Error(message, zap.Error(err))
		}
		jsonError(w, http.StatusInternalServerError, message)
	}
}
