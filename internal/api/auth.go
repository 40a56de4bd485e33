package api

import (
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/porabnik/internal/auth"
	"github.com/erazemk/porabnik/internal/model"
	"github.com/erazemk/porabnik/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	DB        *sql.DB
	JWTSecret string
	Logger    *zap.Logger
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := store.GetUserByUsername(r.Context(), h.DB, req.Username)
	if err != nil {
		h.Logger.Error("login lookup failed", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ok, err := auth.CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		h.Logger.Error("checking password", zap.String("username", req.Username), zap.Error(err))
	}
	if !ok {
		h.Logger.Warn("login failed", zap.String("username", req.Username), zap.String("remote", r.RemoteAddr))
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, user.ID, user.Username, user.Role)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	h.Logger.Info("user logged in", zap.String("user", user.Username), zap.String("role", user.Role))
	jsonResponse(w, http.StatusOK, loginResponse{Token: token})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, "current and new password required")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil || user == nil || user.DeletedAt != nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if ok, _ := auth.CheckPassword(user.PasswordHash, req.CurrentPassword); !ok {
		jsonError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	if err := model.ValidatePassword(req.NewPassword); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, claims.UserID, hash); err != nil {
		h.Logger.Error("failed to update password", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	h.Logger.Info("user changed own password", zap.String("user", claims.Username))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}
