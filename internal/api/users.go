package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/erazemk/porabnik/internal/auth"
	"github.com/erazemk/porabnik/internal/model"
	"github.com/erazemk/porabnik/internal/store"
)

// UsersHandler handles user management endpoints (admin only).
type UsersHandler struct {
	DB     *sql.DB
	Logger *zap.Logger
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	OfficeID int64  `json:"office_id"`
}

type updateUserRequest struct {
	Role string `json:"role"`
}

type moveUserRequest struct {
	OfficeID int64 `json:"office_id"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// List handles GET /api/users. Without office_id the admin's own office is
// listed.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	officeID, ok := h.officeParam(w, r)
	if !ok {
		return
	}

	users, err := store.ListUsers(r.Context(), h.DB, officeID)
	if err != nil {
		h.Logger.Error("failed to list users", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" || req.Role == "" {
		jsonError(w, http.StatusBadRequest, "username, password, and role required")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.OfficeID == 0 {
		admin, err := store.GetUser(r.Context(), h.DB, GetClaims(r.Context()).UserID)
		if err != nil || admin == nil {
			jsonError(w, http.StatusInternalServerError, "failed to resolve office")
			return
		}
		req.OfficeID = admin.OfficeID
	}
	office, err := store.GetOffice(r.Context(), h.DB, req.OfficeID)
	if err != nil {
		h.Logger.Error("failed to get office", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to get office")
		return
	}
	if office == nil {
		jsonError(w, http.StatusBadRequest, "office not found")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Username, hash, req.Role, office.ID)
	if err != nil {
		jsonError(w, http.StatusConflict, "username already exists")
		return
	}

	h.Logger.Info("user created",
		zap.String("user", GetClaims(r.Context()).Username),
		zap.String("new_user", req.Username),
		zap.String("role", req.Role),
		zap.String("office", office.Name),
	)
	jsonResponse(w, http.StatusCreated, user)
}

// Update handles PUT /api/users/{id}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}

	if err := store.UpdateUserRole(r.Context(), h.DB, id, req.Role); err != nil {
		h.userError(w, err, "failed to update user")
		return
	}

	user, _ := store.GetUser(r.Context(), h.DB, id)
	h.Logger.Info("user role updated",
		zap.String("user", GetClaims(r.Context()).Username),
		zap.Int64("target_user", id),
		zap.String("new_role", req.Role),
	)
	jsonResponse(w, http.StatusOK, user)
}

// Move handles PUT /api/users/{id}/office. The user's items move with them.
func (h *UsersHandler) Move(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req moveUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	office, err := store.GetOffice(r.Context(), h.DB, req.OfficeID)
	if err != nil {
		h.Logger.Error("failed to get office", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to get office")
		return
	}
	if office == nil {
		jsonError(w, http.StatusBadRequest, "office not found")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil || user == nil || user.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	if err := store.MoveUser(r.Context(), h.DB, id, office.ID); err != nil {
		h.userError(w, err, "failed to move user")
		return
	}

	h.Logger.Info("user moved",
		zap.String("user", GetClaims(r.Context()).Username),
		zap.String("target_user", user.Username),
		zap.Int64("from_office", user.OfficeID),
		zap.Int64("to_office", office.ID),
	)
	user.OfficeID = office.ID
	jsonResponse(w, http.StatusOK, user)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	if err := store.UpdateUserPassword(r.Context(), h.DB, id, hash); err != nil {
		h.userError(w, err, "failed to reset password")
		return
	}

	h.Logger.Info("user password reset",
		zap.String("user", GetClaims(r.Context()).Username),
		zap.Int64("target_user", id),
	)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	// Prevent self-deletion.
	claims := GetClaims(r.Context())
	if claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	target, _ := store.GetUser(r.Context(), h.DB, id)
	if target == nil || target.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		h.userError(w, err, "failed to delete user")
		return
	}

	h.Logger.Info("user deleted", zap.String("user", claims.Username), zap.String("deleted_user", target.Username))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (h *UsersHandler) officeParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if v := r.URL.Query().Get("office_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid office id")
			return 0, false
		}
		return id, true
	}
	admin, err := store.GetUser(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil || admin == nil {
		jsonError(w, http.StatusInternalServerError, "failed to resolve office")
		return 0, false
	}
	return admin.OfficeID, true
}

func (h *UsersHandler) userError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, sql.ErrNoRows) {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	h.Logger.Error(message, zap.Error(err))
	jsonError(w, http.StatusInternalServerError, message)
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid user id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}
