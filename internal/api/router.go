package api

import (
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/porabnik/internal/inventory"
	"github.com/erazemk/porabnik/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, engine *inventory.Engine, jwtSecret string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret, Logger: logger}
	usersHandler := &UsersHandler{DB: db, Logger: logger}
	officesHandler := &OfficesHandler{DB: db, Logger: logger}
	itemsHandler := &ItemsHandler{Engine: engine, Logger: logger}

	authMW := AuthMiddleware(db, jwtSecret)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))

	// Offices and users (admin only).
	mux.Handle("GET /api/offices", authMW(requireAdmin(http.HandlerFunc(officesHandler.List))))
	mux.Handle("POST /api/offices", authMW(requireAdmin(http.HandlerFunc(officesHandler.Create))))
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/office", authMW(requireAdmin(http.HandlerFunc(usersHandler.Move))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Items: read (all roles), write (manager+).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(requireManager(http.HandlerFunc(itemsHandler.Create))))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(requireManager(http.HandlerFunc(itemsHandler.Update))))
	mux.Handle("POST /api/items/{id}/archive", authMW(requireManager(http.HandlerFunc(itemsHandler.Archive))))
	mux.Handle("POST /api/items/{id}/restore", authMW(requireManager(http.HandlerFunc(itemsHandler.Restore))))
	mux.Handle("GET /api/items/{id}/images/{filename}", authMW(http.HandlerFunc(itemsHandler.Image)))

	return mux
}
