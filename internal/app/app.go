package app

import (
	"fmt"
	"net/http"

	"sigrafilm/internal/auth"
	"sigrafilm/internal/config"
	"sigrafilm/internal/database"
	"sigrafilm/internal/handlers"
	"sigrafilm/internal/logger"
	"sigrafilm/internal/middleware"
	"sigrafilm/internal/models"
	"sigrafilm/internal/services"
	"sigrafilm/internal/web"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// App owns the store and the router built on top of it.
type App struct {
	DB     *database.DB
	Users  *auth.UserService
	Issues *services.IssueService
	Router http.Handler
}

func New(cfg *config.Config) (*App, error) {
	db, err := database.Open(cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Infof("database ready (%s)", db.Dialect)

	templates, err := web.LoadTemplates()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	userService := auth.NewUserService(db, FixedAdmin(cfg))
	issueService := services.NewIssueService(db, cfg.IssueListLimit)
	sessionManager := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionMaxAge, cfg.CookieSecure)

	renderer := handlers.NewRenderer(templates, sessionManager)
	authHandler := handlers.NewAuthHandler(renderer, userService, cfg.InitAdminEnabled)
	dashboardHandler := handlers.NewDashboardHandler(renderer, issueService, userService)
	issuesHandler := handlers.NewIssuesHandler(renderer, issueService, userService)
	usersHandler := handlers.NewUsersHandler(renderer, userService, models.UserOrder(cfg.UserOrder))
	accountHandler := handlers.NewAccountHandler(renderer, userService)
	healthHandler := handlers.NewHealthHandler(db, userService)

	authMiddleware := middleware.NewAuthMiddleware(sessionManager, userService)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestLogger(&chimiddleware.DefaultLogFormatter{Logger: logger.Printer{}, NoColor: true}))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	// Public routes
	r.Get("/login", authHandler.LoginPage)
	r.Post("/login", authHandler.Login)
	r.Get("/logout", authHandler.Logout)
	r.Post("/logout", authHandler.Logout)
	r.Get("/init-admin", authHandler.InitAdmin)
	r.Get("/healthz", healthHandler.Health)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)

		for _, path := range []string{"/", "/dashboard"} {
			r.Get(path, dashboardHandler.Dashboard)
			r.Post(path, dashboardHandler.CreateIssue)
		}

		for _, prefix := range []string{"/issues", "/problems", "/issue"} {
			r.Get(prefix+"/{id}/edit", issuesHandler.Edit)
			r.Post(prefix+"/{id}/edit", issuesHandler.Update)
			r.With(authMiddleware.RequireCSRF).Post(prefix+"/{id}/delete", issuesHandler.Delete)
		}
		r.Get("/export.csv", issuesHandler.Export)

		r.Get("/account", accountHandler.Account)
		r.Post("/account/password", accountHandler.ChangePassword)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAdmin)

			r.With(authMiddleware.RequireCSRF).Post("/issues/bulk-delete", issuesHandler.BulkDelete)

			for _, prefix := range []string{"/admin/users", "/users"} {
				r.Get(prefix, usersHandler.List)
				r.Post(prefix, usersHandler.Create)
				r.Post(prefix+"/{id}/reset", usersHandler.ResetPassword)
				r.Post(prefix+"/{id}/role", usersHandler.SetRole)
				r.With(authMiddleware.RequireCSRF).Post(prefix+"/{id}/delete", usersHandler.Delete)
			}
		})
	})

	return &App{
		DB:     db,
		Users:  userService,
		Issues: issueService,
		Router: r,
	}, nil
}

// FixedAdmin builds the configured privileged account.
func FixedAdmin(cfg *config.Config) auth.FixedAdmin {
	return auth.FixedAdmin{
		Username:     cfg.AdminUser,
		Password:     cfg.AdminPassword,
		PasswordHash: cfg.AdminPasswordHash,
		Lock:         cfg.AdminLock,
	}
}

func (a *App) Close() error {
	return a.DB.Close()
}
