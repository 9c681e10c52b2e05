package main

import (
	"context"
	"html/template"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"audit-trail-go/internal/handlers"
	"audit-trail-go/internal/recorder"
	"audit-trail-go/internal/retention"
	"audit-trail-go/internal/store"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	// Redis Configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDBStr := os.Getenv("REDIS_DB")
	redisDB := 0
	if redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	// Initialize Redis store (live feed + session continuation pointers)
	redisStore := store.NewRedisStore(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// PostgreSQL Configuration
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	// Initialize PostgreSQL store (events, snapshots, accounts, options)
	pgStore, err := store.NewPostgresStore(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	// Run database migrations
	ctx := context.Background()
	if err := pgStore.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Parse templates
	tmplPath := filepath.Join("web", "templates", "index.html")
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		log.Fatalf("Failed to parse template: %v", err)
	}

	// Parse admin templates
	adminTmpl := make(map[string]*template.Template)
	adminTemplates := map[string]string{
		"login":     filepath.Join("web", "templates", "admin", "login.html"),
		"dashboard": filepath.Join("web", "templates", "admin", "dashboard.html"),
	}
	for name, path := range adminTemplates {
		t, err := template.ParseFiles(path)
		if err != nil {
			log.Printf("Failed to parse admin template %s: %v", name, err)
		} else {
			adminTmpl[name] = t
		}
	}

	rec := recorder.New(pgStore, pgStore, redisStore)

	h := handlers.NewHandler(pgStore, pgStore, pgStore, pgStore, redisStore, rec, tmpl, adminTmpl)

	// Initialize default admin user
	h.InitSession(ctx)

	// Retention sweeps run in the background for the life of the process
	pruner := &retention.Worker{
		Events:   pgStore,
		Settings: pgStore,
		Interval: time.Hour,
	}
	go pruner.Run(ctx)

	// Public routes
	http.HandleFunc("/", h.IndexHandler)
	http.HandleFunc("/events", h.SSEHandler)
	http.HandleFunc("/hooks/events", h.IngestHandler)
	http.Handle("/metrics", promhttp.Handler())

	// Admin routes (login/logout)
	http.HandleFunc("/admin/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.AdminLoginPage(w, r)
		} else {
			h.LoginHandler(w, r)
		}
	})
	http.HandleFunc("/admin/logout", h.LogoutHandler)
	http.HandleFunc("/admin/dashboard", h.RequireViewer(h.AdminDashboardPage))

	// Auth API
	http.HandleFunc("/api/login", h.LoginHandler)
	http.HandleFunc("/api/2fa/verify", h.Verify2FALoginHandler)

	// Event grid API (protected by the viewer access settings)
	http.HandleFunc("/api/admin/events", h.RequireViewer(h.EventsGridHandler))
	http.HandleFunc("/api/admin/events/reset", handlers.AuthMiddleware(handlers.AdminMiddleware(h.ResetEventsHandler)))
	http.HandleFunc("/api/admin/summary", h.RequireViewer(h.SummaryHandler))

	// Settings API
	http.HandleFunc("/api/admin/settings", handlers.AuthMiddleware(handlers.AdminMiddleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetSettingsHandler(w, r)
		case http.MethodPut, http.MethodPost:
			h.UpdateSettingsHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Viewer account management
	http.HandleFunc("/api/admin/users", handlers.AuthMiddleware(handlers.AdminMiddleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetUsersHandler(w, r)
		case http.MethodPost:
			h.CreateUserHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))
	http.HandleFunc("/api/admin/users/", handlers.AuthMiddleware(handlers.AdminMiddleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			h.UpdateUserHandler(w, r)
		case http.MethodDelete:
			h.DeleteUserHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))
	http.HandleFunc("/api/admin/reset-password", handlers.AuthMiddleware(handlers.AdminMiddleware(h.AdminResetPasswordHandler)))

	// Profile and 2FA
	http.HandleFunc("/api/me", handlers.AuthMiddleware(h.GetCurrentUserHandler))
	http.HandleFunc("/api/profile", handlers.AuthMiddleware(h.UpdateProfileHandler))
	http.HandleFunc("/api/password", handlers.AuthMiddleware(h.ChangePasswordHandler))
	http.HandleFunc("/api/2fa/generate", handlers.AuthMiddleware(h.Generate2FAHandler))
	http.HandleFunc("/api/2fa/enable", handlers.AuthMiddleware(h.Enable2FAHandler))
	http.HandleFunc("/api/2fa/disable", handlers.AuthMiddleware(h.Disable2FAHandler))

	// Push notifications
	http.HandleFunc("/api/push/vapid", h.GetVAPIDKeyHandler)
	http.HandleFunc("/api/push/subscribe", handlers.AuthMiddleware(h.SubscribePushHandler))

	// Serve static files (PWA assets)
	fs := http.FileServer(http.Dir("web/static"))
	http.Handle("/static/", http.StripPrefix("/static/", fs))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Println("Listening on :" + port)
	log.Println("Default admin: admin / admin123")
	log.Println("Admin dashboard: http://localhost:" + port + "/admin/login")
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}
