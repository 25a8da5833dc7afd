package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"erochat/config"
	"erochat/database"
	"erochat/handlers"
	"erochat/logger"
	"erochat/middleware"
	"erochat/services"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Environment, cfg.Debug)

	services.InitSessionStore(cfg)

	if err := database.Connect(cfg); err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.RunMigrations(cfg); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := database.SeedAdminUser(cfg); err != nil {
		slog.Error("Failed to seed admin user", "error", err)
		os.Exit(1)
	}

	// Refund anything left pending by a previous crash, then keep sweeping.
	ctx := context.Background()
	if n, err := services.SweepStaleReservations(ctx, cfg.ReservationGrace); err != nil {
		slog.Error("Startup reservation sweep failed", "error", err)
	} else if n > 0 {
		slog.Info("Refunded stale reservations from previous run", "count", n)
	}
	services.StartReservationSweeper(ctx, cfg.ReservationSweepInterval, cfg.ReservationGrace)

	handlers.Init(cfg, services.NewGrokClient(cfg))

	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /api/auth/signup", handlers.SignupHandler)
	mux.HandleFunc("POST /api/auth/login", handlers.LoginHandler)
	mux.HandleFunc("POST /api/auth/logout", handlers.LogoutHandler)
	mux.HandleFunc("GET /api/auth/me", handlers.MeHandler)

	// Charged premium proxy
	mux.Handle("POST /api/premium/chat", middleware.RequireAuth(http.HandlerFunc(handlers.ChatHandler)))
	mux.Handle("POST /api/premium/image", middleware.RequireAuth(http.HandlerFunc(handlers.ImageHandler)))
	mux.Handle("POST /api/premium/video", middleware.RequireAuth(http.HandlerFunc(handlers.VideoStartHandler)))
	mux.Handle("GET /api/premium/video/{id}", middleware.RequireAuth(http.HandlerFunc(handlers.VideoStatusHandler)))
	mux.Handle("GET /api/premium/video/{id}/wait", middleware.RequireAuth(http.HandlerFunc(handlers.VideoWaitHandler)))
	mux.Handle("GET /api/credits/me", middleware.RequireAuth(http.HandlerFunc(handlers.CreditsMeHandler)))

	// Admin
	mux.HandleFunc("GET /api/admin/users", handlers.AdminListUsersHandler)
	mux.HandleFunc("PATCH /api/admin/users/{id}/credits", handlers.AdminSetCreditsHandler)

	// App shell and static assets behind auth
	mux.HandleFunc("GET /signin", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "static/login.html")
	})
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/signin", http.StatusSeeOther)
	})
	mux.Handle("GET /app/", middleware.RequirePage(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/app/" {
			http.ServeFile(w, r, "static/index.html")
			return
		}
		http.StripPrefix("/app/", http.FileServer(http.Dir("static/app"))).ServeHTTP(w, r)
	})))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/signin", http.StatusSeeOther)
	})

	// JSON 404 for everything else
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not found"}`))
	})

	handler := middleware.Logging(middleware.NoStore(mux))

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
		// No WriteTimeout: the video wait endpoint can legitimately hold a
		// response open for the full polling budget.
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	slog.Info("EroChat server starting", "addr", addr, "environment", cfg.Environment)
	if err := server.ListenAndServe(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
