package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/overachiever/overachiever-web/config"
	"github.com/overachiever/overachiever-web/internal/api"
	"github.com/overachiever/overachiever-web/internal/auth"
	"github.com/overachiever/overachiever-web/internal/database"
	"github.com/overachiever/overachiever-web/internal/logger"
	"github.com/overachiever/overachiever-web/internal/provider/steam"
	"github.com/overachiever/overachiever-web/internal/ratelimit"
	"github.com/overachiever/overachiever-web/internal/scanqueue"
	"github.com/overachiever/overachiever-web/internal/scheduler"
	"github.com/overachiever/overachiever-web/internal/services"
	syncengine "github.com/overachiever/overachiever-web/internal/sync"
	"github.com/overachiever/overachiever-web/internal/websocket"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("failed to load config")
		os.Exit(1)
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Error("failed to initialize database")
		os.Exit(1)
	}
	defer db.Close()

	userService := services.NewUserService(db)
	gameService := services.NewGameService(db)
	historyService := services.NewHistoryService(db)
	ratingService := services.NewRatingService(db)

	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxCalls, cfg.RateLimit.MaxWait)
	queue := scanqueue.New(cfg.Scan.Cooldown)

	hub := websocket.NewHub()
	go hub.Run()

	provider := steam.NewClient(cfg.Steam.APIKey, cfg.Steam.BaseURL, cfg.Steam.CallTimeout)
	orch := syncengine.New(provider, limiter, queue, gameService, historyService, hub, syncengine.Config{
		FanOut:        cfg.Scan.FanOut,
		RetryAttempts: cfg.Scan.RetryAttempts,
		RetryBackoff:  cfg.Scan.RetryBackoff,
	})

	authService := auth.NewService(cfg.Auth, userService, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(orch, userService, cfg.Scheduler.Interval, log)
		go sched.Run(ctx)
	}

	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")

	r.HandleFunc("/auth/steam/login", authService.LoginHandler).Methods("GET")
	r.HandleFunc("/auth/steam/callback", authService.CallbackHandler).Methods("GET")
	r.HandleFunc("/auth/logout", authService.LogoutHandler).Methods("GET", "POST")

	wsHandler := websocket.NewHandler(hub, orch, queue, gameService, historyService, ratingService, authService)
	websocket.RegisterRoutes(r, wsHandler)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authService.Middleware)
	apiHandler := api.NewHandler(orch, gameService, historyService, ratingService, userService, log)
	apiHandler.RegisterRoutes(apiRouter)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: c.Handler(r),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	log.WithField("port", cfg.Server.Port).Info("overachiever server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("server exited")
		os.Exit(1)
	}
}
