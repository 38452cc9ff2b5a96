package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/perimetra/tunnelgate/internal/audit"
	"github.com/perimetra/tunnelgate/internal/config"
	"github.com/perimetra/tunnelgate/internal/database"
	"github.com/perimetra/tunnelgate/internal/gateway"
	"github.com/perimetra/tunnelgate/internal/handlers"
	"github.com/perimetra/tunnelgate/internal/logging"
	"github.com/perimetra/tunnelgate/internal/tunnel"
	"github.com/robfig/cron/v3"
)

func main() {
	config.Load()
	logging.Init()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	auditor := audit.NewAuditor(database.DB, config.Cfg.AuditRetentionDays)
	audit.InitGlobal(auditor)
	handlers.Auditor = auditor

	// Audit retention purge
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@daily", func() {
		if _, err := auditor.PurgeOlderThan(); err != nil {
			log.Printf("Audit purge: %v", err)
		}
	}); err != nil {
		log.Fatalf("Schedule audit purge: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	bcast := tunnel.NewBroadcaster()
	mgr := tunnel.NewManager(tunnel.Options{
		Profiles:      config.Environments,
		Tools:         tunnel.DefaultTools(config.Cfg.AuthTool),
		TunnelCommand: []string{config.Cfg.TunnelTool},
		Bastion:       config.Cfg.BastionTarget,
		RemoteDBPort:  config.Cfg.RemoteDBPort,
		ConfirmDelay:  config.Cfg.ConfirmDelay,
		PortScanCount: config.Cfg.PortScanCount,
	}, bcast)
	handlers.Tunnels = mgr
	handlers.Broadcast = bcast
	handlers.SQLGateway = gateway.New(config.Cfg.ProbeTimeout)
	log.Printf("Tunnel manager initialized (%d environments, confirm delay %s)",
		len(config.Environments), config.Cfg.ConfirmDelay)

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (no auth)
	r.Get("/health", handlers.HealthCheck)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", handlers.GetStatus)
		r.Get("/status/stream", handlers.StreamStatus)
		r.Get("/status/ws", handlers.StatusWS)

		r.Post("/tunnel/connect", handlers.ConnectTunnel)
		r.Post("/tunnel/disconnect", handlers.DisconnectTunnel)
		r.Post("/login-terminal", handlers.OpenLoginTerminal)

		r.Post("/query", handlers.ExecuteQuery)

		r.Get("/environments", handlers.ListEnvironments)
		r.Get("/events", handlers.ListEvents)
		r.Get("/logs", handlers.GetServerLogs)
		r.Delete("/logs", handlers.ClearServerLogs)
	})

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Failing to bind the control port is the one fatal error.
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mgr.Disconnect(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
