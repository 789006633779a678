package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/auth"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/config"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/dispatch"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/hub"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/ledger"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/lobby"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/middleware"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/service"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage/sqlite"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/pkg/logging"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	h := hub.New()
	registry := lobby.NewRegistry(store, ledger.NewCalculator(store), h)
	worker := dispatch.NewWorker(h, registry, store)
	go worker.Run(context.Background())

	jwtManager := auth.NewJWTManager(cfg.TokenSecret, cfg.TokenDuration)

	// Everything under /api/ needs an identity token, except the mint
	// endpoint, which is guarded by the gateway secret instead.
	protected := http.NewServeMux()
	service.NewReceiptService(store).Register(protected)
	service.NewSessionService(worker, h).Register(protected)

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.RequireAuth(jwtManager)(protected))
	service.NewAuthService(store, jwtManager, cfg.GatewaySecret).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	handler := middleware.Logging(mux)

	// h2c lets browsers and the ingest tool speak HTTP/2 without TLS.
	h2cHandler := h2c.NewHandler(handler, &http2.Server{})

	slog.Info("Server starting", "address", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, h2cHandler); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
