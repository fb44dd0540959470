package main

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mmynk/splitit/internal/metrics"
	"github.com/mmynk/splitit/internal/middleware"
	"github.com/mmynk/splitit/internal/service"
	"github.com/mmynk/splitit/internal/settlement"
)

// newRouter mounts the bill service, payment links, health and metrics
// endpoints, and the static web UI when staticPath is set.
func newRouter(svc *service.BillService, settlements *settlement.Service, m *metrics.Metrics, staticPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Connect-Protocol-Version", "Connect-Timeout-Ms", middleware.SessionHeader},
		ExposedHeaders: []string{"Connect-Protocol-Version", "Connect-Timeout-Ms", middleware.SessionHeader},
		MaxAge:         300,
	}))

	path, handler := service.NewBillServiceHandler(svc, connect.WithInterceptors(middleware.LoggingInterceptor()))
	r.Mount(path, handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", m.Handler())
	r.Get("/pay", payHandler(settlements))

	if staticPath != "" {
		if dir, err := filepath.Abs(staticPath); err != nil {
			slog.Warn("Static files disabled", "path", staticPath, "error", err)
		} else {
			slog.Info("Serving static files", "path", dir)
			r.NotFound(staticHandler(dir))
		}
	}
	return r
}

// staticHandler serves the web UI, falling back to index.html for unknown paths.
func staticHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/"+service.BillServiceName) {
			http.NotFound(w, r)
			return
		}

		urlPath := r.URL.Path
		if urlPath == "/" {
			urlPath = "/index.html"
		}
		filePath := filepath.Join(dir, filepath.Clean("/"+urlPath))
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		http.ServeFile(w, r, filePath)
	}
}

// requestLogger logs every HTTP request at DEBUG; RPCs are logged by the
// Connect interceptor.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
