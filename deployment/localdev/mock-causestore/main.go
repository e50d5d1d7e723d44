package main

import (
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/miradorstack/mirador-causality/internal/repo"
	"github.com/miradorstack/mirador-causality/internal/utils"
)

func main() {
	var (
		addr        string
		fixturePath string
	)
	flag.StringVar(&addr, "addr", ":8080", "Listen address")
	flag.StringVar(&fixturePath, "fixture", "deployment/localdev/mock-causestore/fixture.json", "JSON fixture to serve")
	flag.Parse()

	logger := utils.NewLogger("info", false).With(slog.String("component", "mock-causestore"))

	store, err := repo.LoadFixtureFile(fixturePath)
	if err != nil {
		logger.Error("failed to load fixture", slog.String("path", fixturePath), slog.Any("error", err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, repo.NewCauseStoreHandler(store, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("address", addr), slog.String("fixture", fixturePath))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
