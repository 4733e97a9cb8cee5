// Command liveserver runs the live trading runtime as a long-lived
// process: the MPSC event queue and periodic timer goroutine from
// internal/dispatcher, fronted by an HTTP control plane for registering
// portfolios and contracts, feeding quote snapshots, and starting or
// stopping strategy instances. Grounded on the teacher's
// src/eventmain/main.go bootstrap (env loading, gorilla/mux router,
// http.Server, signal-driven graceful shutdown).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Best-effort: a missing .env is normal outside local development,
	// matching the teacher's utils.InitEnvironmentVariables convention.
	if err := godotenv.Load(); err != nil {
		log.Debugf("liveserver: no .env file loaded: %v", err)
	}

	addr := getEnv("LIVESERVER_ADDR", ":8090")
	timerInterval := getEnvDuration("LIVESERVER_TIMER_INTERVAL", time.Second)
	queueSize := getEnvInt("LIVESERVER_QUEUE_SIZE", 1024)

	rt := NewRuntime(timerInterval, queueSize)
	rt.Live.Start()
	defer rt.Live.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	NewPortfolioHandler(rt).SetupHandler(router.PathPrefix("/portfolios").Subrouter())
	NewStrategyHandler(rt).SetupHandler(router.PathPrefix("/strategies").Subrouter())
	NewStreamHandler().SetupHandler(router.PathPrefix("/stream").Subrouter())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Handler: router,
		Addr:    addr,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		log.Infof("liveserver: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("liveserver: failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("liveserver: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("liveserver: graceful shutdown failed")
	}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.WithField("env", key).WithError(err).Warn("liveserver: invalid int env var, using default")
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.WithField("env", key).WithError(err).Warn("liveserver: invalid duration env var, using default")
		return def
	}
	return d
}
