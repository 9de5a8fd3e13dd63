package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, navH *NavigationHandler, posH *PositionHandler, statsH *StatsHandler, visH *VisibilityHandler, eventsH *EventsHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 1b. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Navigation Endpoints
	mux.HandleFunc("GET /api/navigation", navH.HandleState)
	mux.HandleFunc("POST /api/navigate", navH.HandleNavigate)
	mux.HandleFunc("POST /api/navigation/pause", navH.HandlePause)
	mux.HandleFunc("POST /api/navigation/resume", navH.HandleResume)
	mux.HandleFunc("POST /api/navigation/end", navH.HandleEnd)
	mux.HandleFunc("GET /api/destination/previous", navH.HandlePreviousDestination)
	mux.HandleFunc("/api/prefs", navH.HandlePrefs)

	// 3. Position Endpoint
	mux.HandleFunc("GET /api/position", posH.Handle)

	// 4. Stats Endpoint
	mux.Handle("GET /api/stats", statsH)

	// 5. Visibility Endpoint
	mux.HandleFunc("POST /api/visibility", visH.Handle)

	// 6. Events Endpoint (WebSocket)
	if eventsH != nil {
		mux.HandleFunc("GET /api/events", eventsH.Handle)
	}

	// 7. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
