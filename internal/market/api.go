package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// APIServer exposes a read-only HTTP surface for operators and display
// integrations: health, engine status and current prices. It never mutates
// market state.
type APIServer struct {
	server  *http.Server
	engine  *Engine
	rotator *Rotator
	logger  *zap.Logger
}

// NewAPIServer creates a new APIServer listening on the given port.
func NewAPIServer(engine *Engine, rotator *Rotator, logger *zap.Logger, port int) *APIServer {
	s := &APIServer{
		engine:  engine,
		rotator: rotator,
		logger:  logger.Named("api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/price", s.priceHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := struct {
		StartTime   string `json:"start_time"`
		Uptime      string `json:"uptime"`
		Items       int    `json:"items"`
		NextRefresh string `json:"next_refresh,omitempty"`
	}{
		StartTime: s.engine.StartTime.Format(time.RFC3339),
		Uptime:    time.Since(s.engine.StartTime).String(),
		Items:     len(s.engine.catalog.Snapshot()),
	}
	if s.rotator != nil {
		status.NextRefresh = s.rotator.NextRefresh().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Failed to write status response", zap.Error(err))
		http.Error(w, "Failed to encode status", http.StatusInternalServerError)
	}
}

func (s *APIServer) priceHandler(w http.ResponseWriter, r *http.Request) {
	itemID := r.URL.Query().Get("item")
	if itemID == "" {
		http.Error(w, "missing item parameter", http.StatusBadRequest)
		return
	}

	price, err := s.engine.PeekPrice(itemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "unknown item", http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to read price", zap.String("item", itemID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		ItemID string `json:"item_id"`
		Price  string `json:"price"`
	}{ItemID: itemID, Price: price.String()}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to write price response", zap.Error(err))
	}
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
