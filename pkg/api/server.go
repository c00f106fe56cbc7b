package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"campuspay/pkg/account"
	"campuspay/pkg/chat"
	"campuspay/pkg/ledger"
	"campuspay/pkg/logging"
	memorycollector "campuspay/pkg/metrics/memory"
	"campuspay/pkg/notify"
	"campuspay/pkg/payment"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MachineFactory builds the payment machine for a newly signed-in session.
type MachineFactory func(session *account.Session) (*payment.Machine, error)

// Deps are the services the API exposes.
type Deps struct {
	Directory *account.Directory
	Ledger    *ledger.Ledger
	Chat      *chat.Service
	Machines  MachineFactory

	// Bus delivers settlement signals to /events (optional)
	Bus *notify.Bus

	// Memory backs /metrics/json (optional)
	Memory *memorycollector.MemoryCollector

	// Registry backs /metrics and the request middleware (optional)
	Registry *prometheus.Registry
}

// Server provides the HTTP API.
type Server struct {
	deps     Deps
	sessions *sessionRegistry
	server   *http.Server
	router   *mux.Router
	config   ServerConfig
	logger   *logging.Logger
	started  time.Time

	unsubscribe func()
	listening   sync.WaitGroup
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration

	// RequestTimeout bounds store work done on behalf of one request
	RequestTimeout time.Duration

	// RecentTransactions is how many entries /insights returns
	RecentTransactions int

	// EventWait is the longest /events holds a request open. It is kept
	// below WriteTimeout.
	EventWait time.Duration
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:            ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		RequestTimeout:     5 * time.Second,
		RecentTransactions: 5,
		EventWait:          5 * time.Second,
	}
}

// NewServer creates the API server and its routes.
func NewServer(deps Deps, config ServerConfig) (*Server, error) {
	if deps.Directory == nil || deps.Ledger == nil || deps.Chat == nil || deps.Machines == nil {
		return nil, errors.New("api: directory, ledger, chat and machine factory are required")
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultServerConfig().RequestTimeout
	}
	if config.RecentTransactions <= 0 {
		config.RecentTransactions = DefaultServerConfig().RecentTransactions
	}
	if config.EventWait <= 0 {
		config.EventWait = DefaultServerConfig().EventWait
	}
	if config.WriteTimeout > 0 && config.EventWait >= config.WriteTimeout {
		config.EventWait = config.WriteTimeout / 2
	}

	requests, err := newRequestMetrics(deps.Registry)
	if err != nil {
		return nil, err
	}

	s := &Server{
		deps:     deps,
		sessions: newSessionRegistry(),
		config:   config,
		logger:   logging.Global().Named("api"),
		started:  time.Now(),
	}

	r := mux.NewRouter()
	r.Use(requests.middleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/metrics/json", s.handleMetricsJSON).Methods(http.MethodGet)

	r.HandleFunc("/session/signup", s.handleSignUp).Methods(http.MethodPost)
	r.HandleFunc("/session/signin", s.handleSignIn).Methods(http.MethodPost)
	r.HandleFunc("/session", s.authenticated(s.handleSignOut)).Methods(http.MethodDelete)

	r.HandleFunc("/account", s.authenticated(s.handleAccount)).Methods(http.MethodGet)
	r.HandleFunc("/account/topup", s.authenticated(s.handleTopUp)).Methods(http.MethodPost)
	r.HandleFunc("/transactions", s.authenticated(s.handleTransactions)).Methods(http.MethodGet)
	r.HandleFunc("/insights", s.authenticated(s.handleInsights)).Methods(http.MethodGet)

	r.HandleFunc("/payment", s.authenticated(s.handlePayment)).Methods(http.MethodGet)
	r.HandleFunc("/payment/scan", s.authenticated(s.handleScan)).Methods(http.MethodPost)
	r.HandleFunc("/payment/confirm", s.authenticated(s.handleConfirm)).Methods(http.MethodPost)
	r.HandleFunc("/payment/cancel", s.authenticated(s.handleCancel)).Methods(http.MethodPost)
	r.HandleFunc("/payment/reset", s.authenticated(s.handleReset)).Methods(http.MethodPost)

	r.HandleFunc("/chat", s.authenticated(s.handleChatHistory)).Methods(http.MethodGet)
	r.HandleFunc("/chat", s.authenticated(s.handleChatSend)).Methods(http.MethodPost)
	r.HandleFunc("/chat", s.authenticated(s.handleChatClear)).Methods(http.MethodDelete)

	r.HandleFunc("/events", s.authenticated(s.handleEvents)).Methods(http.MethodGet)

	s.router = r
	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	if deps.Bus != nil {
		events, unsubscribe := deps.Bus.Subscribe(notify.PaymentCompleted)
		s.unsubscribe = unsubscribe
		s.listening.Add(1)
		go s.listen(events)
	}
	return s, nil
}

// listen forwards settlements to every open session of the settled account,
// so its other views know to re-fetch.
func (s *Server) listen(events <-chan notify.Event) {
	defer s.listening.Done()
	for e := range events {
		for _, cs := range s.sessions.forAccount(e.AccountID) {
			if cs.signal(e) {
				s.logger.Debug("settlement signalled",
					zap.String("account_id", e.AccountID),
					zap.String("session", cs.token),
				)
			}
		}
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
	s.logger.Info("API server listening", zap.String("address", s.config.Address))
	return nil
}

// Stop gracefully shuts down the HTTP server and closes open sessions.
func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.listening.Wait()
	}
	s.sessions.closeAll()
	return err
}

// handleHealth returns a simple health check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handleStatus returns detailed status information.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "running",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).String(),
		"sessions":  s.sessions.count(),
	})
}

// handleMetricsJSON returns the in-memory metrics snapshot when available.
func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	if s.deps.Memory != nil {
		writeJSON(w, http.StatusOK, s.deps.Memory.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"error": "Metrics collector does not support JSON snapshot",
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
