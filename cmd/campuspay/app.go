package main

import (
	"fmt"
	"time"

	"campuspay/pkg/account"
	"campuspay/pkg/chat"
	"campuspay/pkg/config"
	"campuspay/pkg/gateway"
	"campuspay/pkg/ledger"
	"campuspay/pkg/logging"
	"campuspay/pkg/metrics"
	memorycollector "campuspay/pkg/metrics/memory"
	promMetrics "campuspay/pkg/metrics/prometheus"
	"campuspay/pkg/nfc"
	"campuspay/pkg/notify"
	"campuspay/pkg/payment"
	"campuspay/pkg/resilience"
	"campuspay/pkg/store"
	"campuspay/pkg/store/memory"
	"campuspay/pkg/store/postgres"
	"campuspay/pkg/store/redis"
	"campuspay/pkg/writer"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app wires the services shared by every command.
type app struct {
	cfg       config.Config
	logger    *logging.Logger
	registry  *prometheus.Registry
	memory    *memorycollector.MemoryCollector
	collector metrics.MetricsCollector

	gateway   *gateway.Gateway
	directory *account.Directory
	ledger    *ledger.Ledger
	chat      *chat.Service
	bus       *notify.Bus
	scanner   nfc.Scanner
}

func newApp(cfg config.Config, logger *logging.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	prom := promMetrics.NewPrometheusCollector("campuspay")
	if err := prom.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	mem := memorycollector.NewMemoryCollector()
	collector := metrics.NewMultiCollector(prom, mem)

	local := memory.New(memory.Config{Name: "local"})
	mirror := writer.NewAsyncWriterWithMetrics(local, writer.AsyncWriterConfig{
		QueueSize: cfg.Store.MirrorQueue,
	}, collector)

	remote := openRemote(cfg, logger, collector)
	gw, err := gateway.New(gateway.Config{
		Selector:    gateway.StaticSelector{Remote: remote, Local: local},
		Mirror:      mirror,
		Metrics:     collector,
		ReadTimeout: cfg.Store.Timeout,
	})
	if err != nil {
		mirror.Close()
		return nil, err
	}

	balance, err := cfg.DemoBalance()
	if err != nil && cfg.Demo.Enabled {
		gw.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		memory:    mem,
		collector: collector,
		gateway:   gw,
		directory: account.NewDirectory(gw, account.DemoConfig{
			Enabled:  cfg.Demo.Enabled,
			Email:    cfg.Demo.Email,
			Password: cfg.Demo.Password,
			Name:     cfg.Demo.Name,
			Balance:  balance,
		}, nil),
		ledger: ledger.New(gw, nil),
		chat:   chat.NewService(gw, nil),
		bus:    notify.NewBus(16, collector),
		scanner: nfc.NewSimulator(nfc.SimulatorConfig{
			Step:        cfg.Scan.Step,
			Interval:    cfg.Scan.Interval,
			Unavailable: cfg.Scan.Unavailable,
		}),
	}, nil
}

// openRemote connects the configured remote store behind a circuit breaker.
// A store that cannot be reached at startup leaves the gateway local-only.
func openRemote(cfg config.Config, logger *logging.Logger, collector metrics.MetricsCollector) store.Backend {
	var (
		backend store.Backend
		err     error
	)
	switch cfg.Store.Remote {
	case config.RemoteRedis:
		rc := redis.DefaultConfig()
		rc.Addr = cfg.Redis.Addr
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.KeyPrefix = cfg.Redis.KeyPrefix
		backend, err = redis.New(rc)
	case config.RemotePostgres:
		backend, err = postgres.New(postgres.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		})
	default:
		logger.Info("no remote store configured, using local cache only")
		return nil
	}
	if err != nil {
		logger.Warn("remote store unavailable, using local cache only",
			zap.String("remote", cfg.Store.Remote),
			zap.Error(err),
		)
		return nil
	}

	failures := cfg.Store.BreakerFailures
	rcfg := resilience.DefaultResilientConfig().
		WithTimeout(cfg.Store.Timeout).
		WithCircuitBreakerTimeout(cfg.Store.BreakerTimeout)
	rcfg.CircuitBreakerConfig.ReadyToTrip = func(counts resilience.Counts) bool {
		return counts.ConsecutiveFailures >= failures
	}
	logger.Info("remote store connected", zap.String("remote", backend.Name()))
	return resilience.NewResilientBackendWithMetrics(backend, rcfg, collector)
}

// newMachine builds the payment machine for one session.
func (a *app) newMachine(session *account.Session) (*payment.Machine, error) {
	return payment.NewMachine(session, payment.Config{
		Scanner:             a.scanner,
		Ledger:              a.ledger,
		Bus:                 a.bus,
		Metrics:             a.collector,
		DetectDelay:         a.cfg.Scan.DetectDelay,
		ResetAfter:          a.cfg.Scan.ResetAfter,
		MinCredentialLength: a.cfg.Payment.MinCredentialLength,
		LedgerAttempts:      a.cfg.Payment.LedgerAttempts,
		RetryBackoff:        a.cfg.Payment.RetryBackoff,
	})
}

// close flushes pending mirror writes and closes the stores.
func (a *app) close() {
	a.bus.Close()
	if err := a.gateway.Close(); err != nil {
		a.logger.Warn("failed to close stores", zap.Error(err))
	}
}

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second
