package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campuspay/pkg/logging"
	"campuspay/pkg/metrics"
	"campuspay/pkg/store"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrBothUnavailable is returned when the local retry after a remote failure
// also fails. Nothing was committed.
var ErrBothUnavailable = errors.New("gateway: remote and local stores unavailable")

// Mirror copies remote results into the local cache in the background.
// writer.AsyncWriter satisfies it.
type Mirror interface {
	Mirror(ctx context.Context, collection store.Collection, accountID string, records []store.Record) error
	Close() error
}

// Config holds gateway dependencies.
type Config struct {
	// Selector maps modes to backends (required, with a non-nil local backend)
	Selector Selector

	// Mirror receives successful remote results (optional)
	Mirror Mirror

	// Metrics receives fallback and degradation counts (optional)
	Metrics metrics.MetricsCollector

	// ReadTimeout bounds a shared remote read, which outlives any single
	// caller's context (default: 5s)
	ReadTimeout time.Duration
}

// Gateway serves read/write/remove against the remote store and falls back
// to the local cache when the remote call fails. The caller owns the mode:
// each call takes the session's current mode and returns the effective one,
// which is ModeLocal whenever the local cache served the call.
type Gateway struct {
	selector    Selector
	mirror      Mirror
	metrics     metrics.MetricsCollector
	logger      *logging.Logger
	sf          singleflight.Group
	readTimeout time.Duration
}

// New creates a gateway.
func New(config Config) (*Gateway, error) {
	if config.Selector == nil || config.Selector.Backend(ModeLocal) == nil {
		return nil, errors.New("gateway: a local backend is required")
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 5 * time.Second
	}
	return &Gateway{
		selector:    config.Selector,
		mirror:      config.Mirror,
		metrics:     config.Metrics,
		logger:      logging.Global().Named("gateway"),
		readTimeout: config.ReadTimeout,
	}, nil
}

// remote returns the backend to try first, or nil when mode is local or no
// distinct remote backend exists.
func (g *Gateway) remote(mode Mode) store.Backend {
	if mode != ModeRemote {
		return nil
	}
	remote := g.selector.Backend(ModeRemote)
	if remote == nil || remote == g.selector.Backend(ModeLocal) {
		return nil
	}
	return remote
}

func (g *Gateway) local() store.Backend {
	return g.selector.Backend(ModeLocal)
}

// Read returns the records of collection matching filter. Concurrent reads
// of the same selection share one remote call.
func (g *Gateway) Read(ctx context.Context, mode Mode, collection store.Collection, filter store.Filter) ([]store.Record, Mode, error) {
	if err := ctx.Err(); err != nil {
		return nil, mode, err
	}

	var remoteErr error
	if remote := g.remote(mode); remote != nil {
		v, err := g.sharedRead(ctx, remote, collection, filter)
		if err == nil {
			records := append([]store.Record(nil), v...)
			g.mirrorRecords(ctx, collection, filter.AccountID, records)
			return records, ModeRemote, nil
		}
		if isCallerError(err) {
			return nil, mode, err
		}
		remoteErr = err
		g.degrade(mode, collection, "read", filter.AccountID, err)
	}

	records, err := g.local().Read(ctx, collection, filter)
	if err != nil {
		return nil, ModeLocal, g.localFailure(remoteErr, "read", err)
	}
	return records, ModeLocal, nil
}

// sharedRead collapses concurrent identical remote reads. The shared call is
// detached from the first caller so one cancellation cannot fail the others;
// each caller still stops waiting when its own context ends.
func (g *Gateway) sharedRead(ctx context.Context, remote store.Backend, collection store.Collection, filter store.Filter) ([]store.Record, error) {
	key := string(collection) + "|" + filter.AccountID + "|" + filter.ID
	ch := g.sf.DoChan(key, func() (interface{}, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.readTimeout)
		defer cancel()
		return remote.Read(readCtx, collection, filter)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]store.Record), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write stores record and returns it with its assigned id.
func (g *Gateway) Write(ctx context.Context, mode Mode, collection store.Collection, record store.Record) (store.Record, Mode, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, mode, err
	}

	var remoteErr error
	if remote := g.remote(mode); remote != nil {
		stored, err := remote.Write(ctx, collection, record)
		if err == nil {
			g.mirrorRecords(ctx, collection, stored.AccountID, []store.Record{stored})
			return stored, ModeRemote, nil
		}
		if isCallerError(err) {
			return store.Record{}, mode, err
		}
		remoteErr = err
		g.degrade(mode, collection, "write", record.AccountID, err)
	}

	stored, err := g.local().Write(ctx, collection, record)
	if err != nil {
		return store.Record{}, ModeLocal, g.localFailure(remoteErr, "write", err)
	}
	return stored, ModeLocal, nil
}

// Remove deletes the records of collection matching filter.
func (g *Gateway) Remove(ctx context.Context, mode Mode, collection store.Collection, filter store.Filter) (Mode, error) {
	if err := ctx.Err(); err != nil {
		return mode, err
	}

	var remoteErr error
	if remote := g.remote(mode); remote != nil {
		err := remote.Remove(ctx, collection, filter)
		if err == nil {
			return ModeRemote, nil
		}
		if isCallerError(err) {
			return mode, err
		}
		remoteErr = err
		g.degrade(mode, collection, "remove", filter.AccountID, err)
	}

	if err := g.local().Remove(ctx, collection, filter); err != nil {
		return ModeLocal, g.localFailure(remoteErr, "remove", err)
	}
	return ModeLocal, nil
}

// Purge removes the selection from the local cache and then from the remote
// store. A remote failure is logged and reported through the returned mode;
// only a local failure is returned as an error.
func (g *Gateway) Purge(ctx context.Context, mode Mode, collection store.Collection, filter store.Filter) (Mode, error) {
	if err := ctx.Err(); err != nil {
		return mode, err
	}
	if err := g.local().Remove(ctx, collection, filter); err != nil {
		return mode, store.WrapError(err, g.local().Name(), "purge")
	}

	remote := g.remote(mode)
	if remote == nil {
		return ModeLocal, nil
	}
	if err := remote.Remove(ctx, collection, filter); err != nil {
		if isCallerError(err) {
			return mode, err
		}
		g.degrade(mode, collection, "purge", filter.AccountID, err)
		return ModeLocal, nil
	}
	return ModeRemote, nil
}

// HasRemote reports whether a distinct remote backend is configured.
func (g *Gateway) HasRemote() bool {
	return g.remote(ModeRemote) != nil
}

// Close stops the mirror and closes both backends.
func (g *Gateway) Close() error {
	var lastErr error
	if g.mirror != nil {
		if err := g.mirror.Close(); err != nil {
			lastErr = err
		}
	}
	if remote := g.remote(ModeRemote); remote != nil {
		if err := remote.Close(); err != nil {
			lastErr = err
		}
	}
	if err := g.local().Close(); err != nil {
		lastErr = err
	}
	return lastErr
}

func (g *Gateway) degrade(mode Mode, collection store.Collection, operation, accountID string, err error) {
	g.logger.Warn("remote store failed, falling back to local cache",
		zap.String("collection", string(collection)),
		zap.String("operation", operation),
		zap.String("account_id", accountID),
		zap.String("error_type", store.ClassifyError(err)),
		zap.Error(err),
	)
	g.metrics.RecordFallback(string(collection), operation)
	if mode == ModeRemote {
		g.metrics.RecordModeDegraded()
	}
}

func (g *Gateway) localFailure(remoteErr error, operation string, err error) error {
	if remoteErr == nil {
		return store.WrapError(err, g.local().Name(), operation)
	}
	g.logger.Error("local fallback failed",
		zap.String("operation", operation),
		zap.NamedError("remote_error", remoteErr),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %w", ErrBothUnavailable, operation, err)
}

func (g *Gateway) mirrorRecords(ctx context.Context, collection store.Collection, accountID string, records []store.Record) {
	if g.mirror == nil || accountID == "" {
		return
	}
	if err := g.mirror.Mirror(ctx, collection, accountID, records); err != nil {
		g.logger.Debug("mirror skipped",
			zap.String("collection", string(collection)),
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
}

// isCallerError reports errors the local cache would reject as well.
func isCallerError(err error) bool {
	return errors.Is(err, store.ErrInvalidFilter) ||
		errors.Is(err, store.ErrInvalidRecord) ||
		errors.Is(err, store.ErrInvalidKey) ||
		errors.Is(err, store.ErrUnknownCollection) ||
		errors.Is(err, context.Canceled)
}
