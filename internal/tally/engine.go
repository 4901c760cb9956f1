package tally

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultStoreTimeout = 3 * time.Second

// Incrementer is a store that increments a count in one atomic upsert.
type Incrementer interface {
	IncrementCount(ctx context.Context, k Key) error
}

// OnceIncrementer is an Incrementer that can also skip message ids it has
// already counted. The check and the increment happen in one transaction.
type OnceIncrementer interface {
	Incrementer
	IncrementCountOnce(ctx context.Context, k Key, messageID string) (bool, error)
}

// ReadWriter is a store without an atomic upsert, e.g. a spreadsheet.
// Count returns zero for a missing row.
type ReadWriter interface {
	Count(ctx context.Context, k Key) (int64, error)
	PutCount(ctx context.Context, k Key, n int64) error
}

// EngineOption alters the default Engine configuration
type EngineOption interface {
	apply(*Engine)
}

type engineOptionFunc func(e *Engine)

func (f engineOptionFunc) apply(e *Engine) { f(e) }

// StoreTimeout bounds every store call made by the Engine
func StoreTimeout(d time.Duration) EngineOption {
	return engineOptionFunc(func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	})
}

// Dedupe enables message-id idempotency when the store supports it
func Dedupe(enabled bool) EngineOption {
	return engineOptionFunc(func(e *Engine) {
		e.dedupe = enabled
	})
}

// Engine is the only writer of MessageCount rows.
type Engine struct {
	logger  *zap.SugaredLogger
	inc     Incrementer
	once    OnceIncrementer
	rw      ReadWriter
	locks   *keyedMutex
	timeout time.Duration
	dedupe  bool
}

// NewEngine returns an Engine that relies on the store's atomic upsert.
func NewEngine(logger *zap.SugaredLogger, store Incrementer, opts ...EngineOption) *Engine {
	e := &Engine{
		logger:  logger,
		inc:     store,
		timeout: defaultStoreTimeout,
	}
	if once, ok := store.(OnceIncrementer); ok {
		e.once = once
	}
	for _, o := range opts {
		o.apply(e)
	}
	return e
}

// NewLockingEngine returns an Engine for stores that can only read and write
// whole values. The read-then-write sequence is serialized per key.
func NewLockingEngine(logger *zap.SugaredLogger, store ReadWriter, opts ...EngineOption) *Engine {
	e := &Engine{
		logger:  logger,
		rw:      store,
		locks:   newKeyedMutex(),
		timeout: defaultStoreTimeout,
	}
	for _, o := range opts {
		o.apply(e)
	}
	return e
}

// Increment adds one message to the tally of k. It reports false when the
// message id was already counted.
func (e *Engine) Increment(ctx context.Context, k Key, messageID string) (bool, error) {
	if err := k.Validate(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if e.rw != nil {
		return true, e.readModifyWrite(ctx, k)
	}

	if e.dedupe && e.once != nil && messageID != "" {
		counted, err := e.once.IncrementCountOnce(ctx, k, messageID)
		if err != nil {
			return false, fmt.Errorf("increment %s (message %s): %w", k, messageID, err)
		}
		if !counted {
			e.logger.Debugf("Message %s already counted for %s", messageID, k)
		}
		return counted, nil
	}

	if err := e.inc.IncrementCount(ctx, k); err != nil {
		return false, fmt.Errorf("increment %s: %w", k, err)
	}
	return true, nil
}

func (e *Engine) readModifyWrite(ctx context.Context, k Key) error {
	unlock, err := e.locks.Lock(ctx, k.String())
	if err != nil {
		return fmt.Errorf("lock %s: %w", k, err)
	}
	defer unlock()

	n, err := e.rw.Count(ctx, k)
	if err != nil {
		return fmt.Errorf("read %s: %w", k, err)
	}
	if err := e.rw.PutCount(ctx, k, n+1); err != nil {
		return fmt.Errorf("write %s: %w", k, err)
	}
	return nil
}
