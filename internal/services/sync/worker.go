package sync

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/kirakosyanara/gropos-sub007/internal/events"
	"github.com/kirakosyanara/gropos-sub007/internal/models"
	"github.com/kirakosyanara/gropos-sub007/internal/queue"
)

// Pinger probes backend connectivity. The transport satisfies it.
type Pinger interface {
	Ping(ctx context.Context) bool
}

// ItemHandler processes one queued item. *Handler satisfies it.
type ItemHandler interface {
	Process(ctx context.Context, item *models.QueuedItem) models.ProcessResult
}

// WorkerConfig controls scheduling and backoff.
type WorkerConfig struct {
	Interval    time.Duration // Delay between cycles while healthy
	BaseDelay   time.Duration // Backoff base after a failed cycle
	MaxDelay    time.Duration // Backoff ceiling
	MaxExponent int           // Cap on the doubling exponent
	Jitter      float64       // Proportional jitter in [0, 1], 0 disables
}

// DefaultWorkerConfig returns the standard scheduling settings.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:    30 * time.Second,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Minute,
		MaxExponent: 5,
		Jitter:      0.2,
	}
}

// Worker drains the outbound queue on a timer. One cycle checks
// connectivity, hands every pending item to the handler, and applies
// backoff when the cycle does not fully succeed. Cycles never run
// concurrently: the loop is the only scheduler, and externally-invoked
// cycles serialize behind the same guard.
type Worker struct {
	queue   queue.Store
	handler ItemHandler
	pinger  Pinger
	cfg     WorkerConfig
	logger  *events.Logger

	// syncMu serializes drain cycles.
	syncMu sync.Mutex

	mu       sync.Mutex
	state    models.SyncWorkerState
	watchers []chan models.SyncWorkerState
	cancel   context.CancelFunc
	done     chan struct{}
	trigger  chan struct{}
}

// NewWorker creates a sync worker.
func NewWorker(store queue.Store, handler ItemHandler, pinger Pinger, cfg WorkerConfig, logger *events.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Minute
	}

	return &Worker{
		queue:   store,
		handler: handler,
		pinger:  pinger,
		cfg:     cfg,
		logger:  logger.WithField("service", "sync_worker"),
		trigger: make(chan struct{}, 1),
	}
}

// State returns the current worker state.
func (w *Worker) State() models.SyncWorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// StateChanges subscribes to worker state transitions.
func (w *Worker) StateChanges() <-chan models.SyncWorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan models.SyncWorkerState, 16)
	w.watchers = append(w.watchers, ch)
	return ch
}

// Start launches the scheduling loop.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.state.IsRunning = true
	w.publishLocked()
	w.mu.Unlock()

	w.logger.WithField("interval", w.cfg.Interval).Info("Sync worker started")

	go func() {
		defer close(done)
		w.run(ctx)
	}()
}

// Stop cancels the timer loop. An in-flight cycle finishes; callers
// awaiting its result receive it.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	w.mu.Lock()
	w.state.IsRunning = false
	w.publishLocked()
	w.mu.Unlock()

	w.logger.Info("Sync worker stopped")
}

// TriggerSync nudges the loop to run a cycle now instead of waiting for
// the timer.
func (w *Worker) TriggerSync() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// ResetBackoff clears the failure counter, e.g. on a network-state
// change signal.
func (w *Worker) ResetBackoff() {
	w.mu.Lock()
	w.state.ConsecutiveFailures = 0
	w.publishLocked()
	w.mu.Unlock()
}

// run is the scheduling loop. Drains are not aborted by Stop; the
// loop's context only cancels the wait.
func (w *Worker) run(ctx context.Context) {
	for {
		timer := time.NewTimer(w.nextDelay())

		select {
		case <-timer.C:
		case <-w.trigger:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}

		outcome := w.SyncNow(context.WithoutCancel(ctx))
		if !outcome.Success {
			w.logger.WithFields(map[string]interface{}{
				"synced":    outcome.ItemsSynced,
				"remaining": outcome.Remaining,
				"failures":  w.State().ConsecutiveFailures,
			}).Warn("Sync cycle incomplete")
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// SyncNow runs one drain cycle: connectivity gate, drain, bookkeeping.
// A cycle fully succeeds only when the queue is empty afterwards.
func (w *Worker) SyncNow(ctx context.Context) models.SyncOutcome {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	w.setSyncing(true)
	defer w.setSyncing(false)

	if !w.pinger.Ping(ctx) {
		pending, _ := w.queue.PendingCount(ctx)
		w.logger.WithField("pending", pending).Info("Offline, skipping drain")
		return w.finishCycle(models.SyncOutcome{
			Success:   false,
			Remaining: pending,
			Errors:    []string{models.ErrOffline.Error()},
		})
	}

	synced, err := w.queue.Drain(ctx, w.handler.Process)
	remaining, countErr := w.queue.PendingCount(ctx)

	outcome := models.SyncOutcome{
		Success:     err == nil && countErr == nil && remaining == 0,
		ItemsSynced: synced,
		Remaining:   remaining,
	}
	if err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
	}
	if countErr != nil {
		outcome.Errors = append(outcome.Errors, countErr.Error())
	}

	return w.finishCycle(outcome)
}

// finishCycle updates failure and sync bookkeeping for one cycle.
func (w *Worker) finishCycle(outcome models.SyncOutcome) models.SyncOutcome {
	outcome.CompletedAt = time.Now()

	w.mu.Lock()
	if outcome.Success {
		w.state.ConsecutiveFailures = 0
	} else {
		w.state.ConsecutiveFailures++
	}
	w.state.LastSyncAt = outcome.CompletedAt
	w.state.PendingItems = outcome.Remaining
	w.publishLocked()
	w.mu.Unlock()

	if outcome.ItemsSynced > 0 {
		w.logger.WithFields(map[string]interface{}{
			"synced":    outcome.ItemsSynced,
			"remaining": outcome.Remaining,
		}).Info("Drain cycle finished")
	}

	return outcome
}

// nextDelay computes the wait before the next cycle: the base interval
// while healthy, backoff otherwise.
func (w *Worker) nextDelay() time.Duration {
	w.mu.Lock()
	failures := w.state.ConsecutiveFailures
	w.mu.Unlock()

	if failures == 0 {
		return w.cfg.Interval
	}
	return w.Delay(failures)
}

// Delay computes min(baseDelay * 2^min(n, maxExponent), maxDelay) plus
// proportional jitter for a failure count n.
func (w *Worker) Delay(failures int) time.Duration {
	exp := failures
	if exp > w.cfg.MaxExponent {
		exp = w.cfg.MaxExponent
	}

	delay := time.Duration(float64(w.cfg.BaseDelay) * math.Pow(2, float64(exp)))
	if delay > w.cfg.MaxDelay {
		delay = w.cfg.MaxDelay
	}

	if w.cfg.Jitter > 0 {
		delay += time.Duration(rand.Float64() * w.cfg.Jitter * float64(delay))
	}

	return delay
}

func (w *Worker) setSyncing(syncing bool) {
	w.mu.Lock()
	w.state.IsSyncing = syncing
	w.publishLocked()
	w.mu.Unlock()
}

// publishLocked expects w.mu held.
func (w *Worker) publishLocked() {
	for _, ch := range w.watchers {
		select {
		case ch <- w.state:
		default:
		}
	}
}
