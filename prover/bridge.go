package prover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	snarktypes "github.com/iden3/go-rapidsnark/types"

	"github.com/buildercred/zkcred/log"
	"github.com/buildercred/zkcred/types"
)

var (
	// ErrAborted is returned when an operation is cancelled by its caller.
	// It is distinguished from failures so user-facing error surfaces can
	// suppress it.
	ErrAborted = errors.New("operation aborted")

	// ErrWorkerTimeout is returned when the worker does not answer a request
	// within the configured timeout. The worker is then considered unhealthy
	// for the remainder of the session.
	ErrWorkerTimeout = errors.New("worker response timeout")
)

// ExecutionError wraps a prover failure, local or in the worker.
type ExecutionError struct {
	Circuit types.CircuitID
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("prover execution failed for circuit %s: %v", e.Circuit, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// workerHealth is the session-long capability state of the worker. It only
// moves forward: untested -> healthy, or {untested,healthy} -> unhealthy on a
// timeout. It is never reset within a session.
type workerHealth int

const (
	healthUntested workerHealth = iota
	healthHealthy
	healthUnhealthy
)

const (
	msgFullProve       = "fullProve"
	msgVerify          = "verify"
	msgFullProveResult = "fullProve:result"
	msgVerifyResult    = "verify:result"
	msgProgress        = "progress"
)

// workerMsg is one message of the request/response protocol between the
// bridge and its worker, correlated by request id.
type workerMsg struct {
	Type     string
	ID       string
	Circuit  types.CircuitID
	Inputs   []byte
	Artifacts Artifacts
	Proof    *snarktypes.ZKProof
	VKey     []byte
	Percent  int
	Err      error
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	// WorkerEnabled allows dispatching jobs to the worker goroutine. When
	// false every job runs synchronously in the caller's goroutine.
	WorkerEnabled bool
	// WorkerTimeout bounds the wait for a worker response.
	WorkerTimeout time.Duration
}

// Bridge runs proving and verification jobs, preferring an isolated worker
// goroutine and falling back to synchronous execution when the worker is
// disabled or has been marked unhealthy.
type Bridge struct {
	engine  Engine
	enabled bool
	timeout time.Duration

	mu       sync.Mutex
	health   workerHealth
	jobs     chan workerMsg
	results  chan workerMsg
	pending  map[string]chan workerMsg
	progress map[string]func(int)
	started  bool
	close    context.CancelFunc
}

// NewBridge creates a Bridge over the given engine. A nil config uses a
// worker-enabled bridge with a 5 minute response timeout.
func NewBridge(engine Engine, cfg *BridgeConfig) *Bridge {
	if cfg == nil {
		cfg = &BridgeConfig{WorkerEnabled: true, WorkerTimeout: 5 * time.Minute}
	}
	return &Bridge{
		engine:   engine,
		enabled:  cfg.WorkerEnabled,
		timeout:  cfg.WorkerTimeout,
		pending:  map[string]chan workerMsg{},
		progress: map[string]func(int){},
	}
}

// Close stops the worker goroutine if it was started.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.close != nil {
		b.close()
		b.close = nil
	}
}

// Healthy reports whether the worker path is still usable this session.
func (b *Bridge) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled && b.health != healthUnhealthy
}

// RunProve generates a Groth16 proof for the prepared field-element inputs
// using the provided artifacts. Progress percentages in [0, 100] are
// forwarded to onProgress (which may be nil) and are monotonically
// non-decreasing. A context cancelled before dispatch rejects immediately
// with ErrAborted.
func (b *Bridge) RunProve(ctx context.Context, circuit types.CircuitID, inputs []byte,
	artifacts Artifacts, onProgress func(int),
) (*snarktypes.ZKProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrAborted
	}
	onProgress = monotonic(onProgress)
	if b.workerUsable() {
		proof, err := b.dispatch(ctx, workerMsg{
			Type:      msgFullProve,
			ID:        uuid.New().String(),
			Circuit:   circuit,
			Inputs:    inputs,
			Artifacts: artifacts,
		}, onProgress)
		if err == nil || !errors.Is(err, errWorkerUnavailable) {
			return proof, err
		}
		// worker never came up, fall through to the synchronous path
	}
	return b.runSyncProve(ctx, circuit, inputs, artifacts, onProgress)
}

// Verify checks a proof against its verification key, following the same
// worker/fallback dispatch policy as RunProve, without progress reporting.
func (b *Bridge) Verify(ctx context.Context, circuit types.CircuitID,
	proof *snarktypes.ZKProof, vkey []byte,
) error {
	if err := ctx.Err(); err != nil {
		return ErrAborted
	}
	if b.workerUsable() {
		_, err := b.dispatch(ctx, workerMsg{
			Type:    msgVerify,
			ID:      uuid.New().String(),
			Circuit: circuit,
			Proof:   proof,
			VKey:    vkey,
		}, nil)
		if err == nil || !errors.Is(err, errWorkerUnavailable) {
			return err
		}
	}
	if err := b.engine.Verify(proof, vkey); err != nil {
		return &ExecutionError{Circuit: circuit, Err: err}
	}
	return nil
}

// errWorkerUnavailable is an internal signal that the worker could not accept
// the job at all, so the synchronous path should be used for this call.
var errWorkerUnavailable = errors.New("worker unavailable")

func (b *Bridge) workerUsable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled && b.health != healthUnhealthy
}

func (b *Bridge) markUnhealthy(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.health != healthUnhealthy {
		b.health = healthUnhealthy
		log.Warnw("worker marked unhealthy for this session", "reason", reason)
	}
}

func (b *Bridge) markHealthy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.health == healthUntested {
		b.health = healthHealthy
	}
}

// ensureWorker lazily starts the worker and dispatcher goroutines.
func (b *Bridge) ensureWorker() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.jobs = make(chan workerMsg, 1)
	b.results = make(chan workerMsg, 4)
	ctx, cancel := context.WithCancel(context.Background())
	b.close = cancel
	go b.workerLoop(ctx)
	go b.dispatchLoop(ctx)
	b.started = true
}

// workerLoop is the isolated execution context: it consumes job messages and
// answers them on the results channel, correlated by id.
func (b *Bridge) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-b.jobs:
			switch job.Type {
			case msgFullProve:
				proof, err := b.engine.Prove(job.Inputs, job.Artifacts, func(p int) {
					select {
					case b.results <- workerMsg{Type: msgProgress, ID: job.ID, Percent: p}:
					case <-ctx.Done():
					}
				})
				select {
				case b.results <- workerMsg{Type: msgFullProveResult, ID: job.ID, Proof: proof, Err: err}:
				case <-ctx.Done():
					return
				}
			case msgVerify:
				err := b.engine.Verify(job.Proof, job.VKey)
				select {
				case b.results <- workerMsg{Type: msgVerifyResult, ID: job.ID, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// dispatchLoop routes worker responses to their waiting request by id.
// Unmatched or late responses are dropped.
func (b *Bridge) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.results:
			b.mu.Lock()
			if msg.Type == msgProgress {
				fn := b.progress[msg.ID]
				b.mu.Unlock()
				if fn != nil {
					fn(msg.Percent)
				}
				continue
			}
			ch, ok := b.pending[msg.ID]
			if ok {
				delete(b.pending, msg.ID)
				delete(b.progress, msg.ID)
			}
			b.mu.Unlock()
			if !ok {
				log.Debugw("dropping unmatched worker response", "id", msg.ID, "type", msg.Type)
				continue
			}
			ch <- msg
		}
	}
}

// dispatch sends one job to the worker and waits for the matching response,
// the context or the timeout, whichever comes first.
func (b *Bridge) dispatch(ctx context.Context, job workerMsg, onProgress func(int)) (*snarktypes.ZKProof, error) {
	b.ensureWorker()
	respCh := make(chan workerMsg, 1)
	b.mu.Lock()
	b.pending[job.ID] = respCh
	if onProgress != nil {
		b.progress[job.ID] = onProgress
	}
	b.mu.Unlock()
	unregister := func() {
		b.mu.Lock()
		delete(b.pending, job.ID)
		delete(b.progress, job.ID)
		b.mu.Unlock()
	}
	select {
	case b.jobs <- job:
	default:
		// worker busy with an abandoned job; this session runs synchronously
		unregister()
		return nil, errWorkerUnavailable
	}
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case msg := <-respCh:
		b.markHealthy()
		if msg.Err != nil {
			return nil, &ExecutionError{Circuit: job.Circuit, Err: msg.Err}
		}
		return msg.Proof, nil
	case <-ctx.Done():
		// best-effort termination: the job result, if it ever arrives, is
		// dropped by id correlation
		unregister()
		return nil, ErrAborted
	case <-timer.C:
		unregister()
		b.markUnhealthy("response timeout")
		return nil, fmt.Errorf("%w after %s", ErrWorkerTimeout, b.timeout)
	}
}

// runSyncProve executes the prover on the caller's goroutine. The engine's
// checkpoint callbacks provide a synthetic monotonic 0..100 sequence; once the
// native computation is running cancellation can only take effect at the next
// checkpoint.
func (b *Bridge) runSyncProve(ctx context.Context, circuit types.CircuitID, inputs []byte,
	artifacts Artifacts, onProgress func(int),
) (*snarktypes.ZKProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrAborted
	}
	var aborted bool
	proof, err := b.engine.Prove(inputs, artifacts, func(p int) {
		if ctx.Err() != nil {
			aborted = true
		}
		if onProgress != nil {
			onProgress(p)
		}
	})
	if aborted || ctx.Err() != nil {
		return nil, ErrAborted
	}
	if err != nil {
		return nil, &ExecutionError{Circuit: circuit, Err: err}
	}
	if onProgress != nil {
		onProgress(100)
	}
	return proof, nil
}

// monotonic wraps a progress callback so the forwarded sequence never
// decreases and stays within [0, 100].
func monotonic(fn func(int)) func(int) {
	if fn == nil {
		return nil
	}
	last := -1
	return func(p int) {
		if p < 0 {
			p = 0
		} else if p > 100 {
			p = 100
		}
		if p > last {
			last = p
			fn(p)
		}
	}
}
