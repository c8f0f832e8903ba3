package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dbsmedya/gocontacts/internal/logger"
	"github.com/dbsmedya/gocontacts/internal/metrics"
	"github.com/dbsmedya/gocontacts/internal/notify"
	"github.com/dbsmedya/gocontacts/internal/store"
)

// ErrNotListening is returned when a cycle is requested outside the
// Listening state.
var ErrNotListening = errors.New("detector is not listening")

// State is the detector lifecycle state.
type State int

const (
	Idle State = iota
	Listening
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Snapshotter reads the full store state.
type Snapshotter interface {
	Snapshot(ctx context.Context) (store.Snapshot, error)
}

// Listener receives non-empty change sets. It is called with the detector
// lock held and must not call back into the detector.
type Listener interface {
	ContactsChanged(ChangeSet)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ChangeSet)

// ContactsChanged implements Listener.
func (f ListenerFunc) ContactsChanged(cs ChangeSet) { f(cs) }

// Source yields notification edges.
type Source interface {
	Next(ctx context.Context) (notify.Signal, error)
}

// Detector owns the baseline and runs one cycle at a time.
type Detector struct {
	reader   Snapshotter
	listener Listener
	logger   *logger.Logger

	mu       sync.Mutex
	state    State
	baseline Baseline
}

// New creates an idle detector.
func New(reader Snapshotter, listener Listener, log *logger.Logger) *Detector {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Detector{
		reader:   reader,
		listener: listener,
		logger:   log.WithComponent("detector"),
	}
}

// State returns the current lifecycle state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Baseline returns the current baseline.
func (d *Detector) Baseline() Baseline {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseline
}

// Start captures the initial baseline and begins listening. Starting a
// listening detector is a no-op; a stopped detector cannot be restarted.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case Listening:
		return nil
	case Stopped:
		return fmt.Errorf("cannot start: %w", ErrNotListening)
	}

	snap, err := d.reader.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture baseline: %w", err)
	}
	d.baseline = NewBaseline(snap)
	d.state = Listening
	metrics.SetBaselineSize(d.baseline.IDs.Len())
	d.logger.Infof("Change detector listening with %d contacts", d.baseline.IDs.Len())
	return nil
}

// Stop moves the detector to Stopped. Later notifications are ignored.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Stopped {
		d.state = Stopped
		d.logger.Info("Change detector stopped")
	}
}

// HandleChange runs an onChange cycle.
func (d *Detector) HandleChange(ctx context.Context) (ChangeSet, error) {
	return d.cycle(ctx, OnChange)
}

// HandleResume runs an onResume cycle.
func (d *Detector) HandleResume(ctx context.Context) (ChangeSet, error) {
	return d.cycle(ctx, OnResume)
}

// Handle dispatches a notification edge to the matching cycle.
func (d *Detector) Handle(ctx context.Context, s notify.Signal) (ChangeSet, error) {
	if s == notify.Resume {
		return d.HandleResume(ctx)
	}
	return d.HandleChange(ctx)
}

func (d *Detector) cycle(ctx context.Context, strategy Strategy) (ChangeSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Listening {
		return emptyChangeSet(), ErrNotListening
	}

	snap, err := d.reader.Snapshot(ctx)
	if err != nil {
		metrics.ObserveDetectorCycle(strategy.String(), 0, 0, 0, err)
		d.logger.Warnf("Failed to read store during %s cycle, keeping baseline: %v", strategy, err)
		return emptyChangeSet(), fmt.Errorf("failed to read snapshot: %w", err)
	}

	cs, next := Cycle(strategy, d.baseline, snap)
	d.baseline = next

	metrics.ObserveDetectorCycle(strategy.String(), cs.Added.Len(), cs.Removed.Len(), cs.Modified.Len(), nil)
	metrics.SetBaselineSize(next.IDs.Len())

	if cs.IsEmpty() {
		d.logger.Debugf("No contact changes after %s cycle", strategy)
		return cs, nil
	}

	d.logger.Debugf("Contacts changed: added=%d removed=%d modified=%d",
		cs.Added.Len(), cs.Removed.Len(), cs.Modified.Len())
	if d.listener != nil {
		d.listener.ContactsChanged(cs)
	}
	return cs, nil
}

// Run starts the detector if needed and handles signals from src until ctx
// is done or src is exhausted. A final onChange cycle then reports late
// writes before the detector stops. Cycle failures are logged and do not end
// the loop.
func (d *Detector) Run(ctx context.Context, src Source) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	for {
		s, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, notify.ErrClosed) || ctx.Err() != nil {
				d.flush(ctx)
				return nil
			}
			return fmt.Errorf("failed to receive notification: %w", err)
		}
		if _, err := d.Handle(ctx, s); errors.Is(err, ErrNotListening) {
			return nil
		}
	}
}

// FlushTimeout bounds the final cycle Run performs on shutdown.
const FlushTimeout = 5 * time.Second

// flush runs one last onChange cycle so writes made just before shutdown
// are still reported. It outlives ctx cancellation.
func (d *Detector) flush(ctx context.Context) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FlushTimeout)
	defer cancel()
	if _, err := d.HandleChange(fctx); err != nil && !errors.Is(err, ErrNotListening) {
		d.logger.Warnf("Final change cycle failed: %v", err)
	}
}
