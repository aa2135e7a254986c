// Package autosave persists a canvas session: it loads the stored record,
// debounces edits into saves, skips writes whose content is unchanged, and
// keeps a user-visible SaveState.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/metrics"
	"github.com/canvas-studio/engine/internal/store"
	appErr "github.com/canvas-studio/engine/pkg/errors"
	"github.com/canvas-studio/engine/pkg/logger"
)

// Defaults applied to zero Options fields.
const (
	DefaultDebounce  = 2 * time.Second
	DefaultTimeout   = 15 * time.Second
	DefaultLabelTick = 30 * time.Second
	DefaultName      = "Untitled Canvas"
)

// Thumbnailer renders the thumbnail URL stored alongside a save.
type Thumbnailer interface {
	Thumbnail(snap canvas.Snapshot) (string, error)
}

// Cleaner removes stale duplicates of (ownerID, name) after a save.
type Cleaner interface {
	Cleanup(ctx context.Context, ownerID, name string) (int, error)
}

// Options configures a Pipeline. Store and OwnerID are required.
type Options struct {
	Store    store.Store
	CanvasID string
	OwnerID  string
	Name     string

	Debounce  time.Duration
	Timeout   time.Duration
	LabelTick time.Duration

	// Thumbnailer is optional; without one saves carry no thumbnail.
	Thumbnailer Thumbnailer
	// Cleaner defaults to an inline store.RetentionCleaner.
	Cleaner Cleaner

	// OnReload receives the stored snapshot when a save retries a failed
	// load and finds a record. The caller should replace its state with it.
	OnReload func(canvas.Snapshot)

	Metrics *metrics.Collector
	Logger  *zap.Logger
	Now     func() time.Time
}

// Listener receives a copy of the SaveState after every change.
type Listener func(SaveState)

// Pipeline is the save state machine of one canvas session. It never reads
// the graph itself; callers push point-in-time snapshots through Observe and
// SaveNow.
type Pipeline struct {
	opts Options
	log  *zap.Logger

	mu          sync.Mutex
	state       State
	canvasID    string
	fingerprint string
	lastSavedAt time.Time
	lastErr     error
	loadFailed  bool
	closed      bool

	gen     uint64
	timer   *time.Timer
	pending *canvas.Snapshot

	saving bool
	queued *canvas.Snapshot

	listeners map[int]Listener
	nextSub   int

	stopTick chan struct{}
	tickDone sync.WaitGroup
}

// New returns a pipeline in the Loading state.
func New(opts Options) *Pipeline {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.LabelTick <= 0 {
		opts.LabelTick = DefaultLabelTick
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Cleaner == nil {
		opts.Cleaner = store.RetentionCleaner{Store: opts.Store}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logger.OrGlobal(opts.Logger).With(
		zap.String("owner_id", opts.OwnerID),
		zap.String("name", opts.Name),
	)
	return &Pipeline{
		opts:      opts,
		log:       log,
		state:     StateLoading,
		canvasID:  opts.CanvasID,
		listeners: map[int]Listener{},
		stopTick:  make(chan struct{}),
	}
}

// Load fetches the stored record by id, else by (owner, name). A missing
// record yields an empty canvas. On failure the pipeline moves to Error and
// returns an empty snapshot together with an error wrapping ErrLoadFailure.
// Edits are still accepted afterwards, but every save first retries the load
// and writes nothing until it succeeds.
//
// The returned snapshot's NextNodeID is already seeded past every id present.
func (p *Pipeline) Load(ctx context.Context) (canvas.Snapshot, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return canvas.Snapshot{}, ErrClosed
	}
	if p.state != StateLoading {
		p.mu.Unlock()
		return canvas.Snapshot{}, fmt.Errorf("autosave: load called twice")
	}
	p.mu.Unlock()

	rec, snap, fp, err := p.fetch(ctx)
	if err != nil {
		p.log.Error("canvas load failed", zap.Error(err))
		p.finishLoad(StateError, err, nil, "")
		return emptySnapshot(), err
	}
	p.finishLoad(StateIdle, nil, rec, fp)
	if rec != nil {
		p.log.Debug("canvas loaded", zap.String("canvas_id", rec.ID), zap.Int("nodes", len(snap.Nodes)), zap.Int("edges", len(snap.Edges)))
	}
	return snap, nil
}

func emptySnapshot() canvas.Snapshot {
	return canvas.Snapshot{Viewport: canvas.DefaultViewport, NextNodeID: 1}
}

// fetch reads the stored record. rec is nil when nothing is stored, in which
// case snap is the empty canvas.
func (p *Pipeline) fetch(ctx context.Context) (*store.Record, canvas.Snapshot, string, error) {
	p.mu.Lock()
	q := store.Query{CanvasID: p.canvasID, OwnerID: p.opts.OwnerID, Name: p.opts.Name}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	rec, err := p.opts.Store.Load(ctx, q)
	if err == nil && rec == nil && q.CanvasID != "" {
		// A stale id falls back to the owner's canvas of the same name.
		q.CanvasID = ""
		rec, err = p.opts.Store.Load(ctx, q)
	}
	if err != nil {
		return nil, canvas.Snapshot{}, "", fmt.Errorf("%w: %w", ErrLoadFailure, err)
	}
	if rec == nil {
		return nil, emptySnapshot(), "", nil
	}

	snap := rec.Snapshot.Sanitize()
	snap.NextNodeID = canvas.SeedFrom(snap)
	fp, err := canvas.Fingerprint(snap)
	if err != nil {
		return nil, canvas.Snapshot{}, "", fmt.Errorf("%w: %w", ErrLoadFailure, err)
	}
	return rec, snap, fp, nil
}

// retryLoad runs before every write while the initial load has not
// succeeded. reloaded reports that a stored record turned up; it is handed
// to OnReload and the write is dropped so the record is not overwritten.
func (p *Pipeline) retryLoad(ctx context.Context) (reloaded bool, err error) {
	p.mu.Lock()
	failed := p.loadFailed
	p.mu.Unlock()
	if !failed {
		return false, nil
	}

	rec, snap, fp, err := p.fetch(ctx)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return true, nil
	}
	p.loadFailed = false
	p.lastErr = nil
	if rec == nil {
		p.mu.Unlock()
		return false, nil
	}
	p.canvasID = rec.ID
	p.fingerprint = fp
	p.lastSavedAt = rec.UpdatedAt
	p.queued = nil
	p.cancelTimerLocked()
	p.mu.Unlock()

	p.log.Warn("stored canvas found after failed load, dropping local edits",
		zap.String("canvas_id", rec.ID), zap.Int("nodes", len(snap.Nodes)))
	if p.opts.OnReload != nil {
		p.opts.OnReload(snap)
	}
	return true, nil
}

func (p *Pipeline) finishLoad(state State, err error, rec *store.Record, fp string) {
	p.mu.Lock()
	p.state = state
	p.lastErr = err
	p.loadFailed = err != nil
	if rec != nil {
		p.canvasID = rec.ID
		p.fingerprint = fp
		p.lastSavedAt = rec.UpdatedAt
	}
	st, ls := p.snapshotLocked()
	closed := p.closed
	if !closed {
		p.tickDone.Add(1)
	}
	p.mu.Unlock()

	if closed {
		return
	}
	go p.relabel()
	notify(ls, st)
}

// Observe records the newest snapshot and (re)arms the debounce timer. Only
// the last snapshot observed within one window is saved. Calls before Load
// completes or after Close are ignored.
func (p *Pipeline) Observe(snap canvas.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.state == StateLoading {
		return
	}
	c := snap.Clone()
	p.pending = &c
	p.gen++
	gen := p.gen
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.opts.Debounce, func() { p.fire(gen) })
}

func (p *Pipeline) fire(gen uint64) {
	p.mu.Lock()
	if p.closed || gen != p.gen || p.pending == nil {
		p.mu.Unlock()
		return
	}
	snap := *p.pending
	p.pending = nil
	p.timer = nil
	p.mu.Unlock()

	_ = p.trigger(context.Background(), snap)
}

// SaveNow saves snap immediately, cancelling any pending debounce. When a
// save is already in flight snap becomes the single queued next save and
// SaveNow returns ErrQueued without waiting for it.
func (p *Pipeline) SaveNow(ctx context.Context, snap canvas.Snapshot) error {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return ErrClosed
	case p.state == StateLoading:
		p.mu.Unlock()
		return ErrNotLoaded
	}
	p.cancelTimerLocked()
	p.mu.Unlock()
	return p.trigger(ctx, snap.Clone())
}

// Flush runs the pending debounced save, if any, right away.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.closed || p.pending == nil {
		p.mu.Unlock()
		return nil
	}
	snap := *p.pending
	p.cancelTimerLocked()
	p.mu.Unlock()
	return p.trigger(ctx, snap)
}

func (p *Pipeline) cancelTimerLocked() {
	p.gen++
	p.pending = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// trigger runs a save, or queues snap behind the one in flight. The goroutine
// that owns the in-flight save drains the queue before returning.
func (p *Pipeline) trigger(ctx context.Context, snap canvas.Snapshot) error {
	p.mu.Lock()
	if p.saving {
		p.queued = &snap
		p.mu.Unlock()
		return ErrQueued
	}
	p.saving = true
	p.state = StateSaving
	st, ls := p.snapshotLocked()
	p.mu.Unlock()
	notify(ls, st)

	first := p.save(ctx, snap)
	for {
		p.mu.Lock()
		if p.queued == nil || p.closed {
			p.queued = nil
			p.saving = false
			if !p.closed {
				p.state = StateIdle
				if p.lastErr != nil {
					p.state = StateError
				}
			}
			st, ls := p.snapshotLocked()
			closed := p.closed
			p.mu.Unlock()
			if !closed {
				notify(ls, st)
			}
			return first
		}
		next := *p.queued
		p.queued = nil
		p.mu.Unlock()
		_ = p.save(context.Background(), next)
	}
}

// save performs one write: load retry, fingerprint check, thumbnail, upsert,
// cleanup.
func (p *Pipeline) save(ctx context.Context, snap canvas.Snapshot) error {
	start := p.opts.Now()
	reloaded, err := p.retryLoad(ctx)
	if err != nil {
		return p.fail(err, start)
	}
	if reloaded {
		return nil
	}

	fp, err := canvas.Fingerprint(snap)
	if err != nil {
		return p.fail(fmt.Errorf("%w: %w", ErrSaveFailure, err), start)
	}

	p.mu.Lock()
	if fp == p.fingerprint {
		// The store already holds exactly this content.
		p.lastErr = nil
		p.mu.Unlock()
		p.opts.Metrics.ObserveSave(metrics.OutcomeSkipped, 0)
		return nil
	}
	canvasID := p.canvasID
	p.mu.Unlock()

	var thumb string
	if len(snap.Nodes) > 0 && p.opts.Thumbnailer != nil {
		thumb, err = p.opts.Thumbnailer.Thumbnail(snap)
		if err != nil {
			p.opts.Metrics.ThumbnailFailed()
			p.log.Warn("thumbnail skipped", zap.String("canvas_id", canvasID), zap.Error(fmt.Errorf("%w: %w", ErrThumbnailFailure, err)))
			thumb = ""
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	in := store.UpsertInput{
		CanvasID:     canvasID,
		OwnerID:      p.opts.OwnerID,
		Name:         p.opts.Name,
		Snapshot:     snap,
		ThumbnailURL: thumb,
	}
	rec, err := p.opts.Store.Upsert(ctx, in)
	if err != nil && canvasID != "" && appErr.IsCode(err, appErr.CodeNotFound) {
		// The record was deleted elsewhere; recreate it under (owner, name).
		in.CanvasID = ""
		rec, err = p.opts.Store.Upsert(ctx, in)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.log.Warn("discarding save result after close", zap.String("canvas_id", canvasID), zap.Error(err))
		return nil
	}
	if err != nil {
		p.mu.Unlock()
		return p.fail(fmt.Errorf("%w: %w", ErrSaveFailure, err), start)
	}
	p.canvasID = rec.ID
	p.fingerprint = fp
	p.lastSavedAt = p.opts.Now()
	p.lastErr = nil
	p.mu.Unlock()
	p.opts.Metrics.ObserveSave(metrics.OutcomeSaved, p.opts.Now().Sub(start))

	n, cerr := p.opts.Cleaner.Cleanup(ctx, p.opts.OwnerID, p.opts.Name)
	p.opts.Metrics.CleanupDone(n, cerr)
	if cerr != nil {
		p.log.Warn("retention cleanup failed", zap.String("canvas_id", rec.ID), zap.Error(fmt.Errorf("%w: %w", ErrCleanupFailure, cerr)))
	} else if n > 0 {
		p.log.Info("removed duplicate canvas records", zap.String("canvas_id", rec.ID), zap.Int("deleted", n))
	}
	return nil
}

func (p *Pipeline) fail(err error, start time.Time) error {
	p.mu.Lock()
	p.lastErr = err
	canvasID := p.canvasID
	p.mu.Unlock()
	p.opts.Metrics.ObserveSave(metrics.OutcomeFailed, p.opts.Now().Sub(start))
	p.log.Warn("canvas save failed", zap.String("canvas_id", canvasID), zap.Error(err))
	return err
}

// relabel re-publishes the state periodically so "Nm ago" labels age.
func (p *Pipeline) relabel() {
	defer p.tickDone.Done()
	t := time.NewTicker(p.opts.LabelTick)
	defer t.Stop()
	last := ""
	for {
		select {
		case <-p.stopTick:
			return
		case <-t.C:
			p.mu.Lock()
			st, ls := p.snapshotLocked()
			p.mu.Unlock()
			if st.LastSavedLabel != last {
				last = st.LastSavedLabel
				notify(ls, st)
			}
		}
	}
}

// State returns the current save status.
func (p *Pipeline) State() SaveState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, _ := p.snapshotLocked()
	return st
}

// CanvasID returns the id of the stored record, empty before the first save
// of a new canvas.
func (p *Pipeline) CanvasID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canvasID
}

// Subscribe registers fn for SaveState changes.
func (p *Pipeline) Subscribe(fn Listener) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Close stops the debounce timer and the relabel ticker. A save already in
// flight completes but its result is dropped.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancelTimerLocked()
	p.queued = nil
	p.mu.Unlock()

	close(p.stopTick)
	p.tickDone.Wait()
}

func (p *Pipeline) snapshotLocked() (SaveState, []Listener) {
	st := SaveState{
		State:          p.state,
		LastSavedAt:    p.lastSavedAt,
		LastSavedLabel: Label(p.lastSavedAt, p.lastErr != nil, p.opts.Now()),
		IsSaving:       p.saving,
		Error:          p.lastErr,
	}
	ls := make([]Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		ls = append(ls, fn)
	}
	return st, ls
}

func notify(ls []Listener, st SaveState) {
	for _, fn := range ls {
		fn(st)
	}
}
