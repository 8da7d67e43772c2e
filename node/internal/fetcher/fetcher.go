package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/freshwatch/freshwatch/node/internal/dispatch"
	"github.com/freshwatch/freshwatch/node/internal/executor"
	"github.com/freshwatch/freshwatch/node/internal/fetch"
	"github.com/freshwatch/freshwatch/pkg/types"
)

// Reporter receives a fetcher's discoveries and its termination. Calls are
// made without any fetcher lock held.
type Reporter interface {
	// ReportSlot records that the slot for ed was observed.
	ReportSlot(k types.ClearKey, ed types.Edition)
	// ReportKnownGood records that the content of ed was fetched.
	ReportKnownGood(k types.ClearKey, ed types.Edition)
	// FetcherFinished is called once, after the fetcher became terminal.
	FetcherFinished(f *Fetcher)
}

// Hook observes discoveries. Discovered returns true to detach itself.
// Implementations must be comparable; pointers are.
type Hook interface {
	Discovered(k types.ClearKey, ed types.Edition) (done bool)
}

// Options tune one Fetcher.
type Options struct {
	Mode Mode
	// Lookahead is the number of sequential editions probed per round.
	Lookahead int
	// Verify fetches the content of the highest found edition each round.
	Verify bool
}

// Fetcher polls for new editions of one key. All methods are safe for
// concurrent use.
type Fetcher struct {
	key  types.ClearKey
	opts Options

	fs   fetch.Subsystem
	exec executor.Executor
	rep  Reporter

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	last     types.Edition // highest edition observed, by us or the registry
	hints    map[types.Edition]struct{}
	hooks    []Hook
	subs     dispatch.Set
	draining bool // evicted from the pool; retire when subs reach zero
	retiring bool
}

// New returns a Fetcher in the Created state. Probing starts above after,
// which is usually the registry's latest slot edition.
func New(key types.ClearKey, after types.Edition, opts Options, fs fetch.Subsystem, exec executor.Executor, rep Reporter) *Fetcher {
	if opts.Lookahead < 1 {
		opts.Lookahead = 1
	}
	if after < types.Unknown {
		after = types.Unknown
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Fetcher{
		key:    key,
		opts:   opts,
		fs:     fs,
		exec:   exec,
		rep:    rep,
		ctx:    ctx,
		cancel: cancel,
		last:   after,
		hints:  make(map[types.Edition]struct{}),
	}
}

// Key returns the key being polled.
func (f *Fetcher) Key() types.ClearKey { return f.key }

// Mode returns Background or Temporary.
func (f *Fetcher) Mode() Mode { return f.opts.Mode }

// State returns the current lifecycle state.
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Last returns the highest edition the fetcher knows about.
func (f *Fetcher) Last() types.Edition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Schedule hands the polling loop to the executor. Only the first call on a
// Created fetcher has any effect.
func (f *Fetcher) Schedule() {
	f.mu.Lock()
	if f.state != Created {
		f.mu.Unlock()
		return
	}
	f.state = Scheduled
	f.mu.Unlock()

	f.exec.Execute(f.run, "fetcher: poll "+f.key.ID())
}

// Cancel stops the fetcher and reports it finished. Idempotent.
func (f *Fetcher) Cancel() {
	f.finish(Cancelled)
}

// Retire stops a draining fetcher on the executor. Callers get the go-ahead
// from RemoveSubscriber.
func (f *Fetcher) Retire() {
	f.exec.Execute(func() { f.finish(Retired) }, "fetcher: retire "+f.key.ID())
}

func (f *Fetcher) finish(to State) {
	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return
	}
	f.state = to
	f.hooks = nil
	f.mu.Unlock()

	f.cancel()
	slog.Debug("fetcher: stopped", "key", f.key.ID(), "mode", f.opts.Mode.String(), "state", to.String())
	f.rep.FetcherFinished(f)
}

// Advance raises the highest known edition without reporting it. The registry
// calls it when it learns of an edition from elsewhere.
func (f *Fetcher) Advance(ed types.Edition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ed > f.last {
		f.last = ed
	}
}

// AddHint asks the fetcher to probe ed ahead of the sequential window.
// Hints at or below the highest known edition are ignored.
func (f *Fetcher) AddHint(ed types.Edition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Terminal() || !ed.Known() || ed <= f.last {
		return
	}
	f.hints[ed] = struct{}{}
}

// Hints returns the pending hinted editions in ascending order.
func (f *Fetcher) Hints() []types.Edition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingHintsLocked()
}

func (f *Fetcher) pendingHintsLocked() []types.Edition {
	out := make([]types.Edition, 0, len(f.hints))
	for ed := range f.hints {
		if ed > f.last {
			out = append(out, ed)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AddHook attaches h until it reports done or the fetcher stops.
func (f *Fetcher) AddHook(h Hook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Terminal() {
		return
	}
	f.hooks = append(f.hooks, h)
}

// AddSubscriber attaches sub. It returns false when the fetcher is retiring
// or stopped and no longer accepts subscribers. Adding a present subscriber
// is a no-op that returns true.
func (f *Fetcher) AddSubscriber(sub types.Subscriber) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retiring || f.state.Terminal() {
		return false
	}
	f.subs.Add(sub)
	return true
}

// RemoveSubscriber detaches sub. retire is true when this left a draining
// fetcher without subscribers; the caller must then call Retire once it has
// released its own locks.
func (f *Fetcher) RemoveSubscriber(sub types.Subscriber) (removed, retire bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.subs.Remove(sub) {
		return false, false
	}
	if f.subs.Len() == 0 && f.draining && !f.retiring && !f.state.Terminal() {
		f.retiring = true
		return true, true
	}
	return true, false
}

// HasSubscriber reports whether sub is attached.
func (f *Fetcher) HasSubscriber(sub types.Subscriber) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs.Has(sub)
}

// HasSubscribers reports whether anyone is attached.
func (f *Fetcher) HasSubscribers() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs.Len() > 0
}

// HasHooks reports whether any hook is still waiting for a discovery.
func (f *Fetcher) HasHooks() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hooks) > 0
}

// Subscribers returns the attached subscribers in attach order.
func (f *Fetcher) Subscribers() []types.Subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs.List()
}

// DrainSubscribers detaches and returns every subscriber.
func (f *Fetcher) DrainSubscribers() []types.Subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs.Drain()
}

// KillOnLoseSubscribers keeps the fetcher running but makes the removal of
// its last subscriber retire it.
func (f *Fetcher) KillOnLoseSubscribers() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draining = true
}

// Draining reports whether KillOnLoseSubscribers is in effect.
func (f *Fetcher) Draining() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draining
}

// Readmit undoes KillOnLoseSubscribers when the fetcher is wanted again. It
// returns false if the fetcher is already retiring or stopped.
func (f *Fetcher) Readmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retiring || f.state.Terminal() {
		return false
	}
	f.draining = false
	return true
}

func (f *Fetcher) run() {
	f.mu.Lock()
	if f.state != Scheduled {
		f.mu.Unlock()
		return
	}
	f.state = Polling
	f.mu.Unlock()

	bo := f.fs.Backoff().New()
	for {
		found := f.round()
		if f.ctx.Err() != nil {
			return
		}
		if found {
			bo.Reset()
			continue
		}
		if !sleep(f.ctx, bo.Next()) {
			return
		}
	}
}

// candidates returns hinted editions first, then the lookahead window, without
// duplicates.
func (f *Fetcher) candidates() []types.Edition {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.pendingHintsLocked()
	seen := make(map[types.Edition]struct{}, len(out)+f.opts.Lookahead)
	for _, ed := range out {
		seen[ed] = struct{}{}
	}
	for i := 1; i <= f.opts.Lookahead; i++ {
		ed := f.last + types.Edition(i)
		if _, ok := seen[ed]; ok {
			continue
		}
		out = append(out, ed)
	}
	return out
}

// round probes every candidate once and reports what it finds. It returns
// true if anything new was found.
func (f *Fetcher) round() bool {
	best := types.Unknown
	for _, ed := range f.candidates() {
		if f.ctx.Err() != nil {
			return false
		}
		err := f.fs.Probe(f.ctx, f.key.SlotURI(ed))
		if err != nil {
			if !errors.Is(err, fetch.ErrNotFound) && f.ctx.Err() == nil {
				slog.Debug("fetcher: probe failed", "key", f.key.ID(), "edition", int64(ed), "err", err)
			}
			continue
		}
		if !f.found(ed) {
			return false
		}
		f.rep.ReportSlot(f.key, ed)
		f.runHooks(ed)
		if ed > best {
			best = ed
		}
	}

	if best.Known() && f.opts.Verify {
		f.verify(best)
	}
	return best.Known()
}

// found records ed. It returns false if the fetcher already stopped. A stop
// that lands after found returns does not recall the report that follows, so
// one result may still reach the Reporter after Cancel.
func (f *Fetcher) found(ed types.Edition) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Terminal() {
		return false
	}
	delete(f.hints, ed)
	if ed > f.last {
		f.last = ed
	}
	for h := range f.hints {
		if h <= f.last {
			delete(f.hints, h)
		}
	}
	return true
}

func (f *Fetcher) verify(ed types.Edition) {
	uri := f.key.At(ed).URI()
	if _, err := f.fs.FetchContent(f.ctx, uri); err != nil {
		if f.ctx.Err() == nil {
			slog.Debug("fetcher: content fetch failed", "key", f.key.ID(), "edition", int64(ed), "err", err)
		}
		return
	}
	// Best effort: a Cancel after this check can still let the report through.
	if f.State().Terminal() {
		return
	}
	f.rep.ReportKnownGood(f.key, ed)
}

func (f *Fetcher) runHooks(ed types.Edition) {
	f.mu.Lock()
	hooks := append([]Hook(nil), f.hooks...)
	f.mu.Unlock()
	if len(hooks) == 0 {
		return
	}

	var done []Hook
	for _, h := range hooks {
		if h.Discovered(f.key, ed) {
			done = append(done, h)
		}
	}
	if len(done) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.hooks[:0]
	for _, h := range f.hooks {
		if !containsHook(done, h) {
			kept = append(kept, h)
		}
	}
	f.hooks = kept
}

func containsHook(hs []Hook, h Hook) bool {
	for _, x := range hs {
		if x == h {
			return true
		}
	}
	return false
}
