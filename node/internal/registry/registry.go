package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/freshwatch/freshwatch/node/internal/config"
	"github.com/freshwatch/freshwatch/node/internal/dispatch"
	"github.com/freshwatch/freshwatch/node/internal/executor"
	"github.com/freshwatch/freshwatch/node/internal/fetch"
	"github.com/freshwatch/freshwatch/node/internal/fetcher"
	"github.com/freshwatch/freshwatch/node/internal/pool"
	"github.com/freshwatch/freshwatch/pkg/types"
)

// keyState is everything the registry knows about one key. Each subscriber
// of the key is held by exactly one of background, temporary or passive.
type keyState struct {
	knownGood  types.Edition
	latestSlot types.Edition

	background *fetcher.Fetcher
	// temporary is pooled, or draining after eviction.
	temporary *fetcher.Fetcher
	passive   dispatch.Set
}

// Registry tracks freshness for versioned keys. Create one with New; the zero
// value is not usable.
type Registry struct {
	cfg  config.TrackerConfig
	fs   fetch.Subsystem
	exec executor.Executor
	disp *dispatch.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	keys   map[types.ClearKey]*keyState
	pool   *pool.Pool[types.ClearKey, *fetcher.Fetcher]
	closed bool

	hintProbes atomic.Uint64
	prefetches atomic.Uint64
}

// New returns a Registry probing through fs and running all asynchronous work
// on exec.
func New(cfg config.TrackerConfig, fs fetch.Subsystem, exec executor.Executor) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:    cfg,
		fs:     fs,
		exec:   exec,
		disp:   dispatch.NewDispatcher(exec),
		ctx:    ctx,
		cancel: cancel,
		keys:   make(map[types.ClearKey]*keyState),
		pool:   pool.New[types.ClearKey, *fetcher.Fetcher](cfg.MaxTemporaryFetchers),
	}
}

func (r *Registry) stateLocked(k types.ClearKey) *keyState {
	st, ok := r.keys[k]
	if !ok {
		st = &keyState{knownGood: types.Unknown, latestSlot: types.Unknown}
		r.keys[k] = st
	}
	return st
}

// LookupKnownGood returns the highest verified edition of k, or Unknown.
func (r *Registry) LookupKnownGood(k types.ClearKey) types.Edition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.keys[k]; ok {
		return st.knownGood
	}
	return types.Unknown
}

// LookupLatestSlot returns the highest observed edition of k, or Unknown.
func (r *Registry) LookupLatestSlot(k types.ClearKey) types.Edition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.keys[k]; ok {
		return st.latestSlot
	}
	return types.Unknown
}

// Subscribe registers sub for updates of k. k.Edition is the edition sub
// already knows; if the registry is ahead, sub is notified right away with
// the best state known. With runBackground a background fetcher keeps polling
// k until the last background subscriber leaves.
//
// Subscribing an already registered subscriber is a no-op.
func (r *Registry) Subscribe(k types.Key, sub types.Subscriber, runBackground bool) error {
	if !dispatch.Comparable(sub) {
		return ErrInvalidSubscriber
	}
	start := k.Edition
	if start < types.Unknown {
		slog.Error("registry: subscribing with negative edition", "key", k.ID(), "edition", int64(start))
		start = -start
	}

	ck := k.Clear()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	st := r.stateLocked(ck)
	if holdsLocked(st, sub) {
		r.mu.Unlock()
		return nil
	}

	var sched *fetcher.Fetcher
	switch {
	case runBackground:
		if st.background == nil || !st.background.AddSubscriber(sub) {
			st.background = r.newFetcherLocked(ck, fetcher.Background, maxEdition(st.latestSlot, start-1))
			st.background.AddSubscriber(sub)
			sched = st.background
		}
	case st.temporary != nil && st.temporary.AddSubscriber(sub):
	default:
		if st.temporary != nil {
			// Retiring; FetcherFinished will find it already detached.
			r.detachTemporaryLocked(ck, st)
		}
		st.passive.Add(sub)
	}

	var notify []types.Subscriber
	switch {
	case st.knownGood > start:
		notify = r.disp.EnqueueAll([]types.Subscriber{sub}, types.Update{
			Key:        ck.At(st.knownGood),
			Edition:    st.knownGood,
			KnownGood:  true,
			NewSlotToo: st.latestSlot > start,
		})
	case st.latestSlot > start:
		notify = r.disp.EnqueueAll([]types.Subscriber{sub}, types.Update{
			Key:     ck.At(st.latestSlot),
			Edition: st.latestSlot,
		})
	}
	r.mu.Unlock()

	slog.Debug("registry: subscribed", "key", ck.ID(), "edition", int64(start), "background", runBackground)
	r.disp.StartAll(notify)
	if sched != nil {
		sched.Schedule()
	}
	return nil
}

// Unsubscribe removes sub from k. A fetcher left without subscribers or
// pending hooks by this is stopped. Unknown subscribers are logged and ignored.
func (r *Registry) Unsubscribe(k types.ClearKey, sub types.Subscriber) {
	if !dispatch.Comparable(sub) {
		slog.Error("registry: unsubscribe with invalid subscriber", "key", k.ID())
		return
	}

	var toCancel []*fetcher.Fetcher
	var toRetire *fetcher.Fetcher

	r.mu.Lock()
	st, ok := r.keys[k]
	if !ok {
		r.mu.Unlock()
		slog.Error("registry: unsubscribe for untracked key", "key", k.ID())
		return
	}

	found := false
	bg := st.background
	if bg != nil {
		if removed, _ := bg.RemoveSubscriber(sub); removed {
			found = true
			if !bg.HasSubscribers() {
				st.background = nil
				toCancel = append(toCancel, bg)
			}
		}
	}
	if tmp := st.temporary; tmp != nil {
		removed, retire := tmp.RemoveSubscriber(sub)
		if removed && found {
			slog.Error("registry: subscriber held by both background and temporary fetchers",
				"key", k.ID())
			if st.background == bg {
				r.moveToPassiveLocked(st, bg)
				st.background = nil
				toCancel = append(toCancel, bg)
			}
			r.moveToPassiveLocked(st, tmp)
			r.detachTemporaryLocked(k, st)
			toCancel = append(toCancel, tmp)
		} else if removed {
			found = true
			switch {
			case retire:
				r.detachTemporaryLocked(k, st)
				toRetire = tmp
			case !tmp.HasSubscribers() && !tmp.HasHooks():
				// A pending prefetch keeps the fetcher in the pool.
				r.detachTemporaryLocked(k, st)
				toCancel = append(toCancel, tmp)
			}
		}
	}
	if !found && st.passive.Remove(sub) {
		found = true
	}
	r.mu.Unlock()

	if !found {
		slog.Error("registry: unsubscribe of unknown subscriber", "key", k.ID())
	}
	for _, f := range toCancel {
		f.Cancel()
	}
	if toRetire != nil {
		toRetire.Retire()
	}
}

// StartTemporaryBackgroundFetch polls k for a while. An existing temporary
// fetcher for the key gets k.Edition as a hint instead of a sibling. With
// prefetch, the first edition found above the current known good one has its
// content fetched and is then recorded as known good.
func (r *Registry) StartTemporaryBackgroundFetch(k types.Key, prefetch bool) {
	ck := k.Clear()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		slog.Debug("registry: temporary fetch after close", "key", ck.ID())
		return
	}
	st := r.stateLocked(ck)

	var sched *fetcher.Fetcher
	f := st.temporary
	if f != nil && f.Draining() && !f.Readmit() {
		r.detachTemporaryLocked(ck, st)
		f = nil
	}
	if f != nil {
		f.AddHint(k.Edition)
	} else {
		f = r.newFetcherLocked(ck, fetcher.Temporary, maxEdition(st.latestSlot, k.Edition-1))
		st.temporary = f
		sched = f
	}
	if prefetch {
		f.AddHook(&prefetchHook{r: r, req: PrefetchRequest{Key: ck, MinEdition: st.knownGood}})
	}
	evicted := r.pool.Push(ck, f)
	for _, ev := range evicted {
		if est, ok := r.keys[ev.Key()]; ok && est.temporary == ev {
			est.temporary = nil
		}
	}
	r.mu.Unlock()

	for _, ev := range evicted {
		slog.Debug("registry: evicted temporary fetcher", "key", ev.Key().ID())
		ev.Cancel()
	}
	if sched != nil {
		sched.Schedule()
	}
}

// UpdateKnownGood records that the content of edition ed of k was fetched.
// Both editions only ever move forward; subscribers hear about an advance
// asynchronously and in commit order.
func (r *Registry) UpdateKnownGood(k types.ClearKey, ed types.Edition) {
	if !ed.Known() {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	st := r.stateLocked(k)
	if ed <= st.knownGood {
		r.mu.Unlock()
		return
	}
	st.knownGood = ed
	newSlot := ed > st.latestSlot
	if newSlot {
		st.latestSlot = ed
	}
	advanceLocked(st, ed)
	start := r.enqueueLocked(st, types.Update{
		Key:        k.At(ed),
		Edition:    ed,
		KnownGood:  true,
		NewSlotToo: newSlot,
	})
	r.mu.Unlock()

	slog.Debug("registry: known good advanced", "key", k.ID(), "edition", int64(ed), "new_slot", newSlot)
	r.disp.StartAll(start)
}

// UpdateSlot records that the slot for edition ed of k was observed.
func (r *Registry) UpdateSlot(k types.ClearKey, ed types.Edition) {
	if !ed.Known() {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	st := r.stateLocked(k)
	if ed <= st.latestSlot {
		r.mu.Unlock()
		return
	}
	st.latestSlot = ed
	advanceLocked(st, ed)
	start := r.enqueueLocked(st, types.Update{Key: k.At(ed), Edition: ed})
	r.mu.Unlock()

	slog.Debug("registry: latest slot advanced", "key", k.ID(), "edition", int64(ed))
	r.disp.StartAll(start)
}

// HintUpdate is a non-authoritative signal that k.Edition may exist. Unless
// the edition is already below the latest observed slot, the edition's slot
// block is probed once in the background. A failed probe is ignored and a
// successful one records the slot.
func (r *Registry) HintUpdate(k types.Key) {
	ed := k.Edition
	if !ed.Known() {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	latest := types.Unknown
	if st, ok := r.keys[k.Clear()]; ok {
		latest = st.latestSlot
	}
	r.mu.Unlock()
	if ed < latest {
		return
	}

	r.hintProbes.Add(1)
	uri := k.SlotURI(ed)
	r.exec.Execute(func() {
		if err := r.fs.Probe(r.ctx, uri); err != nil {
			slog.Debug("registry: hint probe failed", "key", k.ID(), "edition", int64(ed), "err", err)
			return
		}
		r.UpdateSlot(k.Clear(), ed)
	}, "registry: hint probe")
}

// HintUpdateURI parses uri and calls HintUpdate. The URI must carry an
// edition.
func (r *Registry) HintUpdateURI(uri string) error {
	k, err := types.ParseKey(uri)
	if err != nil {
		return fmt.Errorf("registry: hint: %w", err)
	}
	if !k.Edition.Known() {
		return fmt.Errorf("registry: hint %q: %w: edition required", uri, types.ErrMalformedKey)
	}
	r.HintUpdate(k)
	return nil
}

// FetcherFinished forgets f once it has stopped. It tolerates fetchers that
// were already removed. Subscribers still attached to f keep receiving
// updates through the key's passive set.
func (r *Registry) FetcherFinished(f *fetcher.Fetcher) {
	k := f.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.keys[k]
	if !ok {
		return
	}
	switch f {
	case st.background:
		slog.Error("registry: background fetcher stopped while registered", "key", k.ID())
		r.moveToPassiveLocked(st, f)
		st.background = nil
	case st.temporary:
		r.moveToPassiveLocked(st, f)
		r.detachTemporaryLocked(k, st)
	}
}

// SetPoolCapacity changes how many temporary fetchers may poll at once.
func (r *Registry) SetPoolCapacity(n int) {
	r.mu.Lock()
	evicted := r.pool.SetCap(n)
	for _, ev := range evicted {
		if st, ok := r.keys[ev.Key()]; ok && st.temporary == ev {
			st.temporary = nil
		}
	}
	capacity := r.pool.Cap()
	r.mu.Unlock()

	slog.Info("registry: temporary fetcher capacity changed", "capacity", capacity, "evicted", len(evicted))
	for _, ev := range evicted {
		ev.Cancel()
	}
}

// Close stops every fetcher, refuses further subscriptions and waits for
// queued notifications to be delivered.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	var stop []*fetcher.Fetcher
	for k, st := range r.keys {
		if st.background != nil {
			stop = append(stop, st.background)
			st.background = nil
		}
		if st.temporary != nil {
			stop = append(stop, st.temporary)
			st.temporary = nil
			r.pool.Remove(k)
		}
	}
	r.mu.Unlock()

	for _, f := range stop {
		f.Cancel()
	}
	r.cancel()
	r.disp.Wait()
	slog.Info("registry: closed", "fetchers_stopped", len(stop))
}

func (r *Registry) newFetcherLocked(k types.ClearKey, mode fetcher.Mode, after types.Edition) *fetcher.Fetcher {
	opts := fetcher.Options{Mode: mode, Lookahead: r.cfg.TemporaryLookahead}
	if mode == fetcher.Background {
		opts.Lookahead = r.cfg.BackgroundLookahead
		opts.Verify = r.cfg.VerifyBackground
	}
	return fetcher.New(k, after, opts, r.fs, r.exec, reporter{r: r})
}

// detachTemporaryLocked drops the key's temporary fetcher from the state and,
// if it is still pooled, from the pool.
func (r *Registry) detachTemporaryLocked(k types.ClearKey, st *keyState) {
	f := st.temporary
	st.temporary = nil
	if f == nil {
		return
	}
	if pooled, ok := r.pool.Get(k); ok && pooled == f {
		r.pool.Remove(k)
	}
}

func (r *Registry) moveToPassiveLocked(st *keyState, f *fetcher.Fetcher) {
	for _, sub := range f.DrainSubscribers() {
		st.passive.Add(sub)
	}
}

// enqueueLocked queues u for every subscriber of the key and returns those
// whose mailbox must be started once the lock is released.
func (r *Registry) enqueueLocked(st *keyState, u types.Update) []types.Subscriber {
	return r.disp.EnqueueAll(subscribersLocked(st), u)
}

func subscribersLocked(st *keyState) []types.Subscriber {
	var out []types.Subscriber
	if st.background != nil {
		out = append(out, st.background.Subscribers()...)
	}
	if st.temporary != nil {
		out = append(out, st.temporary.Subscribers()...)
	}
	return append(out, st.passive.List()...)
}

func holdsLocked(st *keyState, sub types.Subscriber) bool {
	return (st.background != nil && st.background.HasSubscriber(sub)) ||
		(st.temporary != nil && st.temporary.HasSubscriber(sub)) ||
		st.passive.Has(sub)
}

func advanceLocked(st *keyState, ed types.Edition) {
	if st.background != nil {
		st.background.Advance(ed)
	}
	if st.temporary != nil {
		st.temporary.Advance(ed)
	}
}

func maxEdition(a, b types.Edition) types.Edition {
	if a > b {
		return a
	}
	return b
}

// reporter feeds fetcher results back into the registry.
type reporter struct{ r *Registry }

func (rp reporter) ReportSlot(k types.ClearKey, ed types.Edition)      { rp.r.UpdateSlot(k, ed) }
func (rp reporter) ReportKnownGood(k types.ClearKey, ed types.Edition) { rp.r.UpdateKnownGood(k, ed) }
func (rp reporter) FetcherFinished(f *fetcher.Fetcher)                 { rp.r.FetcherFinished(f) }
