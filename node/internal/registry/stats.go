package registry

import "github.com/freshwatch/freshwatch/pkg/types"

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Keys               int    `json:"keys"`
	BackgroundFetchers int    `json:"background_fetchers"`
	TemporaryFetchers  int    `json:"temporary_fetchers"`
	DrainingFetchers   int    `json:"draining_fetchers"`
	Subscribers        int    `json:"subscribers"`
	PoolCapacity       int    `json:"pool_capacity"`
	Evictions          uint64 `json:"evictions"`
	Drained            uint64 `json:"drained"`
	HintProbes         uint64 `json:"hint_probes"`
	Prefetches         uint64 `json:"prefetches"`
	Notifications      int64  `json:"notifications"`
	Backlog            int    `json:"backlog"`
}

// Stats returns current counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	s := Stats{
		Keys:              len(r.keys),
		TemporaryFetchers: r.pool.Len(),
		PoolCapacity:      r.pool.Cap(),
		Evictions:         r.pool.Evicted(),
		Drained:           r.pool.Drained(),
	}
	for _, st := range r.keys {
		if st.background != nil {
			s.BackgroundFetchers++
		}
		if st.temporary != nil && st.temporary.Draining() {
			s.DrainingFetchers++
		}
		s.Subscribers += len(subscribersLocked(st))
	}
	r.mu.Unlock()

	s.HintProbes = r.hintProbes.Load()
	s.Prefetches = r.prefetches.Load()
	s.Notifications = r.disp.Delivered()
	s.Backlog = r.disp.Backlog()
	return s
}

// Freshness is the state of one key.
type Freshness struct {
	Key         types.ClearKey `json:"-"`
	KnownGood   types.Edition  `json:"known_good"`
	LatestSlot  types.Edition  `json:"latest_slot"`
	Background  bool           `json:"background"`
	Temporary   bool           `json:"temporary"`
	Subscribers int            `json:"subscribers"`
}

// Freshness returns the state of k read under a single lock acquisition.
// Untracked keys report Unknown editions.
func (r *Registry) Freshness(k types.ClearKey) Freshness {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Freshness{Key: k, KnownGood: types.Unknown, LatestSlot: types.Unknown}
	st, ok := r.keys[k]
	if !ok {
		return out
	}
	out.KnownGood = st.knownGood
	out.LatestSlot = st.latestSlot
	out.Background = st.background != nil
	out.Temporary = st.temporary != nil
	out.Subscribers = len(subscribersLocked(st))
	return out
}

// Keys returns every key with freshness state, in no particular order.
func (r *Registry) Keys() []types.ClearKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ClearKey, 0, len(r.keys))
	for k := range r.keys {
		out = append(out, k)
	}
	return out
}
