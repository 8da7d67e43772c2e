package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/freshwatch/freshwatch/node/internal/fetch"
	"github.com/freshwatch/freshwatch/pkg/types"
)

// Registry is the part of the freshness registry a Retriever needs.
type Registry interface {
	Subscribe(k types.Key, sub types.Subscriber, runBackground bool) error
	Unsubscribe(k types.ClearKey, sub types.Subscriber)
}

// Result is one retrieved edition.
type Result struct {
	Update  types.Update
	Content fetch.Content
}

// Callback receives results in increasing edition order.
type Callback func(Result)

// Retriever fetches content for each new edition of a key and hands it to a
// Callback. Editions at or below the last delivered one are skipped.
type Retriever struct {
	reg Registry
	fs  fetch.Subsystem
	key types.Key
	cb  Callback

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	last types.Edition
}

// Subscribe registers a Retriever for key with reg. key.Edition is the edition
// the caller already has.
func Subscribe(reg Registry, fs fetch.Subsystem, key types.Key, cb Callback, runBackground bool) (*Retriever, error) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Retriever{
		reg:    reg,
		fs:     fs,
		key:    key,
		cb:     cb,
		ctx:    ctx,
		cancel: cancel,
		last:   key.Edition,
	}
	if err := reg.Subscribe(key, r, runBackground); err != nil {
		cancel()
		return nil, fmt.Errorf("retriever: subscribe %s: %w", key.ClearKey, err)
	}
	return r, nil
}

// Unsubscribe detaches the Retriever and abandons any fetch in progress.
func (r *Retriever) Unsubscribe() {
	r.cancel()
	r.reg.Unsubscribe(r.key.Clear(), r)
}

// Last returns the newest delivered edition.
func (r *Retriever) Last() types.Edition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// OnFoundEdition implements types.Subscriber. Updates for one subscriber
// arrive one at a time, so fetching here keeps results in order.
func (r *Retriever) OnFoundEdition(u types.Update) {
	if r.ctx.Err() != nil || u.Edition <= r.Last() {
		return
	}
	uri := u.Key.URI()
	content, err := r.fs.FetchContent(r.ctx, uri)
	if err != nil {
		if r.ctx.Err() == nil {
			slog.Warn("retriever: fetch failed", "key", u.Key.ID(), "edition", int64(u.Edition), "err", err)
		}
		return
	}

	r.mu.Lock()
	if u.Edition <= r.last {
		r.mu.Unlock()
		return
	}
	r.last = u.Edition
	r.mu.Unlock()

	r.cb(Result{Update: u, Content: content})
}
