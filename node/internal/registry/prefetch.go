package registry

import (
	"log/slog"
	"sync/atomic"

	"github.com/freshwatch/freshwatch/node/internal/fetch"
	"github.com/freshwatch/freshwatch/pkg/types"
)

// PrefetchRequest asks for the content of the first edition of Key found
// above MinEdition.
type PrefetchRequest struct {
	Key        types.ClearKey
	MinEdition types.Edition
}

// PrefetchResult is the outcome of one prefetch.
type PrefetchResult struct {
	Request PrefetchRequest
	Edition types.Edition
	Content fetch.Content
	Err     error
}

// prefetchHook is attached to a temporary fetcher. It fires once, for the
// first discovery above the request's minimum.
type prefetchHook struct {
	r     *Registry
	req   PrefetchRequest
	fired atomic.Bool
}

func (h *prefetchHook) Discovered(_ types.ClearKey, ed types.Edition) bool {
	if ed <= h.req.MinEdition {
		return false
	}
	if !h.fired.CompareAndSwap(false, true) {
		return true
	}
	req := h.req
	h.r.exec.Execute(func() {
		h.r.completePrefetch(h.r.prefetch(req, ed))
	}, "registry: prefetch "+req.Key.ID())
	return true
}

// prefetch fetches the content of ed.
func (r *Registry) prefetch(req PrefetchRequest, ed types.Edition) PrefetchResult {
	r.prefetches.Add(1)
	content, err := r.fs.FetchContent(r.ctx, req.Key.At(ed).URI())
	return PrefetchResult{Request: req, Edition: ed, Content: content, Err: err}
}

// completePrefetch records a successful prefetch as known good.
func (r *Registry) completePrefetch(res PrefetchResult) {
	if res.Err != nil {
		slog.Debug("registry: prefetch failed",
			"key", res.Request.Key.ID(), "edition", int64(res.Edition), "err", res.Err)
		return
	}
	slog.Debug("registry: prefetch succeeded",
		"key", res.Request.Key.ID(), "edition", int64(res.Edition), "bytes", res.Content.Size)
	r.UpdateKnownGood(res.Request.Key, res.Edition)
}
