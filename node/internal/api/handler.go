package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/freshwatch/freshwatch/node/internal/registry"
	"github.com/freshwatch/freshwatch/pkg/types"
)

// maxBodyBytes bounds request bodies; they only carry a URI.
const maxBodyBytes = 16 << 10

// Tracker is the registry surface the API drives.
type Tracker interface {
	Keys() []types.ClearKey
	Freshness(k types.ClearKey) registry.Freshness
	Stats() registry.Stats
	HintUpdateURI(uri string) error
	StartTemporaryBackgroundFetch(k types.Key, prefetch bool)
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	tracker Tracker
	mux     *http.ServeMux
}

// New creates a Handler wired to tracker and registers all routes.
func New(tracker Tracker) http.Handler {
	h := &Handler{tracker: tracker, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/keys", h.listKeys)
	h.mux.HandleFunc("/api/v1/keys/", h.getKey) // subtree, extracts {id-or-uri}
	h.mux.HandleFunc("/api/v1/hints", h.hint)
	h.mux.HandleFunc("/api/v1/fetches", h.fetch)
	h.mux.HandleFunc("/api/v1/stats", h.stats)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := h.tracker.Stats()
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:             "ok",
		Keys:               st.Keys,
		BackgroundFetchers: st.BackgroundFetchers,
		TemporaryFetchers:  st.TemporaryFetchers + st.DrainingFetchers,
	})
}

// listKeys returns GET /api/v1/keys, sorted by URI.
func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	keys := h.tracker.Keys()
	out := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, toKeyResponse(h.tracker.Freshness(k)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	jsonResp(w, http.StatusOK, out)
}

// getKey returns GET /api/v1/keys/{id-or-uri}. A USK URI (with or without
// edition) or the key's short ID are both accepted.
func (h *Handler) getKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ref := strings.TrimPrefix(r.URL.Path, "/api/v1/keys/")
	if ref == "" {
		h.listKeys(w, r)
		return
	}

	k, ok := h.resolve(ref)
	if !ok {
		jsonErr(w, http.StatusNotFound, "key not tracked")
		return
	}
	jsonResp(w, http.StatusOK, toKeyResponse(h.tracker.Freshness(k)))
}

// hint handles POST /api/v1/hints.
func (h *Handler) hint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req HintRequest
	if err := decodeBody(w, r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.tracker.HintUpdateURI(req.URI); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	k, _ := types.ParseKey(req.URI)
	jsonResp(w, http.StatusAccepted, AcceptedResponse{ID: k.ID(), URI: k.URI()})
}

// fetch handles POST /api/v1/fetches.
func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req FetchRequest
	if err := decodeBody(w, r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	k, err := types.ParseKey(req.URI)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	h.tracker.StartTemporaryBackgroundFetch(k, req.Prefetch)
	jsonResp(w, http.StatusAccepted, AcceptedResponse{ID: k.ID(), URI: k.ClearKey.String()})
}

// stats returns GET /api/v1/stats.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.tracker.Stats())
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) resolve(ref string) (types.ClearKey, bool) {
	if strings.HasPrefix(ref, "USK@") || strings.HasPrefix(ref, "freenet:") {
		k, err := types.ParseKey(ref)
		if err != nil {
			return types.ClearKey{}, false
		}
		for _, known := range h.tracker.Keys() {
			if known == k.Clear() {
				return known, true
			}
		}
		return types.ClearKey{}, false
	}
	for _, known := range h.tracker.Keys() {
		if known.ID() == ref {
			return known, true
		}
	}
	return types.ClearKey{}, false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func toKeyResponse(f registry.Freshness) KeyResponse {
	return KeyResponse{
		ID:          f.Key.ID(),
		URI:         f.Key.String(),
		KnownGood:   int64(f.KnownGood),
		LatestSlot:  int64(f.LatestSlot),
		Background:  f.Background,
		Temporary:   f.Temporary,
		Subscribers: f.Subscribers,
	}
}
