package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status             string `json:"status"`
	Keys               int    `json:"keys"`
	BackgroundFetchers int    `json:"background_fetchers"`
	TemporaryFetchers  int    `json:"temporary_fetchers"`
}

// KeyResponse is one key in GET /api/v1/keys or GET /api/v1/keys/{id}.
type KeyResponse struct {
	ID          string `json:"id"`
	URI         string `json:"uri"`
	KnownGood   int64  `json:"known_good"`  // -1 when unknown
	LatestSlot  int64  `json:"latest_slot"` // -1 when unknown
	Background  bool   `json:"background"`
	Temporary   bool   `json:"temporary"`
	Subscribers int    `json:"subscribers"`
}

// HintRequest is the body of POST /api/v1/hints.
type HintRequest struct {
	URI string `json:"uri"`
}

// FetchRequest is the body of POST /api/v1/fetches.
type FetchRequest struct {
	URI      string `json:"uri"`
	Prefetch bool   `json:"prefetch"`
}

// AcceptedResponse acknowledges an asynchronous request.
type AcceptedResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
