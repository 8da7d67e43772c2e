package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/freshwatch/freshwatch/node/internal/registry"
)

type staticStats registry.Stats

func (s staticStats) Stats() registry.Stats { return registry.Stats(s) }

func scrape(t *testing.T, src StatsSource) map[string]*dto.MetricFamily {
	t.Helper()
	srv := httptest.NewServer(Handler(src))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type: got %q, want text/plain", ct)
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}
	return mfs
}

func valueOf(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	return 0
}

func TestHandler_ExposesStats(t *testing.T) {
	mfs := scrape(t, staticStats{
		Keys:               4,
		BackgroundFetchers: 2,
		TemporaryFetchers:  1,
		DrainingFetchers:   1,
		Subscribers:        6,
		PoolCapacity:       50,
		Evictions:          3,
		Drained:            1,
		HintProbes:         9,
		Prefetches:         2,
		Notifications:      17,
	})

	simple := map[string]float64{
		nameKeys:          4,
		nameSubscribers:   6,
		namePoolCapacity:  50,
		nameHintProbes:    9,
		namePrefetches:    2,
		nameNotifications: 17,
		nameBacklog:       0,
	}
	for name, want := range simple {
		mf, ok := mfs[name]
		if !ok {
			t.Errorf("%s missing", name)
			continue
		}
		if got := valueOf(mf.GetMetric()[0]); got != want {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}

	byMode := map[string]float64{}
	for _, m := range mfs[nameFetchers].GetMetric() {
		byMode[m.GetLabel()[0].GetValue()] = valueOf(m)
	}
	if byMode["background"] != 2 || byMode["temporary"] != 1 || byMode["draining"] != 1 {
		t.Errorf("fetchers by mode: got %v", byMode)
	}
	if got := mfs[namePoolPopped].GetType(); got != dto.MetricType_COUNTER {
		t.Errorf("%s type: got %v, want counter", namePoolPopped, got)
	}
}

func TestHandler_NegotiatesProtobuf(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/vnd.google.protobuf;proto=io.prometheus.client.MetricFamily;encoding=delimited")
	rec := httptest.NewRecorder()
	Handler(staticStats{}).ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/vnd.google.protobuf") {
		t.Errorf("Content-Type: got %q, want protobuf", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty body")
	}
}
