package metrics

import (
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/freshwatch/freshwatch/node/internal/registry"
)

// Metric names.
const (
	nameKeys          = "freshwatch_keys"
	nameFetchers      = "freshwatch_fetchers"
	nameSubscribers   = "freshwatch_subscribers"
	namePoolCapacity  = "freshwatch_pool_capacity"
	namePoolPopped    = "freshwatch_pool_popped_total"
	nameHintProbes    = "freshwatch_hint_probes_total"
	namePrefetches    = "freshwatch_prefetches_total"
	nameNotifications = "freshwatch_notifications_total"
	nameBacklog       = "freshwatch_dispatch_backlog"
)

// StatsSource is satisfied by *registry.Registry.
type StatsSource interface {
	Stats() registry.Stats
}

// Families converts s to metric families.
func Families(s registry.Stats) []*dto.MetricFamily {
	return []*dto.MetricFamily{
		counter(nameNotifications, "Updates delivered to subscribers.", float64(s.Notifications)),
		gauge(nameBacklog, "Updates queued for delivery.", float64(s.Backlog)),
		family(nameFetchers, "Active fetchers by mode.", dto.MetricType_GAUGE,
			labelled("mode", "background", gaugeValue(float64(s.BackgroundFetchers))),
			labelled("mode", "temporary", gaugeValue(float64(s.TemporaryFetchers))),
			labelled("mode", "draining", gaugeValue(float64(s.DrainingFetchers))),
		),
		counter(nameHintProbes, "Probes issued for update hints.", float64(s.HintProbes)),
		gauge(nameKeys, "Keys with freshness state.", float64(s.Keys)),
		gauge(namePoolCapacity, "Temporary fetcher pool capacity.", float64(s.PoolCapacity)),
		family(namePoolPopped, "Temporary fetchers popped for capacity, by outcome.", dto.MetricType_COUNTER,
			labelled("outcome", "cancelled", counterValue(float64(s.Evictions))),
			labelled("outcome", "drained", counterValue(float64(s.Drained))),
		),
		counter(namePrefetches, "Content prefetches started.", float64(s.Prefetches)),
		gauge(nameSubscribers, "Registered subscribers.", float64(s.Subscribers)),
	}
}

// Handler serves the exposition, negotiating the format from Accept.
func Handler(src StatsSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))

		enc := expfmt.NewEncoder(w, format)
		for _, mf := range Families(src.Stats()) {
			if err := enc.Encode(mf); err != nil {
				slog.Warn("metrics: encode failed", "family", mf.GetName(), "err", err)
				return
			}
		}
		if closer, ok := enc.(expfmt.Closer); ok {
			if err := closer.Close(); err != nil {
				slog.Warn("metrics: close encoder", "err", err)
			}
		}
	})
}

func family(name, help string, typ dto.MetricType, ms ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   typ.Enum(),
		Metric: ms,
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return family(name, help, dto.MetricType_GAUGE, gaugeValue(v))
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return family(name, help, dto.MetricType_COUNTER, counterValue(v))
}

func gaugeValue(v float64) *dto.Metric {
	return &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func counterValue(v float64) *dto.Metric {
	return &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(v)}}
}

func labelled(name, value string, m *dto.Metric) *dto.Metric {
	m.Label = append(m.Label, &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)})
	return m
}
