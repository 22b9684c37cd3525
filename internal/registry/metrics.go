package registry

import (
	"context"
	"fmt"

	"github.com/OCAP2/softbody/pkg/core"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	tickDuration metric.Float64Histogram
	substeps     metric.Int64Counter
	events       metric.Int64Counter
	beamsBroken  metric.Int64Counter
	vehicles     metric.Int64ObservableGauge
}

// newMetrics creates the registry instruments on the global meter, a no-op
// unless a provider was installed.
func newMetrics(count func() int64) (*metrics, error) {
	m := meter()
	var (
		out metrics
		err error
	)

	out.tickDuration, err = m.Float64Histogram(
		"registry.tick.duration",
		metric.WithDescription("Wall time of one host tick"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	out.substeps, err = m.Int64Counter(
		"registry.substeps",
		metric.WithDescription("Physics steps run"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating substep counter: %w", err)
	}

	out.events, err = m.Int64Counter(
		"registry.events",
		metric.WithDescription("Events delivered to the host"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating event counter: %w", err)
	}

	out.beamsBroken, err = m.Int64Counter(
		"registry.beams.broken",
		metric.WithDescription("Beams broken across all vehicles"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating broken beam counter: %w", err)
	}

	out.vehicles, err = m.Int64ObservableGauge(
		"registry.vehicles",
		metric.WithDescription("Registered vehicles"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating vehicle gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(out.vehicles, count())
			return nil
		},
		out.vehicles,
	)
	if err != nil {
		return nil, fmt.Errorf("registering vehicle callback: %w", err)
	}
	return &out, nil
}

func (m *metrics) record(ctx context.Context, st TickStats, events []core.Event) {
	m.tickDuration.Record(ctx, st.Duration.Seconds())
	m.substeps.Add(ctx, int64(st.Steps))
	counts := make(map[core.EventKind]int64)
	for _, ev := range events {
		counts[ev.Kind]++
	}
	for kind, n := range counts {
		m.events.Add(ctx, n, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
	if n := counts[core.EventBeamBroken]; n > 0 {
		m.beamsBroken.Add(ctx, n)
	}
}
