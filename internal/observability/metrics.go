package observability

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/sandeepkv93/paygw-mollie"

type instruments struct {
	repositoryOps metric.Int64Counter
	reconciles    metric.Int64Counter
	remoteCalls   metric.Int64Counter
	deliveries    metric.Int64Counter
	webhookAcks   metric.Int64Counter
	rateLimits    metric.Int64Counter
	idempotency   metric.Int64Counter
}

var (
	instrumentsOnce sync.Once
	inst            instruments
)

func getInstruments() *instruments {
	instrumentsOnce.Do(func() {
		inst = newInstruments(otel.Meter(instrumentationName), slog.Default())
	})
	return &inst
}

func newInstruments(m metric.Meter, logger *slog.Logger) instruments {
	return instruments{
		repositoryOps: newCounter(m, logger, "paygw.repository.operations",
			"Repository operations by repository, operation and outcome"),
		reconciles: newCounter(m, logger, "paygw.reconcile.attempts",
			"Reconciliation attempts by source and outcome"),
		remoteCalls: newCounter(m, logger, "paygw.remote.calls",
			"Calls to the payment provider API by operation and outcome"),
		deliveries: newCounter(m, logger, "paygw.deliveries",
			"Paid transitions that delivered the purchased item"),
		webhookAcks: newCounter(m, logger, "paygw.webhook.acks",
			"Webhook acknowledgements by result"),
		rateLimits: newCounter(m, logger, "paygw.ratelimit.decisions",
			"Rate limiter decisions by scope"),
		idempotency: newCounter(m, logger, "paygw.idempotency.events",
			"Idempotency key outcomes by scope"),
	}
}

// newCounter falls back to a noop counter when the meter rejects the instrument.
func newCounter(m metric.Meter, logger *slog.Logger, name, description string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(description))
	if err != nil || c == nil {
		logger.Warn("metric instrument unavailable", "instrument", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}

func RecordRepositoryOperation(ctx context.Context, repository, operation, outcome string) {
	if c := getInstruments().repositoryOps; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("repository", repository),
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordReconcileOutcome(ctx context.Context, source, outcome string) {
	if c := getInstruments().reconciles; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordRemoteCall(ctx context.Context, operation, outcome string) {
	if c := getInstruments().remoteCalls; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordDelivery(ctx context.Context, component, outcome string) {
	if c := getInstruments().deliveries; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordWebhookAck(ctx context.Context, result string) {
	if c := getInstruments().webhookAcks; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	if c := getInstruments().rateLimits; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("decision", decision),
		))
	}
}

func RecordIdempotencyEvent(ctx context.Context, scope, outcome string) {
	if c := getInstruments().idempotency; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("outcome", outcome),
		))
	}
}

// StartSpan opens a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}
