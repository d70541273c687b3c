package usecase

import (
	"context"
	"time"

	"github.com/fiapx/fiapx-boot-animator/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// timedStage runs fn in its own span and records how long it took.
func timedStage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
	}
	return err
}
