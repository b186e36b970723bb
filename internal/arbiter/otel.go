package arbiter

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/aeroduel/plane/internal/arbiter"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
