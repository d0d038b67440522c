package observability

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(NewLogger),
	fx.Provide(NewTracerProvider),
	fx.Provide(NewMetrics),
	// Tracing has no downstream consumer; force construction so the
	// global provider is installed at startup.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
