package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/foxzool/open-lark-sub013/internal/config"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.TracingConfig
		wantNoop bool
		wantErr  bool
	}{
		{"disabled", config.TracingConfig{Enabled: false}, true, false},
		{"noop exporter", config.TracingConfig{Enabled: true, Exporter: "noop"}, true, false},
		{"empty exporter", config.TracingConfig{Enabled: true}, true, false},
		{"stdout exporter", config.TracingConfig{Enabled: true, Exporter: "stdout"}, false, false},
		{"unsupported exporter", config.TracingConfig{Enabled: true, Exporter: "jaeger"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer shutdown(context.Background())

			_, isNoop := otel.GetTracerProvider().(noop.TracerProvider)
			assert.Equal(t, tt.wantNoop, isNoop)
		})
	}
}

func TestStartSpanRecordsAttributesAndStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	_, ok := StartSpan(context.Background(), "ok-span")
	ok.SetAttributes(StringAttr("message_id", "m1"), IntAttr("sum", 3))
	SetOK(ok)
	ok.End()

	_, failed := StartSpan(context.Background(), "failed-span")
	RecordError(failed, errors.New("boom"))
	failed.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ok-span", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}
