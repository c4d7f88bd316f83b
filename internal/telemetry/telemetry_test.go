package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_DisabledIsNoOp(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_StdoutFallback(t *testing.T) {
	// No OTLP endpoint configured: spans go to the stdout exporter.
	provider, err := NewProvider(context.Background(), Config{
		Enabled:     true,
		Environment: "test",
		SampleRate:  1.0,
	})
	require.NoError(t, err)
	assert.NotNil(t, provider.Tracer("test"))
	assert.NoError(t, provider.Shutdown(context.Background()))
}
