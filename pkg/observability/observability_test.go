package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_DisabledSkipsProviderSetup(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer()) // falls back to the global no-op tracer

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledProducesWorkingTracer(t *testing.T) {
	p, err := New(context.Background(), DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	ctx, span := p.StartSpan(context.Background(), "test-span")
	require.NotNil(t, ctx)
	span.End()
}

func TestTrackOperation_RecordsErrorWithoutPanicking(t *testing.T) {
	p, err := New(context.Background(), DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	_, done := p.TrackOperation(context.Background(), "submit-code")
	done(errors.New("boom"))
}
