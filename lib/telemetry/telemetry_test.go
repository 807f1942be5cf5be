package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnTransport(t *testing.T) {
	kind, err := OtlpConnConfig{GrpcEndpoint: "http://localhost:4317", HttpEndpoint: "http://localhost:4318"}.transport()
	require.NoError(t, err)
	require.Equal(t, "grpc", kind)

	kind, err = OtlpConnConfig{HttpEndpoint: "http://localhost:4318"}.transport()
	require.NoError(t, err)
	require.Equal(t, "http", kind)

	_, err = OtlpConnConfig{}.transport()
	require.Error(t, err)
}

func TestShutdownWithoutSetup(t *testing.T) {
	require.NoError(t, Telemetry{}.Shutdown(context.Background()))
}
