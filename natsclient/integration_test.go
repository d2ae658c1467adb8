package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startNATSContainer runs a NATS server with JetStream enabled and returns
// its client URL.
func startNATSContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
		Cmd:          []string{"-js"},
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	// Give the server a moment to finish JetStream initialization.
	time.Sleep(200 * time.Millisecond)

	return container, fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func TestIntegration_ConnectAndPublish(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, url := startNATSContainer(ctx, t)
	defer container.Terminate(ctx)

	client, err := NewClient(url)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	assert.True(t, client.IsHealthy())
	assert.Equal(t, StatusConnected, client.Status())

	_, err = client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     "SCAN_TEST",
		Subjects: []string{"scan.test.>"},
	})
	require.NoError(t, err)

	require.NoError(t, client.PublishToStream(ctx, "scan.test.values", []byte(`1.5`)))

	js, err := client.JetStream()
	require.NoError(t, err)
	stream, err := js.Stream(ctx, "SCAN_TEST")
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestIntegration_KVRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, url := startNATSContainer(ctx, t)
	defer container.Terminate(ctx)

	client, err := NewClient(url)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	kv, err := client.KeyValue(ctx, "scan-info-test")
	require.NoError(t, err)

	in := map[string]any{"name": "ascan", "scan_nb": float64(3)}
	require.NoError(t, kv.PutJSON(ctx, "scan-uid-1", in))

	var out map[string]any
	require.NoError(t, kv.GetJSON(ctx, "scan-uid-1", &out))
	assert.Equal(t, in, out)
}
