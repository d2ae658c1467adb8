package influxstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/udaisingh93/bluesky-blissdata/blissdata"
)

const (
	testToken  = "blissdata-test-token"
	testOrg    = "beamline"
	testBucket = "scans"
)

func startInfluxContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "admin",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "password123",
			"DOCKER_INFLUXDB_INIT_ORG":         testOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      testBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": testToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8086")
	require.NoError(t, err)

	return container, fmt.Sprintf("http://%s:%s", host, port.Port())
}

func TestIntegration_ScanLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, url := startInfluxContainer(ctx, t)
	defer container.Terminate(ctx)

	store, err := Connect(ctx, Config{
		URL:    url,
		Token:  testToken,
		Org:    testOrg,
		Bucket: testBucket,
	})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.HealthCheck(ctx))

	sess, err := store.CreateScan(ctx, blissdata.ScanIdentity{
		Name:    "ascan",
		Number:  1,
		Session: "sim_session",
	}, map[string]any{"name": "ascan", "uid": "it-scan-1"})
	require.NoError(t, err)

	stream, err := sess.CreateStream(ctx, "det1",
		blissdata.Numeric(blissdata.Float64, []int{}), nil)
	require.NoError(t, err)

	require.NoError(t, sess.Prepare(ctx))
	require.NoError(t, sess.Start(ctx))

	require.NoError(t, stream.Send(ctx, 1.5))
	require.NoError(t, stream.Send(ctx, 2.5))
	require.NoError(t, stream.Seal(ctx))

	err = stream.Send(ctx, 3.5)
	require.Error(t, err)

	require.NoError(t, sess.Stop(ctx))
	require.NoError(t, sess.UpdateInfo(ctx, map[string]any{"exit_status": "success"}))
	require.NoError(t, sess.Close(ctx))

	err = sess.UpdateInfo(ctx, map[string]any{"late": true})
	require.Error(t, err)

	assert.Equal(t, "it-scan-1", sess.Info()["uid"])
}
