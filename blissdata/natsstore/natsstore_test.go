package natsstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udaisingh93/bluesky-blissdata/natsclient"
)

func TestStreamName(t *testing.T) {
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)
	s := New(client)

	assert.Equal(t, "SCAN_AB_CD_12", s.streamName("ab-cd.12"))
	assert.Equal(t, "SCAN_X_Y", s.streamName("x y"))

	prefixed := New(client, WithStreamPrefix("BLISS"))
	assert.Equal(t, "BLISS_UID", prefixed.streamName("uid"))
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "det1", subjectToken("det1"))
	assert.Equal(t, "det_roi_1", subjectToken("det.roi 1"))
	assert.Equal(t, "a_b", subjectToken("a>b"))
}

func TestOptions(t *testing.T) {
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	s := New(client, WithInfoBucket("custom-info"))
	assert.Equal(t, "custom-info", s.infoBucket)

	s = New(client)
	assert.Equal(t, defaultInfoBucket, s.infoBucket)
}
