package influxstore

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/udaisingh93/bluesky-blissdata/errors"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		URL:    "http://localhost:8086",
		Token:  "secret",
		Org:    "beamline",
		Bucket: "scans",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing url", Config{Org: "beamline", Bucket: "scans"}},
		{"missing org", Config{URL: "http://localhost:8086", Bucket: "scans"}},
		{"missing bucket", Config{URL: "http://localhost:8086", Org: "beamline"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrMissingConfig))
		})
	}
}
