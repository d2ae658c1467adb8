package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udaisingh93/bluesky-blissdata/errors"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name     string
		expected Kind
	}{
		{"start", KindStart},
		{"descriptor", KindDescriptor},
		{"event", KindEvent},
		{"stop", KindStop},
		{"bulk_events", KindUnknown},
		{"", KindUnknown},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, ParseKind(test.name))
			if test.expected != KindUnknown {
				assert.Equal(t, test.name, test.expected.String())
			}
		})
	}
}

func validStart() Document {
	return Document{
		"uid":        "abc-123",
		"time":       1700000000.5,
		"plan_name":  "ascan",
		"scan_id":    7,
		"detectors":  []any{"det1"},
		"motors":     []any{"mot1"},
		"num_points": 11,
	}
}

func TestValidate_Start(t *testing.T) {
	require.NoError(t, Validate(KindStart, validStart()))
}

func TestValidate_StartMissingUID(t *testing.T) {
	doc := validStart()
	delete(doc, "uid")

	err := Validate(KindStart, doc)
	require.Error(t, err)
	require.ErrorIs(t, err, errors.ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindStart, verr.Kind)
	assert.NotEmpty(t, verr.Violations)
}

func TestValidate_Descriptor(t *testing.T) {
	doc := Document{
		"uid":       "desc-1",
		"time":      1700000001.0,
		"run_start": "abc-123",
		"data_keys": map[string]any{
			"det1": map[string]any{
				"dtype":       "number",
				"shape":       []any{},
				"object_name": "det1",
				"precision":   4,
			},
		},
	}
	require.NoError(t, Validate(KindDescriptor, doc))

	// dtype outside the event-model enum must be rejected
	doc["data_keys"].(map[string]any)["det1"].(map[string]any)["dtype"] = "complex"
	err := Validate(KindDescriptor, doc)
	require.ErrorIs(t, err, errors.ErrValidation)
}

func TestValidate_StopExitStatusEnum(t *testing.T) {
	doc := Document{
		"uid":         "stop-1",
		"time":        1700000100.0,
		"run_start":   "abc-123",
		"exit_status": "success",
	}
	require.NoError(t, Validate(KindStop, doc))

	doc["exit_status"] = "exploded"
	require.ErrorIs(t, Validate(KindStop, doc), errors.ErrValidation)
}

func TestValidate_UnknownKindIsNoOp(t *testing.T) {
	assert.NoError(t, Validate(KindUnknown, Document{"anything": "goes"}))
}

func TestFieldAccessors(t *testing.T) {
	doc := Document{
		"plan_name":  "grid_scan",
		"scan_id":    3,
		"time":       1700000000.25,
		"num_points": float64(121),
		"motors":     []any{"mot1", "mot2"},
		"plan_args":  map[string]any{"args": []any{"mot1", 0.0, 10.0}},
	}

	assert.Equal(t, "grid_scan", doc.String("plan_name", ""))
	assert.Equal(t, "fallback", doc.String("absent", "fallback"))
	assert.Equal(t, 3, doc.Int("scan_id", 0))
	assert.Equal(t, 121, doc.Int("num_points", 1000))
	assert.Equal(t, 1000, doc.Int("absent", 1000))
	assert.InDelta(t, 1700000000.25, doc.Float("time", 0), 1e-9)
	assert.Equal(t, []string{"mot1", "mot2"}, doc.StringSlice("motors"))
	assert.Nil(t, doc.StringSlice("detectors"))

	args := Document(doc.Map("plan_args")).AnySlice("args")
	require.Len(t, args, 3)
	assert.Equal(t, "mot1", args[0])
}

func TestRequiredAccessors(t *testing.T) {
	doc := Document{"uid": "abc", "time": 1.5}

	uid, err := doc.RequiredString("uid")
	require.NoError(t, err)
	assert.Equal(t, "abc", uid)

	_, err = doc.RequiredString("plan_name")
	require.ErrorIs(t, err, errors.ErrMissingField)

	var mfe *MissingFieldError
	require.ErrorAs(t, err, &mfe)
	assert.Equal(t, "plan_name", mfe.Field)

	ts, err := doc.RequiredFloat("time")
	require.NoError(t, err)
	assert.Equal(t, 1.5, ts)

	_, err = doc.RequiredMap("data")
	require.ErrorIs(t, err, errors.ErrMissingField)
}
