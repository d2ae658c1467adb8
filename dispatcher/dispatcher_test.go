package dispatcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udaisingh93/bluesky-blissdata/blissdata"
	"github.com/udaisingh93/bluesky-blissdata/blissdata/memstore"
	"github.com/udaisingh93/bluesky-blissdata/document"
	"github.com/udaisingh93/bluesky-blissdata/errors"
)

func startDoc(plan string, motors, detectors []string) document.Document {
	return document.Document{
		"uid":        "scan-uid-1",
		"time":       1700000000.5,
		"plan_name":  plan,
		"scan_id":    float64(7),
		"motors":     toAny(motors),
		"detectors":  toAny(detectors),
		"num_points": float64(10),
	}
}

func descriptorDoc(dataKeys map[string]any) document.Document {
	return document.Document{
		"uid":       "desc-uid-1",
		"time":      1700000001.0,
		"run_start": "scan-uid-1",
		"data_keys": dataKeys,
	}
}

func scalarKey(source string) map[string]any {
	return map[string]any{
		"source":      "SIM:" + source,
		"object_name": source,
		"dtype":       "number",
		"shape":       []any{},
		"units":       "mm",
	}
}

func eventDoc(seq int, data map[string]any) document.Document {
	return document.Document{
		"uid":        fmt.Sprintf("event-uid-%d", seq),
		"time":       1700000002.0 + float64(seq),
		"descriptor": "desc-uid-1",
		"seq_num":    float64(seq),
		"data":       data,
		"timestamps": map[string]any{},
	}
}

func stopDoc(exitStatus string) document.Document {
	return document.Document{
		"uid":         "stop-uid-1",
		"time":        1700000010.0,
		"run_start":   "scan-uid-1",
		"exit_status": exitStatus,
		"num_events":  map[string]any{"primary": float64(10)},
	}
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func runToStreaming(t *testing.T, store *memstore.Store) *Dispatcher {
	t.Helper()
	d := New(store)
	ctx := context.Background()

	err := d.Dispatch(ctx, document.KindStart, startDoc("ascan", []string{"mot1"}, []string{"det1"}))
	require.NoError(t, err)

	err = d.Dispatch(ctx, document.KindDescriptor, descriptorDoc(map[string]any{
		"mot1": scalarKey("mot1"),
		"det1": scalarKey("det1"),
	}))
	require.NoError(t, err)
	require.Equal(t, StateStreaming, d.State())
	return d
}

func TestDispatchPlainScan(t *testing.T) {
	store := memstore.New()
	d := runToStreaming(t, store)
	ctx := context.Background()

	sess := store.LastSession()
	require.NotNil(t, sess)
	assert.Equal(t, "ascan", sess.Identity().Name)
	assert.Equal(t, 7, sess.Identity().Number)
	assert.Equal(t, "sim_session", sess.Identity().Session)
	assert.True(t, sess.Prepared)
	assert.True(t, sess.Started)

	// Each declared channel plus the implicit time channel got a stream.
	assert.ElementsMatch(t, []string{"det1", "mot1", "time"}, sess.StreamLabels())
	assert.Equal(t, "s", sess.Stream("time").Info["unit"])
	assert.Equal(t, "float64", sess.Stream("time").Info["dtype"])
	assert.Equal(t, "mm", sess.Stream("mot1").Info["unit"])
	assert.Equal(t, "scatter", sess.Stream("mot1").Info["group"])

	info := sess.Info()
	assert.Equal(t, "ascan", info["name"])
	assert.Equal(t, "ascan7", info["title"])
	assert.Equal(t, 10, info["npoints"])
	assert.Equal(t, "bluesky", info["user_name"])

	chains, ok := info["acquisition_chain"].(map[string]blissdata.ChainInfo)
	require.True(t, ok)
	chain := chains["axis"]
	assert.Equal(t, "timer", chain.TopMaster)
	assert.ElementsMatch(t, []string{"mot1", "det1"}, chain.Scalars)
	assert.Equal(t, []string{"time"}, chain.Master.Scalars)
	assert.Empty(t, chain.Spectra)
	assert.Empty(t, chain.Images)

	plots, ok := info["plots"].([]blissdata.Plot)
	require.True(t, ok)
	require.Len(t, plots, 1)
	assert.Equal(t, "curve-plot", plots[0].Kind)
	assert.Equal(t, "Curve-Plot", plots[0].Name)

	channels, ok := info["channels"].(map[string]blissdata.ChannelInfo)
	require.True(t, ok)
	assert.Equal(t, "axis", channels["mot1"].Device)
	assert.Equal(t, "counters", channels["det1"].Device)
	assert.Equal(t, "timer", channels["time"].Device)
	assert.Equal(t, "timer", channels["time"].DisplayName)
	assert.Empty(t, channels["time"].Group)

	// One event lands one value on every stream.
	err := d.Dispatch(ctx, document.KindEvent, eventDoc(1, map[string]any{
		"mot1": 1.5,
		"det1": 42.0,
	}))
	require.NoError(t, err)
	assert.Equal(t, []any{1.5}, sess.Stream("mot1").Values)
	assert.Equal(t, []any{42.0}, sess.Stream("det1").Values)
	assert.Equal(t, []any{1700000003.0}, sess.Stream("time").Values)

	err = d.Dispatch(ctx, document.KindStop, stopDoc("success"))
	require.NoError(t, err)
	assert.Equal(t, StateClosed, d.State())
	assert.True(t, sess.Stopped)
	assert.True(t, sess.Closed)
	assert.True(t, sess.Stream("mot1").Sealed())
	assert.True(t, sess.Stream("det1").Sealed())
	assert.True(t, sess.Stream("time").Sealed())

	info = sess.Info()
	assert.Equal(t, "success", info["exit_status"])
	assert.Equal(t, "SUCCESS", info["end_reason"])
	assert.NotEmpty(t, info["end_time"])
}

func TestDispatchStartTimeAndEmptyBuckets(t *testing.T) {
	store := memstore.New()
	d := New(store)
	ctx := context.Background()

	err := d.Dispatch(ctx, document.KindStart, startDoc("ascan", []string{"mot1"}, []string{"det1"}))
	require.NoError(t, err)

	// Right after the start document the three fixed buckets exist with no
	// channels assigned yet.
	require.Len(t, d.sc.devices, 3)
	for _, dev := range []Device{DeviceTimer, DeviceCounters, DeviceAxis} {
		bucket, ok := d.sc.devices[dev]
		require.True(t, ok, string(dev))
		assert.Empty(t, bucket.Channels, string(dev))
	}

	err = d.Dispatch(ctx, document.KindDescriptor, descriptorDoc(map[string]any{
		"mot1": scalarKey("mot1"),
	}))
	require.NoError(t, err)

	// Epoch 1700000000.5 renders with the fractional second kept but
	// trailing zeros trimmed.
	want := time.Unix(1700000000, 500000000).Format("2006-01-02T15:04:05.999999")
	got, ok := store.LastSession().Info()["start_time"].(string)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.True(t, strings.HasSuffix(got, ":20.5"), got)
}

func TestDispatchGridScan(t *testing.T) {
	store := memstore.New()
	d := New(store)
	ctx := context.Background()

	start := startDoc("grid_scan", []string{"mot1", "mot2"}, []string{"det1"})
	start["plan_args"] = map[string]any{
		"args": []any{"mot1", float64(0), float64(10), "mot2", float64(0), float64(10)},
	}
	require.NoError(t, d.Dispatch(ctx, document.KindStart, start))

	err := d.Dispatch(ctx, document.KindDescriptor, descriptorDoc(map[string]any{
		"mot1": scalarKey("mot1"),
		"mot2": scalarKey("mot2"),
		"det1": scalarKey("det1"),
	}))
	require.NoError(t, err)

	sess := store.LastSession()
	info := sess.Info()
	assert.Equal(t, []float64{0, 0}, info["start"])
	assert.Equal(t, []float64{10, 10}, info["stop"])

	plots, ok := info["plots"].([]blissdata.Plot)
	require.True(t, ok)
	require.Len(t, plots, 1)
	assert.Equal(t, "scatter-plot", plots[0].Kind)
	assert.Equal(t, "Scatter-Plot", plots[0].Name)
	// The primary motor plots against every other declared axis.
	require.Len(t, plots[0].Items, 1)
	assert.Equal(t, blissdata.PlotItem{Kind: "scatter", X: "mot2", Y: "mot1"}, plots[0].Items[0])
}

func TestDispatchGridScanMissingRanges(t *testing.T) {
	store := memstore.New()
	d := New(store)

	start := startDoc("grid_scan", []string{"mot1", "mot2"}, nil)
	start["plan_args"] = map[string]any{
		"args": []any{"mot1", float64(0), float64(10)},
	}
	err := d.Dispatch(context.Background(), document.KindStart, start)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrMissingField))
	assert.Empty(t, store.Sessions)
}

func TestDispatchUnknownChannelSkipped(t *testing.T) {
	store := memstore.New()
	d := runToStreaming(t, store)

	err := d.Dispatch(context.Background(), document.KindEvent, eventDoc(1, map[string]any{
		"mot1":  1.0,
		"det1":  2.0,
		"ghost": 3.0,
	}))
	require.NoError(t, err)

	sess := store.LastSession()
	assert.Equal(t, []any{1.0}, sess.Stream("mot1").Values)
	assert.Equal(t, []any{2.0}, sess.Stream("det1").Values)
	// The time value still went out despite the unknown key.
	assert.Len(t, sess.Stream("time").Values, 1)
	assert.Nil(t, sess.Stream("ghost"))
}

func TestDispatchTypeMismatchSkipped(t *testing.T) {
	store := memstore.New()
	d := New(store)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, document.KindStart, startDoc("ascan", []string{"mot1"}, []string{"det1"})))

	intKey := scalarKey("det1")
	intKey["dtype"] = "integer"
	require.NoError(t, d.Dispatch(ctx, document.KindDescriptor, descriptorDoc(map[string]any{
		"mot1": scalarKey("mot1"),
		"det1": intKey,
	})))

	err := d.Dispatch(ctx, document.KindEvent, eventDoc(1, map[string]any{
		"mot1": 1.0,
		"det1": 2.5, // not integral, stream declared int64
	}))
	require.NoError(t, err)

	sess := store.LastSession()
	assert.Equal(t, []any{1.0}, sess.Stream("mot1").Values)
	assert.Empty(t, sess.Stream("det1").Values)
	assert.Len(t, sess.Stream("time").Values, 1)
}

func TestDispatchSealFailureDoesNotBlockOthers(t *testing.T) {
	store := memstore.New()
	d := New(store)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, document.KindStart, startDoc("ascan", []string{"mot1"}, []string{"det1"})))
	sess := store.LastSession()
	sess.FailSealFor = map[string]error{"det1": stderrors.New("seal refused")}

	require.NoError(t, d.Dispatch(ctx, document.KindDescriptor, descriptorDoc(map[string]any{
		"mot1": scalarKey("mot1"),
		"det1": scalarKey("det1"),
	})))

	err := d.Dispatch(ctx, document.KindStop, stopDoc("success"))
	require.NoError(t, err)

	assert.True(t, sess.Stream("mot1").Sealed())
	assert.True(t, sess.Stream("time").Sealed())
	assert.False(t, sess.Stream("det1").Sealed())
	assert.True(t, sess.Stopped)
	assert.True(t, sess.Closed)
	assert.Equal(t, StateClosed, d.State())
}

func TestDispatchDocumentOrderEnforced(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	t.Run("descriptor before start", func(t *testing.T) {
		d := New(store)
		err := d.Dispatch(ctx, document.KindDescriptor, descriptorDoc(map[string]any{}))
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrNoActiveScan))
	})

	t.Run("event before descriptor", func(t *testing.T) {
		d := New(store)
		require.NoError(t, d.Dispatch(ctx, document.KindStart, startDoc("ascan", nil, nil)))
		err := d.Dispatch(ctx, document.KindEvent, eventDoc(1, map[string]any{}))
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrNoActiveScan))
	})

	t.Run("event after stop", func(t *testing.T) {
		d := runToStreaming(t, store)
		require.NoError(t, d.Dispatch(ctx, document.KindStop, stopDoc("success")))
		err := d.Dispatch(ctx, document.KindEvent, eventDoc(2, map[string]any{}))
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrNoActiveScan))
	})
}

func TestDispatchValidationRejectsBadDocuments(t *testing.T) {
	store := memstore.New()
	d := New(store)

	bad := startDoc("ascan", nil, nil)
	delete(bad, "time")
	err := d.Dispatch(context.Background(), document.KindStart, bad)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrValidation))
	assert.Empty(t, store.Sessions)
	assert.Equal(t, StateIdle, d.State())
}

func TestDispatchUnknownKindIgnored(t *testing.T) {
	store := memstore.New()
	d := New(store)

	err := d.Dispatch(context.Background(), document.KindUnknown, document.Document{"anything": true})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, d.State())
}

func TestDispatchStoreFailureFailsScan(t *testing.T) {
	store := memstore.New()
	d := New(store)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, document.KindStart, startDoc("ascan", []string{"mot1"}, nil)))
	store.LastSession().FailStart = stderrors.New("connection reset")

	err := d.Dispatch(ctx, document.KindDescriptor, descriptorDoc(map[string]any{
		"mot1": scalarKey("mot1"),
	}))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStoreCall))
	assert.Equal(t, StateFailed, d.State())

	// A failed scan rejects everything until the next start.
	err = d.Dispatch(ctx, document.KindEvent, eventDoc(1, map[string]any{}))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrScanFailed))

	require.NoError(t, d.Dispatch(ctx, document.KindStart, startDoc("ascan", []string{"mot1"}, nil)))
	assert.Equal(t, StateConfiguring, d.State())
}

func TestDispatchMissingUIDGetsGenerated(t *testing.T) {
	store := memstore.New()
	d := New(store)

	start := startDoc("ascan", nil, nil)
	start["uid"] = ""
	require.NoError(t, d.Dispatch(context.Background(), document.KindStart, start))

	uid, ok := store.LastSession().Info()["uid"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, uid)
}

func TestDispatchSecondDescriptorReplacesStreams(t *testing.T) {
	store := memstore.New()
	d := runToStreaming(t, store)
	ctx := context.Background()

	err := d.Dispatch(ctx, document.KindDescriptor, descriptorDoc(map[string]any{
		"mot1": scalarKey("mot1"),
		"det2": scalarKey("det2"),
	}))
	require.NoError(t, err)
	require.Equal(t, StateStreaming, d.State())

	sess := store.LastSession()
	require.NotNil(t, sess.Stream("det2"))

	err = d.Dispatch(ctx, document.KindEvent, eventDoc(1, map[string]any{
		"det1": 1.0, // belonged to the replaced configuration
		"det2": 2.0,
	}))
	require.NoError(t, err)
	assert.Equal(t, []any{2.0}, sess.Stream("det2").Values)
}

func TestDispatchUnclassifiedChannelBucket(t *testing.T) {
	store := memstore.New()
	d := New(store)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, document.KindStart, startDoc("ascan", []string{"mot1"}, []string{"det1"})))
	require.NoError(t, d.Dispatch(ctx, document.KindDescriptor, descriptorDoc(map[string]any{
		"mot1":   scalarKey("mot1"),
		"stray1": scalarKey("stray1"),
	})))

	info := store.LastSession().Info()
	channels, ok := info["channels"].(map[string]blissdata.ChannelInfo)
	require.True(t, ok)
	assert.Equal(t, "", channels["stray1"].Device)

	// The stray channel still streams alongside the classified ones.
	chains := info["acquisition_chain"].(map[string]blissdata.ChainInfo)
	assert.Contains(t, chains["axis"].Scalars, "stray1")
}

func TestResolveEncoding(t *testing.T) {
	tests := []struct {
		name string
		key  document.Document
		want blissdata.Encoding
	}{
		{"number", document.Document{"dtype": "number"}, blissdata.Numeric(blissdata.Float64, nil)},
		{"integer", document.Document{"dtype": "integer"}, blissdata.Numeric(blissdata.Int64, nil)},
		{"boolean", document.Document{"dtype": "boolean"}, blissdata.Numeric(blissdata.Bool, nil)},
		{"array float32", document.Document{"dtype": "array", "numpy_dtype": "float32"}, blissdata.Numeric(blissdata.Float64, nil)},
		{"array uint16", document.Document{"dtype": "array", "numpy_dtype": "uint16"}, blissdata.Numeric(blissdata.Int64, nil)},
		{"array bool", document.Document{"dtype": "array", "numpy_dtype": "bool"}, blissdata.Numeric(blissdata.Bool, nil)},
		{"array untyped", document.Document{"dtype": "array"}, blissdata.JSON()},
		{"array exotic dtype", document.Document{"dtype": "array", "numpy_dtype": "complex128"}, blissdata.JSON()},
		{"string", document.Document{"dtype": "string"}, blissdata.JSON()},
		{"other", document.Document{"dtype": "other"}, blissdata.JSON()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveEncoding(tt.key, nil))
		})
	}
}

func TestClassify(t *testing.T) {
	motors := []string{"mot1", "both"}
	detectors := []string{"det1", "both"}

	assert.Equal(t, DeviceAxis, Classify("mot1", motors, detectors))
	assert.Equal(t, DeviceCounters, Classify("det1", motors, detectors))
	assert.Equal(t, DeviceAxis, Classify("both", motors, detectors))
	assert.Equal(t, DeviceUnclassified, Classify("other", motors, detectors))
	assert.Equal(t, DeviceUnclassified, Classify("mot1", nil, nil))
}

func TestStreamRegistry(t *testing.T) {
	r := newStreamRegistry()
	st := &memstore.Stream{}

	require.NoError(t, r.Bind("time", st))
	err := r.Bind("time", st)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStreamBound))

	got, err := r.Lookup("time")
	require.NoError(t, err)
	assert.Same(t, blissdata.Stream(st), got)

	_, err = r.Lookup("absent")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStreamNotFound))

	assert.Equal(t, []string{"time"}, r.Labels())
	assert.Equal(t, 1, r.Len())
}
