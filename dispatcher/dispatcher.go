// Package dispatcher implements the scan lifecycle state machine that maps
// bluesky documents onto remote store calls.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/udaisingh93/bluesky-blissdata/blissdata"
	"github.com/udaisingh93/bluesky-blissdata/document"
	"github.com/udaisingh93/bluesky-blissdata/errors"
	"github.com/udaisingh93/bluesky-blissdata/metric"
)

const defaultNumPoints = 1000

// Dispatcher drives one scan at a time through its lifecycle: it validates
// each incoming document, routes it to the phase handler for its kind, and
// issues the store calls for that phase. The surrounding transport is
// responsible for serializing document delivery; the dispatcher itself
// holds no locks.
type Dispatcher struct {
	store   blissdata.Store
	logger  *slog.Logger
	metrics *metric.Metrics

	sc *scanContext
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets a custom logger for the dispatcher
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics wires the bridge metrics into the dispatcher
func WithMetrics(metrics *metric.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// New creates a dispatcher publishing into the given store
func New(store blissdata.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the lifecycle state of the current scan, or StateIdle when
// no start document has been seen yet.
func (d *Dispatcher) State() State {
	if d.sc == nil {
		return StateIdle
	}
	return d.sc.state
}

// Dispatch processes one lifecycle document. The payload is validated
// against the schema for its kind before any state is touched; exactly one
// phase handler runs per call. Unknown kinds are a deliberate no-op so
// forward-compatible document kinds pass through without error.
func (d *Dispatcher) Dispatch(ctx context.Context, kind document.Kind, doc document.Document) error {
	if d.metrics != nil {
		d.metrics.DocumentsReceived.WithLabelValues(kind.String()).Inc()
	}

	if err := document.Validate(kind, doc); err != nil {
		d.logger.Error("document failed validation", "kind", kind.String(), "error", err)
		d.observe(kind, "invalid", 0)
		return err
	}

	started := time.Now()
	var err error
	switch kind {
	case document.KindStart:
		err = d.prepareScan(ctx, doc)
	case document.KindDescriptor:
		err = d.configDatastream(ctx, doc)
	case document.KindEvent:
		err = d.pushDatastream(ctx, doc)
	case document.KindStop:
		err = d.stopDatastream(ctx, doc)
	case document.KindUnknown:
		// Tolerated for forward compatibility with newer document kinds.
		d.logger.Debug("ignoring unknown document kind")
		return nil
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	d.observe(kind, status, time.Since(started))
	return err
}

func (d *Dispatcher) observe(kind document.Kind, status string, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.DocumentsProcessed.WithLabelValues(kind.String(), status).Inc()
	if elapsed > 0 {
		d.metrics.ProcessingDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
	}
}

// active returns the scan context if a scan is live and in one of the given
// states. Documents arriving before a start, or against a failed scan, are
// protocol violations.
func (d *Dispatcher) active(method string, want ...State) (*scanContext, error) {
	if d.sc == nil {
		return nil, errors.WrapInvalid(errors.ErrNoActiveScan, "Dispatcher", method, "check scan state")
	}
	if d.sc.state == StateFailed {
		return nil, errors.WrapInvalid(errors.ErrScanFailed, "Dispatcher", method, "check scan state")
	}
	for _, s := range want {
		if d.sc.state == s {
			return d.sc, nil
		}
	}
	return nil, errors.WrapInvalid(
		fmt.Errorf("%w: scan is %s", errors.ErrNoActiveScan, d.sc.state),
		"Dispatcher", method, "check scan state")
}

// storeErr folds a remote store failure into the error taxonomy
func storeErr(err error, op string) error {
	return fmt.Errorf("%w: %s: %w", errors.ErrStoreCall, op, err)
}

// timed wraps one store call with duration and error metrics
func (d *Dispatcher) timed(op string, fn func() error) error {
	started := time.Now()
	err := fn()
	if d.metrics != nil {
		d.metrics.StoreCallDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
		if err != nil {
			d.metrics.StoreCallErrors.WithLabelValues(op).Inc()
		}
	}
	return err
}

// prepareScan handles the start document: it opens a new scan session
// against the store and initializes a fresh scan context, replacing any
// previous scan's state wholesale.
func (d *Dispatcher) prepareScan(ctx context.Context, doc document.Document) error {
	planName, err := doc.RequiredString("plan_name")
	if err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "prepareScan", "read start document")
	}
	startEpoch, err := doc.RequiredFloat("time")
	if err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "prepareScan", "read start document")
	}

	sc := newScanContext()
	sc.identity.Name = planName
	sc.identity.Number = doc.Int("scan_id", sc.identity.Number)
	sc.identity.DataPolicy = doc.String("data_policy", sc.identity.DataPolicy)

	sc.uid = doc.String("uid", "")
	if sc.uid == "" {
		sc.uid = uuid.NewString()
		d.logger.Warn("start document carried no uid, generated one", "uid", sc.uid)
	}

	sc.catalogData = doc.Map("meta_catalog")
	if sc.catalogData == nil {
		sc.catalogData = map[string]any{}
	}
	sc.detectors = doc.StringSlice("detectors")
	sc.motors = doc.StringSlice("motors")
	sc.startTime = isoTime(startEpoch)
	sc.npoints = doc.Int("num_points", defaultNumPoints)

	// Grid-style scans declare their coordinate ranges inside the plan
	// argument vector as (motor, start, stop) triplets.
	if len(sc.motors) > 0 && isGridScan(planName) {
		args := document.Document(doc.Map("plan_args")).AnySlice("args")
		for i := range sc.motors {
			j := 3 * i
			if j+2 >= len(args) {
				return errors.WrapInvalid(
					&document.MissingFieldError{Field: "plan_args.args"},
					"Dispatcher", "prepareScan", "read grid scan ranges")
			}
			lo, okLo := toFloat(args[j+1])
			hi, okHi := toFloat(args[j+2])
			if !okLo || !okHi {
				return errors.WrapInvalid(
					&document.MissingFieldError{Field: "plan_args.args"},
					"Dispatcher", "prepareScan", "read grid scan ranges")
			}
			sc.rangeStart = append(sc.rangeStart, lo)
			sc.rangeStop = append(sc.rangeStop, hi)
		}
	}

	d.logger.Info("opening scan session",
		"uid", sc.uid,
		"name", sc.identity.Name,
		"number", sc.identity.Number)

	var session blissdata.Session
	err = d.timed("create_scan", func() error {
		var createErr error
		session, createErr = d.store.CreateScan(ctx, sc.identity, map[string]any{
			"name": planName,
			"uid":  sc.uid,
		})
		return createErr
	})
	if err != nil {
		return errors.WrapTransient(storeErr(err, "create scan"), "Dispatcher", "prepareScan", "open scan session")
	}
	sc.session = session

	d.sc = sc
	if d.metrics != nil {
		d.metrics.ScanActive.Set(1)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// resolveEncoding maps a descriptor's coarse dtype tag onto a stream
// encoding. Arrays without a declared element type and any unrecognized tag
// fall back to the opaque JSON encoding.
func resolveEncoding(key document.Document, shape []int) blissdata.Encoding {
	switch key.String("dtype", "") {
	case "number":
		return blissdata.Numeric(blissdata.Float64, shape)
	case "integer":
		return blissdata.Numeric(blissdata.Int64, shape)
	case "boolean":
		return blissdata.Numeric(blissdata.Bool, shape)
	case "array":
		if dtype, ok := numpyDType(key.String("numpy_dtype", "")); ok {
			return blissdata.Numeric(dtype, shape)
		}
		return blissdata.JSON()
	default:
		return blissdata.JSON()
	}
}

// numpyDType normalizes a numpy element type name onto a stream dtype.
// Unrecognized names report false, which sends the channel down the opaque
// JSON path.
func numpyDType(name string) (blissdata.DType, bool) {
	switch {
	case name == "bool":
		return blissdata.Bool, true
	case strings.HasPrefix(name, "float"):
		return blissdata.Float64, true
	case strings.HasPrefix(name, "int"), strings.HasPrefix(name, "uint"):
		return blissdata.Int64, true
	default:
		return "", false
	}
}

// encodingDTypeLabel is the dtype string recorded in stream info blocks
func encodingDTypeLabel(enc blissdata.Encoding) string {
	if enc.Kind == blissdata.EncodingJSON {
		return "json"
	}
	return string(enc.DType)
}

func intSlice(v any) []int {
	raw, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]int); ok {
			return typed
		}
		return []int{}
	}
	out := make([]int, 0, len(raw))
	for _, elem := range raw {
		if f, ok := toFloat(elem); ok {
			out = append(out, int(f))
		}
	}
	return out
}

// configDatastream handles the descriptor document: it classifies every
// declared channel, creates its remote stream, synthesizes the implicit
// timer channel, and publishes the assembled scan metadata. Calling it a
// second time for the same scan replaces the registry, channels and chain
// wholesale.
func (d *Dispatcher) configDatastream(ctx context.Context, doc document.Document) error {
	sc, err := d.active("configDatastream", StateConfiguring, StateStreaming)
	if err != nil {
		return err
	}

	dataKeys, err := doc.RequiredMap("data_keys")
	if err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "configDatastream", "read descriptor document")
	}

	sc.registry = newStreamRegistry()
	sc.channels = make(map[string]blissdata.ChannelInfo)
	sc.channelMeta = make(map[string]channelMeta)
	sc.chain = make(map[string]blissdata.ChainInfo)
	sc.resetDevices()

	// Document field order does not survive JSON decoding, so channels are
	// processed in sorted label order to keep stream declarations stable.
	labels := make([]string, 0, len(dataKeys))
	for label := range dataKeys {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		raw, ok := dataKeys[label].(map[string]any)
		if !ok {
			d.logger.Warn("skipping malformed data key", "label", label)
			continue
		}
		key := document.Document(raw)

		shape := intSlice(raw["shape"])
		enc := resolveEncoding(key, shape)
		source := key.String("object_name", "")
		dev := Classify(source, sc.motors, sc.detectors)

		meta := channelMeta{
			Name:      source,
			Label:     label,
			DType:     enc.DType,
			JSON:      enc.Kind == blissdata.EncodingJSON,
			Shape:     shape,
			Unit:      key.String("units", ""),
			Precision: key.Int("precision", 4),
		}
		switch dev {
		case DeviceAxis:
			meta.PlotAxes = sc.motors
			if isGridScan(sc.identity.Name) {
				meta.PlotType = plotTypeScatter
			} else {
				meta.PlotType = plotTypeCurve
			}
		case DeviceCounters:
			meta.Group = "scatter"
		}

		sc.assign(dev, label)
		sc.channels[label] = blissdata.ChannelInfo{
			Device:      string(dev),
			Dim:         len(shape),
			DisplayName: label,
			Group:       "scatter",
		}
		sc.channelMeta[label] = meta

		stream, err := d.createStream(ctx, sc, label, enc, map[string]any{
			"unit":  meta.Unit,
			"shape": []int{},
			"dtype": encodingDTypeLabel(enc),
			"group": "scatter",
		})
		if err != nil {
			return err
		}
		if err := sc.registry.Bind(label, stream); err != nil {
			return errors.WrapInvalid(err, "Dispatcher", "configDatastream", "register stream")
		}
	}

	// The implicit elapsed-time channel always exists and is the master
	// driving the acquisition chain.
	timerEnc := blissdata.Numeric(blissdata.Float64, []int{})
	sc.assign(DeviceTimer, "time")
	sc.channels["time"] = blissdata.ChannelInfo{
		Device:      string(DeviceTimer),
		Dim:         0,
		DisplayName: "timer",
	}
	sc.channelMeta["time"] = channelMeta{
		Name:      "timer",
		Label:     "time",
		DType:     blissdata.Float64,
		Shape:     []int{},
		Unit:      "s",
		Precision: 4,
	}
	timeStream, err := d.createStream(ctx, sc, "time", timerEnc, map[string]any{
		"unit":  "s",
		"shape": []int{},
		"dtype": string(blissdata.Float64),
	})
	if err != nil {
		return err
	}
	if err := sc.registry.Bind("time", timeStream); err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "configDatastream", "register time stream")
	}

	sc.chain = sc.buildChain()

	if err := d.timed("update_info", func() error {
		return sc.session.UpdateInfo(ctx, sc.buildScanInfo(d.logger))
	}); err != nil {
		sc.state = StateFailed
		return errors.WrapTransient(storeErr(err, "update info"), "Dispatcher", "configDatastream", "publish scan info")
	}

	// Prepare then Start must both succeed before any event is accepted;
	// a failure leaves the scan failed rather than streaming.
	if err := d.timed("prepare", func() error { return sc.session.Prepare(ctx) }); err != nil {
		sc.state = StateFailed
		return errors.WrapTransient(storeErr(err, "prepare"), "Dispatcher", "configDatastream", "prepare scan")
	}
	if err := d.timed("start", func() error { return sc.session.Start(ctx) }); err != nil {
		sc.state = StateFailed
		return errors.WrapTransient(storeErr(err, "start"), "Dispatcher", "configDatastream", "start scan")
	}

	sc.state = StateStreaming
	if d.metrics != nil {
		d.metrics.StreamsOpen.Set(float64(sc.registry.Len()))
	}
	d.logger.Info("datastream configured",
		"uid", sc.uid,
		"streams", sc.registry.Len(),
		"axis_channels", len(sc.devices[DeviceAxis].Channels),
		"counter_channels", len(sc.devices[DeviceCounters].Channels))
	return nil
}

func (d *Dispatcher) createStream(
	ctx context.Context,
	sc *scanContext,
	label string,
	enc blissdata.Encoding,
	info map[string]any,
) (blissdata.Stream, error) {
	var stream blissdata.Stream
	err := d.timed("create_stream", func() error {
		var createErr error
		stream, createErr = sc.session.CreateStream(ctx, label, enc, info)
		return createErr
	})
	if err != nil {
		sc.state = StateFailed
		return nil, errors.WrapTransient(
			storeErr(err, "create stream "+label),
			"Dispatcher", "configDatastream", "create stream")
	}
	return stream, nil
}

// pushDatastream handles the event document: every data key is sent to its
// bound stream, best effort. Unknown labels and type mismatches are
// reported and skipped; only a missing time stream aborts, because every
// configured scan must have created it.
func (d *Dispatcher) pushDatastream(ctx context.Context, doc document.Document) error {
	sc, err := d.active("pushDatastream", StateStreaming)
	if err != nil {
		return err
	}

	data, err := doc.RequiredMap("data")
	if err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "pushDatastream", "read event document")
	}
	eventTime, err := doc.RequiredFloat("time")
	if err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "pushDatastream", "read event document")
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value := data[k]

		stream, err := sc.registry.Lookup(k)
		if err != nil {
			d.logger.Error("event data key has no registered stream",
				"error", err, "channel", k, "uid", sc.uid, "time", eventTime)
			d.countSendError("stream_not_found")
			continue
		}

		if !stream.Encoding().Accepts(value) {
			d.logger.Error("event value type disagrees with declared stream dtype",
				"channel", k,
				"dtype", encodingDTypeLabel(stream.Encoding()),
				"value", fmt.Sprintf("%T", value),
				"uid", sc.uid,
				"time", eventTime)
			d.countSendError("type_mismatch")
			continue
		}

		if err := d.timed("send", func() error { return stream.Send(ctx, value) }); err != nil {
			d.logger.Error("stream send failed",
				"channel", k, "uid", sc.uid, "error", err)
			d.countSendError("store")
			continue
		}
		if d.metrics != nil {
			d.metrics.ValuesSent.Inc()
		}
	}

	// The time stream is created unconditionally during configuration, so
	// its absence is a fatal inconsistency, not a per-key skip.
	timeStream, err := sc.registry.Lookup("time")
	if err != nil {
		return errors.WrapFatal(err, "Dispatcher", "pushDatastream", "locate time stream")
	}
	if err := d.timed("send", func() error { return timeStream.Send(ctx, eventTime) }); err != nil {
		d.countSendError("store")
		return errors.WrapTransient(storeErr(err, "send time"), "Dispatcher", "pushDatastream", "send event time")
	}
	if d.metrics != nil {
		d.metrics.ValuesSent.Inc()
	}
	return nil
}

func (d *Dispatcher) countSendError(reason string) {
	if d.metrics != nil {
		d.metrics.SendErrors.WithLabelValues(reason).Inc()
	}
}

// stopDatastream handles the stop document: every registered stream is
// sealed best effort, then the session is stopped, its metadata updated
// with the scan's outcome, and closed. Stop is terminal until the next
// start document.
func (d *Dispatcher) stopDatastream(ctx context.Context, doc document.Document) error {
	sc, err := d.active("stopDatastream", StateStreaming)
	if err != nil {
		return err
	}

	stopEpoch, err := doc.RequiredFloat("time")
	if err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "stopDatastream", "read stop document")
	}
	exitStatus, err := doc.RequiredString("exit_status")
	if err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "stopDatastream", "read stop document")
	}

	sealed := 0
	for _, label := range sc.registry.Labels() {
		stream, err := sc.registry.Lookup(label)
		if err != nil {
			continue
		}
		if err := d.timed("seal", func() error { return stream.Seal(ctx) }); err != nil {
			d.logger.Error("stream seal failed", "channel", label, "uid", sc.uid, "error", err)
			continue
		}
		sealed++
	}
	if d.metrics != nil {
		d.metrics.StreamsOpen.Set(0)
	}

	if err := d.timed("stop", func() error { return sc.session.Stop(ctx) }); err != nil {
		sc.state = StateFailed
		return errors.WrapTransient(storeErr(err, "stop"), "Dispatcher", "stopDatastream", "stop scan")
	}

	endReason := "ERROR"
	if exitStatus == "success" {
		endReason = "SUCCESS"
	}
	if err := d.timed("update_info", func() error {
		return sc.session.UpdateInfo(ctx, map[string]any{
			"end_time":    isoTime(stopEpoch),
			"exit_status": exitStatus,
			"end_reason":  endReason,
			"num_events":  doc["num_events"],
			"reason":      doc.String("reason", ""),
		})
	}); err != nil {
		sc.state = StateFailed
		return errors.WrapTransient(storeErr(err, "update info"), "Dispatcher", "stopDatastream", "record scan outcome")
	}

	if err := d.timed("close", func() error { return sc.session.Close(ctx) }); err != nil {
		sc.state = StateFailed
		return errors.WrapTransient(storeErr(err, "close"), "Dispatcher", "stopDatastream", "close scan session")
	}

	sc.state = StateClosed
	if d.metrics != nil {
		d.metrics.ScanActive.Set(0)
		d.metrics.ScansTotal.WithLabelValues(endReason).Inc()
	}
	d.logger.Info("scan closed",
		"uid", sc.uid,
		"exit_status", exitStatus,
		"streams_sealed", sealed)
	return nil
}
