package dispatcher

import (
	"time"

	"github.com/udaisingh93/bluesky-blissdata/blissdata"
)

// State tracks where the live scan is in its lifecycle
type State int

// Lifecycle states. A new start document always re-initializes the context,
// so there is no explicit re-entry into StateIdle.
const (
	StateIdle State = iota
	StateConfiguring
	StateStreaming
	StateClosed
	StateFailed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// channelMeta is the per-channel working record built during descriptor
// processing and consumed by the metadata builder.
type channelMeta struct {
	Name      string
	Label     string
	DType     blissdata.DType
	JSON      bool
	Shape     []int
	Unit      string
	Precision int
	PlotType  int
	PlotAxes  []string
	Group     string
}

// scanContext holds all per-scan working state. One is created fresh on
// every start document and replaces the previous one wholesale, which makes
// "no two scans interleave" structural rather than a convention.
type scanContext struct {
	state State

	session  blissdata.Session
	identity blissdata.ScanIdentity

	uid         string
	detectors   []string
	motors      []string
	startTime   string
	npoints     int
	countTime   int
	rangeStart  []float64
	rangeStop   []float64
	catalogData map[string]any

	devices     map[Device]*blissdata.DeviceInfo
	deviceOrder []Device
	channels    map[string]blissdata.ChannelInfo
	channelMeta map[string]channelMeta
	chain       map[string]blissdata.ChainInfo
	registry    *streamRegistry
}

// defaultIdentity is the base identity record every scan starts from; start
// document fields override its name, number and data policy.
func defaultIdentity() blissdata.ScanIdentity {
	return blissdata.ScanIdentity{
		Name:       "my_scan",
		Number:     1,
		DataPolicy: "no_policy",
		Session:    "sim_session",
		Proposal:   "blc00001",
	}
}

func newScanContext() *scanContext {
	sc := &scanContext{
		state:       StateConfiguring,
		identity:    defaultIdentity(),
		countTime:   1,
		rangeStart:  []float64{},
		rangeStop:   []float64{},
		channels:    make(map[string]blissdata.ChannelInfo),
		channelMeta: make(map[string]channelMeta),
		chain:       make(map[string]blissdata.ChainInfo),
		registry:    newStreamRegistry(),
	}
	sc.resetDevices()
	return sc
}

// resetDevices replaces the device buckets with the three fixed empty
// categories plus the explicit unclassified bucket.
func (sc *scanContext) resetDevices() {
	sc.deviceOrder = []Device{DeviceTimer, DeviceCounters, DeviceAxis}
	sc.devices = map[Device]*blissdata.DeviceInfo{
		DeviceTimer:    {Name: string(DeviceTimer), Channels: []string{}, Metadata: map[string]any{}},
		DeviceCounters: {Name: string(DeviceCounters), Channels: []string{}, Metadata: map[string]any{}},
		DeviceAxis:     {Name: string(DeviceAxis), Channels: []string{}, Metadata: map[string]any{}},
	}
}

// assign appends a channel label to its device bucket, materializing the
// unclassified bucket on first use.
func (sc *scanContext) assign(dev Device, label string) {
	bucket, ok := sc.devices[dev]
	if !ok {
		bucket = &blissdata.DeviceInfo{Name: string(dev), Channels: []string{}, Metadata: map[string]any{}}
		sc.devices[dev] = bucket
		sc.deviceOrder = append(sc.deviceOrder, dev)
	}
	bucket.Channels = append(bucket.Channels, label)
}

// isoTime renders an epoch timestamp in ISO-8601 form, seconds resolution
// with a fractional part only when the input carries one.
func isoTime(epoch float64) string {
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).Format("2006-01-02T15:04:05.999999")
}
