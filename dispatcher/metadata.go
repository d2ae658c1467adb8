package dispatcher

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/udaisingh93/bluesky-blissdata/blissdata"
)

// Plot type tags carried on axis channels
const (
	plotTypeNone    = 0
	plotTypeCurve   = 1
	plotTypeScatter = 2
	plotTypeImage   = 3
)

const chainName = "axis"

// isGridScan reports whether a scan name selects the coordinate-grid plot
// and range handling.
func isGridScan(name string) bool {
	return strings.Contains(strings.ToLower(name), "grid")
}

// buildChain constructs the single declared acquisition chain: the timer is
// the master, every non-timer channel is a scalar, and the spectra/images
// paths stay empty because no multidimensional channel is mapped.
func (sc *scanContext) buildChain() map[string]blissdata.ChainInfo {
	devices := make([]string, 0, len(sc.deviceOrder))
	scalars := []string{}
	masterScalars := []string{}
	for _, dev := range sc.deviceOrder {
		devices = append(devices, string(dev))
		bucket := sc.devices[dev]
		if dev == DeviceTimer {
			masterScalars = append(masterScalars, bucket.Channels...)
			continue
		}
		scalars = append(scalars, bucket.Channels...)
	}

	return map[string]blissdata.ChainInfo{
		chainName: {
			TopMaster: string(DeviceTimer),
			Devices:   devices,
			Scalars:   scalars,
			Spectra:   []string{},
			Images:    []string{},
			Master: blissdata.MasterInfo{
				Scalars: masterScalars,
				Spectra: []string{},
				Images:  []string{},
			},
		},
	}
}

// buildScanInfo assembles the scan metadata record consumed by the store's
// info field and by downstream plotting clients. Pure read access to the
// scan context; the only side effect is a log line for the unsupported
// image plot kind.
func (sc *scanContext) buildScanInfo(logger *slog.Logger) map[string]any {
	name := sc.identity.Name

	devices := make(map[string]*blissdata.DeviceInfo, len(sc.devices))
	for dev, bucket := range sc.devices {
		devices[string(dev)] = bucket
	}

	info := map[string]any{
		"name":              name,
		"scan_nb":           sc.identity.Number,
		"session_name":      sc.identity.Session,
		"catalog_data":      sc.catalogData,
		"data_policy":       sc.identity.DataPolicy,
		"start_time":        sc.startTime,
		"type":              name,
		"npoints":           sc.npoints,
		"count_time":        sc.countTime,
		"title":             name + strconv.Itoa(sc.identity.Number),
		"acquisition_chain": sc.chain,
		"devices":           devices,
		"channels":          sc.channels,
		"display_extra":     map[string]any{"plotselect": []string{}},
		"start":             sc.rangeStart,
		"stop":              sc.rangeStop,
		"user_name":         "bluesky",
	}

	// Plot axes derive from the first declared motor's channel; scans with
	// no motors fall back to the implicit time channel.
	primary := "time"
	if len(sc.motors) > 0 && sc.motors[0] != "" {
		primary = sc.motors[0]
	}
	meta := sc.channelMeta[primary]

	items := []blissdata.PlotItem{}
	switch meta.PlotType {
	case plotTypeCurve, plotTypeScatter:
		kind := "curve"
		if meta.PlotType == plotTypeScatter {
			kind = "scatter"
		}
		for _, axis := range meta.PlotAxes {
			if meta.Name == axis {
				continue
			}
			items = append(items, blissdata.PlotItem{Kind: kind, X: axis, Y: meta.Name})
		}
	case plotTypeImage:
		logger.Warn("image plots not supported, emitting empty plot items",
			"channel", primary)
	}

	plotKind := "curve-plot"
	plotName := "Curve-Plot"
	if isGridScan(name) {
		plotKind = "scatter-plot"
		plotName = "Scatter-Plot"
	}
	info["plots"] = []blissdata.Plot{{Kind: plotKind, Name: plotName, Items: items}}

	return info
}
