package blissdata

// DeviceInfo describes one device bucket in the scan metadata
type DeviceInfo struct {
	Name     string         `json:"name"`
	Channels []string       `json:"channels"`
	Metadata map[string]any `json:"metadata"`
}

// ChannelInfo describes one channel in the scan metadata
type ChannelInfo struct {
	Device      string `json:"device"`
	Dim         int    `json:"dim"`
	DisplayName string `json:"display_name"`
	Group       string `json:"group,omitempty"`
}

// MasterInfo lists the channels of the chain's master device by shape class
type MasterInfo struct {
	Scalars []string `json:"scalars"`
	Spectra []string `json:"spectra"`
	Images  []string `json:"images"`
}

// ChainInfo describes one acquisition chain: which devices feed which
// top-level master and which channels are scalars, spectra or images.
type ChainInfo struct {
	TopMaster string     `json:"top_master"`
	Devices   []string   `json:"devices"`
	Scalars   []string   `json:"scalars"`
	Spectra   []string   `json:"spectra"`
	Images    []string   `json:"images"`
	Master    MasterInfo `json:"master"`
}

// PlotItem pairs one x axis with one y channel for a plot descriptor
type PlotItem struct {
	Kind string `json:"kind"`
	X    string `json:"x"`
	Y    string `json:"y"`
}

// Plot is one plot descriptor consumed by downstream visualization
type Plot struct {
	Kind  string     `json:"kind"`
	Name  string     `json:"name"`
	Items []PlotItem `json:"items"`
}
