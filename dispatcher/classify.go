package dispatcher

// Device is a classification bucket for channels
type Device string

// The fixed device categories. DeviceUnclassified is deliberate: a channel
// whose source appears in neither the motor nor the detector list lands in
// an explicit empty-named bucket instead of inheriting the previous
// channel's classification.
const (
	DeviceTimer        Device = "timer"
	DeviceCounters     Device = "counters"
	DeviceAxis         Device = "axis"
	DeviceUnclassified Device = ""
)

// Classify assigns a channel's source name to a device category. Axis wins
// over counters when a name appears in both lists, because motor membership
// is checked first.
func Classify(source string, motors, detectors []string) Device {
	for _, m := range motors {
		if source == m {
			return DeviceAxis
		}
	}
	for _, d := range detectors {
		if source == d {
			return DeviceCounters
		}
	}
	return DeviceUnclassified
}
