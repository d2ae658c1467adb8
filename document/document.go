// Package document models the four bluesky lifecycle documents consumed by
// the bridge and validates them against their event-model schemas.
package document

// Kind identifies one of the four lifecycle document kinds. The zero value
// is KindUnknown so that unrecognized kinds are an explicit branch for the
// dispatcher rather than a fallthrough.
type Kind int

// Document kinds in their lifecycle order
const (
	KindUnknown Kind = iota
	KindStart
	KindDescriptor
	KindEvent
	KindStop
)

// String returns the wire name of the document kind
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindDescriptor:
		return "descriptor"
	case KindEvent:
		return "event"
	case KindStop:
		return "stop"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire name to a Kind. Unrecognized names map to
// KindUnknown; the dispatcher treats those as a deliberate no-op so
// forward-compatible document kinds pass through silently.
func ParseKind(name string) Kind {
	switch name {
	case "start":
		return KindStart
	case "descriptor":
		return KindDescriptor
	case "event":
		return KindEvent
	case "stop":
		return KindStop
	default:
		return KindUnknown
	}
}

// Document is one lifecycle message payload: a mapping of named fields as
// delivered by the transport. Field access goes through the typed accessors
// in fields.go so missing required fields surface as MissingFieldError.
type Document map[string]any
