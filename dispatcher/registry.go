package dispatcher

import (
	"fmt"

	"github.com/udaisingh93/bluesky-blissdata/blissdata"
	"github.com/udaisingh93/bluesky-blissdata/errors"
)

// streamRegistry maps channel labels to their remote stream handles for the
// duration of one scan. The dispatcher owns it exclusively: it is populated
// during descriptor processing, drained during event push and seal, and
// replaced wholesale at the next scan's configuration.
type streamRegistry struct {
	streams map[string]blissdata.Stream
	order   []string
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{streams: make(map[string]blissdata.Stream)}
}

// Bind registers a stream handle under a channel label. A label already
// bound in this scan stays bound; rebinding is refused until the registry
// is reset by the next configuration phase.
func (r *streamRegistry) Bind(label string, stream blissdata.Stream) error {
	if _, exists := r.streams[label]; exists {
		return fmt.Errorf("%w: %q", errors.ErrStreamBound, label)
	}
	r.streams[label] = stream
	r.order = append(r.order, label)
	return nil
}

// Lookup returns the stream bound to a label
func (r *streamRegistry) Lookup(label string) (blissdata.Stream, error) {
	stream, ok := r.streams[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrStreamNotFound, label)
	}
	return stream, nil
}

// Labels returns the bound labels in binding order
func (r *streamRegistry) Labels() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of bound streams
func (r *streamRegistry) Len() int {
	return len(r.streams)
}
