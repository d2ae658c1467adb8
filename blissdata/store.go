package blissdata

import "context"

// ScanIdentity is the identity record the store files a scan under
type ScanIdentity struct {
	Name       string `json:"name"`
	Number     int    `json:"number"`
	DataPolicy string `json:"data_policy"`
	Session    string `json:"session"`
	Proposal   string `json:"proposal"`
}

// Store is the remote scan store. One CreateScan call opens one Session;
// the bridge holds exactly one live session at a time.
type Store interface {
	// CreateScan opens a new scan session under the given identity with an
	// initial info record.
	CreateScan(ctx context.Context, identity ScanIdentity, info map[string]any) (Session, error)
}

// Session is the store-side record of one scan run. Lifecycle calls follow
// the fixed order CreateStream*, Prepare, Start, Stop, Close; UpdateInfo may
// be issued at any point before Close.
type Session interface {
	// Identity returns the identity record the session was created with
	Identity() ScanIdentity

	// Info returns the session's current info record
	Info() map[string]any

	// UpdateInfo merges fields into the session's info record
	UpdateInfo(ctx context.Context, fields map[string]any) error

	// CreateStream declares one append-only stream bound to a channel label
	CreateStream(ctx context.Context, label string, enc Encoding, info map[string]any) (Stream, error)

	// Prepare publishes the stream declarations
	Prepare(ctx context.Context) error

	// Start marks the session live
	Start(ctx context.Context) error

	// Stop marks acquisition finished
	Stop(ctx context.Context) error

	// Close terminates the session; no calls are valid afterwards
	Close(ctx context.Context) error
}

// Stream is one append-only remote sequence bound to a channel label for
// the duration of a scan.
type Stream interface {
	// Label returns the channel label the stream is bound to
	Label() string

	// Encoding returns the declared serialization for this stream
	Encoding() Encoding

	// Send appends one value. Implementations fail loudly on values the
	// declared encoding cannot carry.
	Send(ctx context.Context, value any) error

	// Seal closes the stream for further writes. Sealing is idempotent.
	Seal(ctx context.Context) error
}
