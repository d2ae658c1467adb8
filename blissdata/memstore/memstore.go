// Package memstore provides an in-memory blissdata.Store used by tests. It
// records every call made against it and supports per-operation failure
// injection.
package memstore

import (
	"context"
	"sync"

	"github.com/udaisingh93/bluesky-blissdata/blissdata"
	"github.com/udaisingh93/bluesky-blissdata/errors"
)

// Store is an in-memory Store implementation
type Store struct {
	mu sync.Mutex

	// Sessions holds every scan session ever created, in creation order
	Sessions []*Session

	// FailCreateScan, when set, makes CreateScan return this error
	FailCreateScan error
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{}
}

// CreateScan opens a new recorded session
func (s *Store) CreateScan(_ context.Context, identity blissdata.ScanIdentity, info map[string]any) (blissdata.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreateScan != nil {
		return nil, s.FailCreateScan
	}
	sess := &Session{
		identity: identity,
		info:     copyInfo(info),
		streams:  make(map[string]*Stream),
	}
	s.Sessions = append(s.Sessions, sess)
	return sess, nil
}

// LastSession returns the most recently created session, or nil
func (s *Store) LastSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Sessions) == 0 {
		return nil
	}
	return s.Sessions[len(s.Sessions)-1]
}

// Session is a recorded scan session
type Session struct {
	mu sync.Mutex

	identity blissdata.ScanIdentity
	info     map[string]any

	streams map[string]*Stream
	order   []string

	Prepared bool
	Started  bool
	Stopped  bool
	Closed   bool

	// Failure injection, checked by the corresponding methods
	FailCreateStream error
	FailUpdateInfo   error
	FailPrepare      error
	FailStart        error
	FailStop         error
	FailClose        error
	FailSealFor      map[string]error
	FailSendFor      map[string]error
}

// Identity returns the identity the session was created with
func (s *Session) Identity() blissdata.ScanIdentity {
	return s.identity
}

// Info returns the accumulated scan info map
func (s *Session) Info() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyInfo(s.info)
}

// UpdateInfo merges fields into the scan info map
func (s *Session) UpdateInfo(_ context.Context, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdateInfo != nil {
		return s.FailUpdateInfo
	}
	for k, v := range fields {
		s.info[k] = v
	}
	return nil
}

// CreateStream registers a new recorded stream under the given label
func (s *Session) CreateStream(_ context.Context, label string, enc blissdata.Encoding, info map[string]any) (blissdata.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreateStream != nil {
		return nil, s.FailCreateStream
	}
	st := &Stream{
		label:    label,
		encoding: enc,
		Info:     copyInfo(info),
		sealErr:  s.FailSealFor[label],
		sendErr:  s.FailSendFor[label],
	}
	s.streams[label] = st
	s.order = append(s.order, label)
	return st, nil
}

// Stream returns the recorded stream for a label, or nil
func (s *Session) Stream(label string) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams[label]
}

// StreamLabels returns the labels of all created streams in creation order
func (s *Session) StreamLabels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Prepare marks the session prepared
func (s *Session) Prepare(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPrepare != nil {
		return s.FailPrepare
	}
	s.Prepared = true
	return nil
}

// Start marks the session started
func (s *Session) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStart != nil {
		return s.FailStart
	}
	s.Started = true
	return nil
}

// Stop marks the session stopped
func (s *Session) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStop != nil {
		return s.FailStop
	}
	s.Stopped = true
	return nil
}

// Close marks the session closed
func (s *Session) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailClose != nil {
		return s.FailClose
	}
	s.Closed = true
	return nil
}

// Stream is a recorded append-only stream
type Stream struct {
	mu sync.Mutex

	label    string
	encoding blissdata.Encoding

	// Info is the info map the stream was created with
	Info map[string]any

	// Values holds every value sent, in order
	Values []any

	// SealedFlag reports whether Seal succeeded
	SealedFlag bool

	sendErr error
	sealErr error
}

// Label returns the stream label
func (st *Stream) Label() string { return st.label }

// Encoding returns the stream's declared encoding
func (st *Stream) Encoding() blissdata.Encoding { return st.encoding }

// Send appends a value to the stream
func (st *Stream) Send(_ context.Context, value any) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sendErr != nil {
		return st.sendErr
	}
	if st.SealedFlag {
		return errors.ErrStreamSealed
	}
	st.Values = append(st.Values, value)
	return nil
}

// Seal closes the stream for further sends
func (st *Stream) Seal(context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sealErr != nil {
		return st.sealErr
	}
	st.SealedFlag = true
	return nil
}

// Sealed reports whether the stream has been sealed
func (st *Stream) Sealed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.SealedFlag
}

func copyInfo(info map[string]any) map[string]any {
	out := make(map[string]any, len(info))
	for k, v := range info {
		out[k] = v
	}
	return out
}
