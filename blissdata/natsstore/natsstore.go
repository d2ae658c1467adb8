// Package natsstore implements the blissdata store interfaces on top of NATS
// JetStream. Each scan maps to one JetStream stream carrying a subject per
// channel, and the mutable scan info record lives in a key-value bucket keyed
// by scan uid.
package natsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/udaisingh93/bluesky-blissdata/blissdata"
	"github.com/udaisingh93/bluesky-blissdata/errors"
	"github.com/udaisingh93/bluesky-blissdata/natsclient"
)

const (
	defaultInfoBucket = "scan-info"
	sealToken         = "seal"
)

// Store publishes scans into a NATS JetStream deployment
type Store struct {
	client *natsclient.Client
	logger *slog.Logger

	infoBucket   string
	streamPrefix string

	mu sync.Mutex
	kv *natsclient.KVStore
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets a custom logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInfoBucket overrides the key-value bucket holding scan info records
func WithInfoBucket(bucket string) Option {
	return func(s *Store) {
		if bucket != "" {
			s.infoBucket = bucket
		}
	}
}

// WithStreamPrefix overrides the JetStream stream name prefix
func WithStreamPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.streamPrefix = prefix
		}
	}
}

// New creates a store over an already configured NATS client
func New(client *natsclient.Client, opts ...Option) *Store {
	s := &Store{
		client:       client,
		logger:       slog.Default(),
		infoBucket:   defaultInfoBucket,
		streamPrefix: "SCAN",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) infoKV(ctx context.Context) (*natsclient.KVStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kv != nil {
		return s.kv, nil
	}
	kv, err := s.client.KeyValue(ctx, s.infoBucket)
	if err != nil {
		return nil, err
	}
	s.kv = kv
	return kv, nil
}

// streamName derives a JetStream-safe stream name from a scan uid
func (s *Store) streamName(uid string) string {
	clean := strings.NewReplacer("-", "_", ".", "_", " ", "_", "*", "_", ">", "_").Replace(uid)
	return s.streamPrefix + "_" + strings.ToUpper(clean)
}

// subjectToken derives a subject-safe token from a channel label
func subjectToken(label string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(label)
}

// CreateScan provisions the scan's JetStream stream and writes its initial
// info record.
func (s *Store) CreateScan(ctx context.Context, identity blissdata.ScanIdentity, info map[string]any) (blissdata.Session, error) {
	uid, _ := info["uid"].(string)
	if uid == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: uid", errors.ErrMissingField),
			"Store", "CreateScan", "read scan info")
	}

	kv, err := s.infoKV(ctx)
	if err != nil {
		return nil, err
	}

	_, err = s.client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     s.streamName(uid),
		Subjects: []string{fmt.Sprintf("scan.%s.>", subjectToken(uid))},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return nil, err
	}

	record := map[string]any{
		"identity": identity,
		"state":    "CREATED",
	}
	for k, v := range info {
		record[k] = v
	}
	if err := kv.PutJSON(ctx, uid, record); err != nil {
		return nil, err
	}

	s.logger.Info("scan provisioned",
		"uid", uid,
		"stream", s.streamName(uid),
		"session", identity.Session)

	return &session{
		store:    s,
		kv:       kv,
		identity: identity,
		uid:      uid,
		info:     record,
	}, nil
}

// session is one live scan inside the store
type session struct {
	store *Store
	kv    *natsclient.KVStore

	identity blissdata.ScanIdentity
	uid      string

	mu     sync.Mutex
	info   map[string]any
	closed bool
}

func (sess *session) Identity() blissdata.ScanIdentity {
	return sess.identity
}

func (sess *session) Info() map[string]any {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make(map[string]any, len(sess.info))
	for k, v := range sess.info {
		out[k] = v
	}
	return out
}

// UpdateInfo merges fields into the scan record and persists it
func (sess *session) UpdateInfo(ctx context.Context, fields map[string]any) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return errors.ErrSessionClosed
	}
	for k, v := range fields {
		sess.info[k] = v
	}
	return sess.kv.PutJSON(ctx, sess.uid, sess.info)
}

// CreateStream declares a channel subject inside the scan's stream
func (sess *session) CreateStream(ctx context.Context, label string, enc blissdata.Encoding, info map[string]any) (blissdata.Stream, error) {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil, errors.ErrSessionClosed
	}
	sess.mu.Unlock()

	// The stream info record sits next to the scan record so readers can
	// decode channel payloads without parsing the scan info blob.
	key := fmt.Sprintf("%s.stream.%s", sess.uid, subjectToken(label))
	if err := sess.kv.PutJSON(ctx, key, info); err != nil {
		return nil, err
	}

	return &stream{
		client:   sess.store.client,
		subject:  fmt.Sprintf("scan.%s.%s", subjectToken(sess.uid), subjectToken(label)),
		label:    label,
		encoding: enc,
	}, nil
}

func (sess *session) setState(ctx context.Context, state string) error {
	return sess.UpdateInfo(ctx, map[string]any{"state": state})
}

func (sess *session) Prepare(ctx context.Context) error {
	return sess.setState(ctx, "PREPARED")
}

func (sess *session) Start(ctx context.Context) error {
	return sess.setState(ctx, "STARTED")
}

func (sess *session) Stop(ctx context.Context) error {
	return sess.setState(ctx, "STOPPED")
}

// Close marks the scan record closed; the JetStream stream stays readable
// for downstream consumers.
func (sess *session) Close(ctx context.Context) error {
	if err := sess.setState(ctx, "CLOSED"); err != nil {
		return err
	}
	sess.mu.Lock()
	sess.closed = true
	sess.mu.Unlock()
	return nil
}

// stream is one channel's append-only value sequence
type stream struct {
	client   *natsclient.Client
	subject  string
	label    string
	encoding blissdata.Encoding

	mu     sync.Mutex
	sealed bool
}

func (st *stream) Label() string {
	return st.label
}

func (st *stream) Encoding() blissdata.Encoding {
	return st.encoding
}

// Send publishes one value to the channel subject
func (st *stream) Send(ctx context.Context, value any) error {
	st.mu.Lock()
	if st.sealed {
		st.mu.Unlock()
		return fmt.Errorf("%w: %s", errors.ErrStreamSealed, st.label)
	}
	st.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(err, "Stream", "Send", "marshal value")
	}
	return st.client.PublishToStream(ctx, st.subject, data)
}

// Seal publishes the end-of-stream sentinel and refuses further sends
func (st *stream) Seal(ctx context.Context) error {
	st.mu.Lock()
	if st.sealed {
		st.mu.Unlock()
		return nil
	}
	st.mu.Unlock()

	if err := st.client.PublishToStream(ctx, st.subject+"."+sealToken, nil); err != nil {
		return err
	}
	st.mu.Lock()
	st.sealed = true
	st.mu.Unlock()
	return nil
}
