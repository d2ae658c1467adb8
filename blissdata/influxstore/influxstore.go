// Package influxstore implements the blissdata store interfaces on top of
// InfluxDB v2. Channel values land as points in a per-channel series tagged
// with the scan uid; scan info and state transitions are recorded as
// annotation points in their own measurements.
package influxstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/udaisingh93/bluesky-blissdata/blissdata"
	"github.com/udaisingh93/bluesky-blissdata/errors"
)

// Measurement names used by the store
const (
	measurementValues = "scan_values"
	measurementInfo   = "scan_info"
	measurementState  = "scan_state"
)

const defaultPingTimeout = 5 * time.Second

// Config holds the InfluxDB connection settings
type Config struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Validate checks that the required connection settings are present
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: influxdb url", errors.ErrMissingConfig)
	}
	if c.Org == "" {
		return fmt.Errorf("%w: influxdb org", errors.ErrMissingConfig)
	}
	if c.Bucket == "" {
		return fmt.Errorf("%w: influxdb bucket", errors.ErrMissingConfig)
	}
	return nil
}

// Store publishes scans into an InfluxDB bucket. Writes go through the
// blocking API so every store call reports its outcome synchronously.
type Store struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *slog.Logger
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

// Connect creates the store and verifies connectivity with a ping
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Store", "Connect", "validate config")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, errors.WrapTransient(err, "Store", "Connect", "ping influxdb")
	}
	if !healthy {
		client.Close()
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: influxdb not healthy", errors.ErrStoreCall),
			"Store", "Connect", "ping influxdb")
	}

	s := &Store{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close shuts down the underlying client
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// HealthCheck performs an active ping against the server
func (s *Store) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := s.client.Ping(pingCtx)
	if err != nil {
		return errors.WrapTransient(err, "Store", "HealthCheck", "ping influxdb")
	}
	if !healthy {
		return errors.WrapTransient(
			fmt.Errorf("%w: influxdb not healthy", errors.ErrStoreCall),
			"Store", "HealthCheck", "ping influxdb")
	}
	return nil
}

func (s *Store) writeInfo(ctx context.Context, uid string, info map[string]any) error {
	data, err := json.Marshal(info)
	if err != nil {
		return errors.WrapInvalid(err, "Store", "writeInfo", "marshal scan info")
	}
	point := write.NewPoint(measurementInfo,
		map[string]string{"scan_uid": uid},
		map[string]any{"info": string(data)},
		time.Now())
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return errors.WrapTransient(err, "Store", "writeInfo", "write scan info point")
	}
	return nil
}

func (s *Store) writeState(ctx context.Context, uid, state string) error {
	point := write.NewPoint(measurementState,
		map[string]string{"scan_uid": uid},
		map[string]any{"state": state},
		time.Now())
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return errors.WrapTransient(err, "Store", "writeState", "write scan state point")
	}
	return nil
}

// CreateScan records the scan's initial info and opens a session
func (s *Store) CreateScan(ctx context.Context, identity blissdata.ScanIdentity, info map[string]any) (blissdata.Session, error) {
	uid, _ := info["uid"].(string)
	if uid == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: uid", errors.ErrMissingField),
			"Store", "CreateScan", "read scan info")
	}

	record := map[string]any{"identity": identity}
	for k, v := range info {
		record[k] = v
	}
	if err := s.writeInfo(ctx, uid, record); err != nil {
		return nil, err
	}
	if err := s.writeState(ctx, uid, "CREATED"); err != nil {
		return nil, err
	}

	s.logger.Info("scan provisioned", "uid", uid, "session", identity.Session)

	return &session{
		store:    s,
		identity: identity,
		uid:      uid,
		info:     record,
	}, nil
}

type session struct {
	store *Store

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

func (sess *session) UpdateInfo(ctx context.Context, fields map[string]any) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return errors.ErrSessionClosed
	}
	for k, v := range fields {
		sess.info[k] = v
	}
	return sess.store.writeInfo(ctx, sess.uid, sess.info)
}

func (sess *session) CreateStream(_ context.Context, label string, enc blissdata.Encoding, _ map[string]any) (blissdata.Stream, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil, errors.ErrSessionClosed
	}
	return &stream{
		store:    sess.store,
		uid:      sess.uid,
		label:    label,
		encoding: enc,
	}, nil
}

func (sess *session) setState(ctx context.Context, state string) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return errors.ErrSessionClosed
	}
	return sess.store.writeState(ctx, sess.uid, state)
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

func (sess *session) Close(ctx context.Context) error {
	if err := sess.setState(ctx, "CLOSED"); err != nil {
		return err
	}
	sess.mu.Lock()
	sess.closed = true
	sess.mu.Unlock()
	return nil
}

type stream struct {
	store *Store

	uid      string
	label    string
	encoding blissdata.Encoding

	mu     sync.Mutex
	index  int64
	sealed bool
}

func (st *stream) Label() string {
	return st.label
}

func (st *stream) Encoding() blissdata.Encoding {
	return st.encoding
}

// Send writes one value point. Numeric encodings store the value directly;
// the JSON encoding stores its serialized form so mixed payloads stay
// queryable.
func (st *stream) Send(ctx context.Context, value any) error {
	st.mu.Lock()
	if st.sealed {
		st.mu.Unlock()
		return fmt.Errorf("%w: %s", errors.ErrStreamSealed, st.label)
	}
	index := st.index
	st.index++
	st.mu.Unlock()

	fields := map[string]any{"index": index}
	if st.encoding.Kind == blissdata.EncodingJSON {
		data, err := json.Marshal(value)
		if err != nil {
			return errors.WrapInvalid(err, "Stream", "Send", "marshal value")
		}
		fields["value_json"] = string(data)
	} else {
		fields["value"] = value
	}

	point := write.NewPoint(measurementValues,
		map[string]string{"scan_uid": st.uid, "channel": st.label},
		fields,
		time.Now())
	if err := st.store.writeAPI.WritePoint(ctx, point); err != nil {
		return errors.WrapTransient(err, "Stream", "Send", "write value point")
	}
	return nil
}

// Seal marks the channel complete with a final annotation point
func (st *stream) Seal(ctx context.Context) error {
	st.mu.Lock()
	if st.sealed {
		st.mu.Unlock()
		return nil
	}
	count := st.index
	st.mu.Unlock()

	point := write.NewPoint(measurementState,
		map[string]string{"scan_uid": st.uid, "channel": st.label},
		map[string]any{"state": "SEALED", "count": count},
		time.Now())
	if err := st.store.writeAPI.WritePoint(ctx, point); err != nil {
		return errors.WrapTransient(err, "Stream", "Seal", "write seal point")
	}

	st.mu.Lock()
	st.sealed = true
	st.mu.Unlock()
	return nil
}
