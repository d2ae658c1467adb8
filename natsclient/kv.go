package natsclient

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/udaisingh93/bluesky-blissdata/errors"
)

// KVStore wraps a JetStream key-value bucket. The bridge uses one bucket to
// hold the mutable scan info records, keyed by scan uid.
type KVStore struct {
	kv jetstream.KeyValue
}

// KeyValue opens or creates the named key-value bucket
func (c *Client) KeyValue(ctx context.Context, bucket string) (*KVStore, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "KeyValue", "get jetstream context")
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "KeyValue", "open bucket "+bucket)
	}
	return &KVStore{kv: kv}, nil
}

// Put stores raw bytes under a key
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return errors.WrapTransient(err, "KVStore", "Put", "put key "+key)
	}
	return nil
}

// Get retrieves the raw bytes stored under a key
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "Get", "get key "+key)
	}
	return entry.Value(), nil
}

// PutJSON marshals a value and stores it under a key
func (s *KVStore) PutJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(err, "KVStore", "PutJSON", "marshal value")
	}
	return s.Put(ctx, key, data)
}

// GetJSON retrieves a key and unmarshals it into out
func (s *KVStore) GetJSON(ctx context.Context, key string, out any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.WrapInvalid(err, "KVStore", "GetJSON", "unmarshal value")
	}
	return nil
}
