// Package subscriber receives bluesky documents from NATS and feeds them to
// the dispatcher in arrival order.
package subscriber

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/udaisingh93/bluesky-blissdata/dispatcher"
	"github.com/udaisingh93/bluesky-blissdata/document"
	"github.com/udaisingh93/bluesky-blissdata/errors"
	"github.com/udaisingh93/bluesky-blissdata/natsclient"
)

// DefaultSubject is the wildcard subject the bridge listens on. The last
// subject token names the document kind.
const DefaultSubject = "bluesky.documents.>"

const pendingBuffer = 256

// Subscriber consumes documents from a NATS subject and dispatches them one
// at a time. Delivery order defines processing order; no documents are
// handled concurrently.
type Subscriber struct {
	client     *natsclient.Client
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	subject    string

	sub     *nats.Subscription
	msgs    chan *nats.Msg
	done    chan struct{}
	started atomic.Bool
}

// Option configures a Subscriber
type Option func(*Subscriber)

// WithLogger sets a custom logger for the subscriber
func WithLogger(logger *slog.Logger) Option {
	return func(s *Subscriber) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSubject overrides the subject the subscriber listens on
func WithSubject(subject string) Option {
	return func(s *Subscriber) {
		if subject != "" {
			s.subject = subject
		}
	}
}

// New creates a subscriber feeding the given dispatcher
func New(client *natsclient.Client, disp *dispatcher.Dispatcher, opts ...Option) *Subscriber {
	s := &Subscriber{
		client:     client,
		dispatcher: disp,
		logger:     slog.Default(),
		subject:    DefaultSubject,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes and begins processing documents until the context is
// canceled or Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Subscriber", "Start", "check state")
	}

	conn, err := s.client.Conn()
	if err != nil {
		s.started.Store(false)
		return errors.WrapTransient(err, "Subscriber", "Start", "get connection")
	}

	s.msgs = make(chan *nats.Msg, pendingBuffer)
	s.done = make(chan struct{})

	sub, err := conn.ChanSubscribe(s.subject, s.msgs)
	if err != nil {
		s.started.Store(false)
		return errors.WrapTransient(err, "Subscriber", "Start", "subscribe to "+s.subject)
	}
	s.sub = sub

	go s.run(ctx)

	s.logger.Info("subscriber started", "subject", s.subject)
	return nil
}

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.msgs:
			if !ok {
				return
			}
			if err := s.handle(ctx, msg.Subject, msg.Data); err != nil {
				s.logger.Error("document handling failed",
					"subject", msg.Subject,
					"class", errors.Classify(err).String(),
					"error", err)
			}
		}
	}
}

// handle decodes and dispatches one raw document payload
func (s *Subscriber) handle(ctx context.Context, subject string, data []byte) error {
	kind := kindFromSubject(subject)

	var doc document.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.WrapInvalid(err, "Subscriber", "handle", "decode document payload")
	}

	return s.dispatcher.Dispatch(ctx, kind, doc)
}

// Stop unsubscribes and waits for the in-flight document to finish
func (s *Subscriber) Stop(ctx context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}

	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribe failed", "error", err)
		}
	}
	close(s.msgs)

	select {
	case <-s.done:
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Subscriber", "Stop", "wait for processing loop")
	}

	s.logger.Info("subscriber stopped", "subject", s.subject)
	return nil
}

// Healthy reports whether the subscriber is running over a live connection
func (s *Subscriber) Healthy() bool {
	return s.started.Load() && s.client.IsHealthy()
}

// kindFromSubject extracts the document kind from the last subject token
func kindFromSubject(subject string) document.Kind {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 || idx == len(subject)-1 {
		return document.KindUnknown
	}
	return document.ParseKind(subject[idx+1:])
}
