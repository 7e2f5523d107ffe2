package wirebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when ingested bytes are not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// ErrNoTopic is returned when the topic path yields no string value.
var ErrNoTopic = errors.New("missing topic field")

// ErrMissingField is returned when a required field path is absent.
var ErrMissingField = errors.New("missing required field")

// Ingest routes raw JSON messages onto a bus. The dispatch topic is read
// from a configurable field of the message and used as the call filter, so
// a message like
//
//	{"topic": "orders.created", "payload": {"id": 41}}
//
// fans out to every handler registered under a pattern matching
// "orders.created", with the raw payload bytes as the call argument.
type Ingest struct {
	dispatcher  Dispatcher
	topicPath   string
	payloadPath string
	required    []string
}

// IngestOption configures an Ingest.
type IngestOption func(*Ingest)

// TopicPath sets the gjson path the topic is read from. Default "topic".
func TopicPath(path string) IngestOption {
	return func(in *Ingest) {
		in.topicPath = path
	}
}

// PayloadPath sets the gjson path the payload is read from. Default
// "payload". A message without the payload field dispatches with no
// arguments.
func PayloadPath(path string) IngestOption {
	return func(in *Ingest) {
		in.payloadPath = path
	}
}

// RequireFields rejects messages missing any of the given gjson paths.
// Cheap presence checks run before anything is dispatched.
func RequireFields(paths ...string) IngestOption {
	return func(in *Ingest) {
		in.required = append(in.required, paths...)
	}
}

// NewIngest builds an Ingest feeding the given bus, using the bus's default
// executor.
func NewIngest(b *Bus, opts ...IngestOption) *Ingest {
	in := &Ingest{
		dispatcher:  b.Dispatcher,
		topicPath:   "topic",
		payloadPath: "payload",
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Feed validates and dispatches one raw JSON message, returning the Event
// for the fan-out. A topic that matches no registration yields an Event with
// zero submitted handles, not an error.
func (in *Ingest) Feed(ctx context.Context, raw []byte) (*Event, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}

	for _, path := range in.required {
		if !gjson.GetBytes(raw, path).Exists() {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, path)
		}
	}

	topic := gjson.GetBytes(raw, in.topicPath)
	if !topic.Exists() || topic.Type != gjson.String || topic.String() == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoTopic, in.topicPath)
	}

	var args []any
	if payload := gjson.GetBytes(raw, in.payloadPath); payload.Exists() {
		args = append(args, json.RawMessage(payload.Raw))
	}

	return in.dispatcher.WithFilter(topic.String()).Call(ctx, args...), nil
}
