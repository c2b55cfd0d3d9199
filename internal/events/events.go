// Package events publishes token lifecycle events to a message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/contokens/internal/idgen"
)

// Event topic constants
const (
	TopicGenerated = "tokens.generated"
	TopicIssued    = "tokens.issued"
	TopicSent      = "tokens.sent"
	TopicExported  = "tokens.exported"
	TopicImported  = "tokens.imported"

	// TopicAll matches every token topic.
	TopicAll = "tokens.>"
)

// Event types

type Generated struct {
	Type  string `json:"token_type"`
	Count int    `json:"count"`
}

// Issued is emitted when tokens are bound to a recipient. Token values are
// deliberately absent; subscribers learn only how many were issued.
type Issued struct {
	Type      string `json:"token_type"`
	Recipient string `json:"email"`
	Count     int    `json:"count"`
}

type Sent struct {
	Type      string `json:"token_type"`
	Recipient string `json:"email"`
	Count     int    `json:"count"`
	Resend    bool   `json:"resend,omitempty"`
}

type Exported struct {
	Type       string `json:"token_type"`
	Count      int    `json:"count"`
	Path       string `json:"path"`
	HashedPath string `json:"hashed_path"`
}

type Imported struct {
	Type     string `json:"token_type"`
	Count    int    `json:"count"`
	Exported bool   `json:"exported"`
}

// Envelope wraps every published payload.
type Envelope struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// Wrap encodes event into an Envelope for topic, stamped with a fresh ID.
func Wrap(topic string, event any) (*Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling event: %w", err)
	}
	now := time.Now().UTC()
	id, err := idgen.New(now)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:      id,
		Topic:   topic,
		Time:    now,
		Payload: payload,
	}, nil
}

// Decode parses a raw envelope as delivered by a Subscriber.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	return &env, nil
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
