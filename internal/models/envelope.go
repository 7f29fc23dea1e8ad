package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Payload encodings for published envelopes
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Envelope wraps a dispatched Notification with delivery metadata for the
// outbound event stream.
type Envelope struct {
	ID           string       `json:"id" msgpack:"id"`
	Notification Notification `json:"notification" msgpack:"notification"`
	EmittedAt    time.Time    `json:"emitted_at" msgpack:"emitted_at"`
	Node         string       `json:"node" msgpack:"node"`
	PartitionKey string       `json:"partition_key" msgpack:"partition_key"`
}

// NewEnvelope creates an envelope for n emitted by node
func NewEnvelope(n Notification, node string) *Envelope {
	return &Envelope{
		ID:           uuid.New().String(),
		Notification: n,
		EmittedAt:    time.Now().UTC(),
		Node:         node,
		PartitionKey: string(n.Rule), // keep each rule's events in order
	}
}

// Encode serializes the envelope with the named encoding
func (e *Envelope) Encode(encoding string) ([]byte, error) {
	switch encoding {
	case "", EncodingJSON:
		return json.Marshal(e)
	case EncodingMsgpack:
		return msgpack.Marshal(e)
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

// DecodeEnvelope is the inverse of Encode
func DecodeEnvelope(data []byte, encoding string) (*Envelope, error) {
	var e Envelope
	var err error
	switch encoding {
	case "", EncodingJSON:
		err = json.Unmarshal(data, &e)
	case EncodingMsgpack:
		err = msgpack.Unmarshal(data, &e)
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
