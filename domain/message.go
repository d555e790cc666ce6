package domain

import (
	apperrors "chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ChannelKey is the single global chat channel. The fan-out bus channel and
// the durable log topic both carry this name. A multi-room extension would
// turn it into a first-class partition key.
const ChannelKey = "MESSAGES"

// Message is the unit flowing through the pipeline. It has no durable
// identity of its own: the durable log assigns a per-partition offset once
// the message is appended, and the bus copy stays ephemeral.
type Message struct {
	Text       string
	ProducedAt time.Time
}

func NewMessage(text string) Message {
	return Message{Text: text, ProducedAt: time.Now().UTC()}
}

// Envelope is the wire schema crossing the bus and log boundaries.
// Both consumers validate it at deserialization time instead of trusting
// whatever bytes arrive.
type Envelope struct {
	Message    string `json:"message" validate:"required"`
	ProducedAt int64  `json:"producedAt"`
}

var validate = validator.New()

// Encode serializes the message into its envelope form.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(Envelope{
		Message:    m.Text,
		ProducedAt: m.ProducedAt.UnixNano(),
	})
}

// LogKey is the producer-chosen append key. It only serves as a
// partitioning/compaction hint for the log, never as a correctness
// mechanism.
func (m Message) LogKey() []byte {
	return []byte(fmt.Sprintf("message-%d", m.ProducedAt.UnixNano()))
}

// Decode parses and validates an envelope coming off the bus or the log.
// Malformed payloads are rejected deterministically so that subscriber
// loops can drop them without guessing.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %w", apperrors.ErrMalformedPayload, err)
	}
	if err := validate.Struct(env); err != nil {
		return Message{}, fmt.Errorf("%w: %w", apperrors.ErrMalformedPayload, err)
	}
	return Message{
		Text:       env.Message,
		ProducedAt: time.Unix(0, env.ProducedAt).UTC(),
	}, nil
}
