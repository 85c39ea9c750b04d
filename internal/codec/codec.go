// Package codec encodes the JSON events exchanged over a chat connection.
// Every frame is an object discriminated by its "type" field.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

type Type string

const (
	TypeChatSend      Type = "chat_send"
	TypeReadMark      Type = "read_mark"
	TypeChatDelivered Type = "chat_delivered"
	TypeReadReceipt   Type = "read_receipt"
	TypeAccepted      Type = "accepted"
)

// TimeFormat is used for every timestamp on the wire.
const TimeFormat = time.RFC3339Nano

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// Inbound

type ChatSend struct {
	Body string `json:"body" validate:"required,notblank"`
}

type ReadMark struct {
	MessageID domain.MessageID `json:"message_id" validate:"required,gt=0"`
}

// Outbound

type ChatDelivered struct {
	Type      Type             `json:"type"`
	MessageID domain.MessageID `json:"message_id"`
	Sender    string           `json:"sender"`
	SenderID  string           `json:"sender_id"`
	Body      string           `json:"body"`
	Timestamp string           `json:"timestamp"`
}

type ReadReceipt struct {
	Type      Type             `json:"type"`
	MessageID domain.MessageID `json:"message_id"`
	ReadAt    string           `json:"read_at"`
}

type Accepted struct {
	Type Type           `json:"type"`
	Room domain.RoomKey `json:"room"`
}

func NewChatDelivered(m domain.Message, sender domain.Participant, body string) ChatDelivered {
	return ChatDelivered{
		Type:      TypeChatDelivered,
		MessageID: m.ID,
		Sender:    sender.DisplayName,
		SenderID:  string(sender.ID),
		Body:      body,
		Timestamp: FormatTime(m.CreatedAt),
	}
}

// NewReadReceipt expects a message that has been marked read.
func NewReadReceipt(m domain.Message) ReadReceipt {
	r := ReadReceipt{Type: TypeReadReceipt, MessageID: m.ID}
	if m.ReadAt != nil {
		r.ReadAt = FormatTime(*m.ReadAt)
	}
	return r
}

func NewAccepted(key domain.RoomKey) Accepted {
	return Accepted{Type: TypeAccepted, Room: key}
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// Decode parses one inbound frame into *ChatSend or *ReadMark.
// Anything else is wrapped in domain.ErrMalformedPayload.
func Decode(data []byte) (any, error) {
	var env struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	var v any
	switch env.Type {
	case TypeChatSend:
		v = &ChatSend{}
	case TypeReadMark:
		v = &ReadMark{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", domain.ErrMalformedPayload, env.Type)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return v, nil
}

// Encode serializes an outbound event into a frame.
func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return core.Frame(b), nil
}
