package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestDecode_Valid(t *testing.T) {
	req := require.New(t)

	v, err := Decode([]byte(`{"type":"chat_send","body":"hi"}`))
	req.NoError(err)
	req.Equal(&ChatSend{Body: "hi"}, v)

	v, err = Decode([]byte(`{"type":"read_mark","message_id":42}`))
	req.NoError(err)
	req.Equal(&ReadMark{MessageID: 42}, v)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `hello`},
		{"no type", `{"body":"hi"}`},
		{"unknown type", `{"type":"typing"}`},
		{"empty body", `{"type":"chat_send","body":""}`},
		{"missing body", `{"type":"chat_send"}`},
		{"blank body", `{"type":"chat_send","body":"   \n"}`},
		{"body wrong type", `{"type":"chat_send","body":12}`},
		{"missing message id", `{"type":"read_mark"}`},
		{"zero message id", `{"type":"read_mark","message_id":0}`},
		{"negative message id", `{"type":"read_mark","message_id":-3}`},
		{"string message id", `{"type":"read_mark","message_id":"7"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			require.ErrorIs(t, err, domain.ErrMalformedPayload)
		})
	}
}

func TestEncode_ChatDelivered(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 6, time.FixedZone("X", 3600))
	m := domain.Message{ID: 7, SenderID: "alice", ReceiverID: "bob", CreatedAt: at}

	frame, err := Encode(NewChatDelivered(m, domain.Participant{ID: "alice", DisplayName: "Alice"}, "hi"))
	req.NoError(err)

	var got map[string]any
	req.NoError(json.Unmarshal(frame, &got))
	req.Equal(map[string]any{
		"type":       "chat_delivered",
		"message_id": float64(7),
		"sender":     "Alice",
		"sender_id":  "alice",
		"body":       "hi",
		"timestamp":  "2026-01-02T02:04:05.000000006Z",
	}, got)
}

func TestEncode_ReadReceipt(t *testing.T) {
	req := require.New(t)
	m := domain.Message{ID: 9}
	m.MarkRead(time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC))

	frame, err := Encode(NewReadReceipt(m))
	req.NoError(err)
	req.JSONEq(`{"type":"read_receipt","message_id":9,"read_at":"2026-05-06T07:08:09Z"}`, string(frame))
}

func TestEncode_Accepted(t *testing.T) {
	req := require.New(t)
	frame, err := Encode(NewAccepted("dm:alice|bob"))
	req.NoError(err)
	req.JSONEq(`{"type":"accepted","room":"dm:alice|bob"}`, string(frame))
}
