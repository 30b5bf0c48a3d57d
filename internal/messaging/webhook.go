package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zapdeskhq/zapbot-platform/internal/conversation"
)

// Event names the Evolution API publishes to webhook consumers.
const (
	EventMessagesUpsert   = "messages.upsert"
	EventConnectionUpdate = "connection.update"
	EventQRCodeUpdate     = "qrcode.update"
)

// WebhookEvent is the envelope Evolution posts for every instance
// event. Data is decoded lazily because its shape depends on Event.
type WebhookEvent struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type upsertData struct {
	Key struct {
		RemoteJID string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	PushName string `json:"pushName"`
	Message  struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
	} `json:"message"`
	MessageTimestamp int64 `json:"messageTimestamp"`
}

type connectionData struct {
	State string `json:"state"`
}

// ConnectionUpdate reports an instance going online or offline.
type ConnectionUpdate struct {
	InstanceName string
	State        string
}

// ParseEvent decodes the raw webhook body into an envelope.
func ParseEvent(body []byte) (WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("messaging: failed to decode webhook event: %w", err)
	}
	if event.Event == "" {
		return WebhookEvent{}, fmt.Errorf("messaging: webhook event missing event field")
	}
	return event, nil
}

// ParseInbound extracts a customer message from a messages.upsert
// event. ok is false for other event kinds and for messages with no
// text content (stickers, reactions, media without caption).
func ParseInbound(event WebhookEvent) (conversation.InboundMessage, bool, error) {
	if event.Event != EventMessagesUpsert {
		return conversation.InboundMessage{}, false, nil
	}

	var data upsertData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return conversation.InboundMessage{}, false, fmt.Errorf("messaging: failed to decode messages.upsert data: %w", err)
	}

	jid := normalizeJID(data.Key.RemoteJID)
	if jid == "" {
		return conversation.InboundMessage{}, false, nil
	}
	// Group chats are out of scope for the bot.
	if strings.HasSuffix(jid, "@g.us") {
		return conversation.InboundMessage{}, false, nil
	}

	text := data.Message.Conversation
	if text == "" {
		text = data.Message.ExtendedTextMessage.Text
	}
	if strings.TrimSpace(text) == "" {
		return conversation.InboundMessage{}, false, nil
	}

	ts := time.Now().UTC()
	if data.MessageTimestamp > 0 {
		ts = time.Unix(data.MessageTimestamp, 0).UTC()
	}

	return conversation.InboundMessage{
		InstanceName: event.Instance,
		CustomerJID:  jid,
		CustomerName: data.PushName,
		MessageID:    data.Key.ID,
		Text:         text,
		FromMe:       data.Key.FromMe,
		Timestamp:    ts,
	}, true, nil
}

// ParseConnectionUpdate extracts the connection state change from a
// connection.update event.
func ParseConnectionUpdate(event WebhookEvent) (ConnectionUpdate, bool, error) {
	if event.Event != EventConnectionUpdate {
		return ConnectionUpdate{}, false, nil
	}
	var data connectionData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return ConnectionUpdate{}, false, fmt.Errorf("messaging: failed to decode connection.update data: %w", err)
	}
	return ConnectionUpdate{InstanceName: event.Instance, State: data.State}, true, nil
}

// normalizeJID ensures bare numbers carry the WhatsApp user domain.
func normalizeJID(jid string) string {
	jid = strings.TrimSpace(jid)
	if jid == "" {
		return ""
	}
	if !strings.Contains(jid, "@") {
		return jid + "@s.whatsapp.net"
	}
	return jid
}
