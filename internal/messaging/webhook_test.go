package messaging

import (
	"testing"
	"time"
)

const upsertBody = `{
	"event": "messages.upsert",
	"instance": "pizzaria-ze",
	"data": {
		"key": {
			"remoteJid": "5511999990000@s.whatsapp.net",
			"fromMe": false,
			"id": "BAE5F4A9C2D1"
		},
		"pushName": "Maria",
		"message": {"conversation": "tem pizza de calabresa?"},
		"messageTimestamp": 1756646400
	}
}`

func TestParseInbound_Conversation(t *testing.T) {
	event, err := ParseEvent([]byte(upsertBody))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}

	msg, ok, err := ParseInbound(event)
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if !ok {
		t.Fatal("expected inbound message")
	}

	if msg.InstanceName != "pizzaria-ze" {
		t.Errorf("InstanceName = %q", msg.InstanceName)
	}
	if msg.CustomerJID != "5511999990000@s.whatsapp.net" {
		t.Errorf("CustomerJID = %q", msg.CustomerJID)
	}
	if msg.CustomerName != "Maria" {
		t.Errorf("CustomerName = %q", msg.CustomerName)
	}
	if msg.Text != "tem pizza de calabresa?" {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.FromMe {
		t.Error("FromMe should be false")
	}
	want := time.Unix(1756646400, 0).UTC()
	if !msg.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", msg.Timestamp, want)
	}
}

func TestParseInbound_ExtendedText(t *testing.T) {
	body := `{
		"event": "messages.upsert",
		"instance": "pizzaria-ze",
		"data": {
			"key": {"remoteJid": "5511999990000", "fromMe": false, "id": "X1"},
			"message": {"extendedTextMessage": {"text": "quero fazer um pedido"}},
			"messageTimestamp": 1756646400
		}
	}`

	event, err := ParseEvent([]byte(body))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	msg, ok, err := ParseInbound(event)
	if err != nil || !ok {
		t.Fatalf("ParseInbound: ok=%v err=%v", ok, err)
	}
	if msg.Text != "quero fazer um pedido" {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.CustomerJID != "5511999990000@s.whatsapp.net" {
		t.Errorf("bare number should gain user domain, got %q", msg.CustomerJID)
	}
}

func TestParseInbound_SkipsNonTextAndGroups(t *testing.T) {
	cases := map[string]string{
		"no text": `{"event":"messages.upsert","instance":"i","data":{"key":{"remoteJid":"5511999990000","id":"X"},"message":{},"messageTimestamp":1}}`,
		"group":   `{"event":"messages.upsert","instance":"i","data":{"key":{"remoteJid":"123456@g.us","id":"X"},"message":{"conversation":"oi"},"messageTimestamp":1}}`,
		"other":   `{"event":"connection.update","instance":"i","data":{"state":"open"}}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			event, err := ParseEvent([]byte(body))
			if err != nil {
				t.Fatalf("ParseEvent: %v", err)
			}
			_, ok, err := ParseInbound(event)
			if err != nil {
				t.Fatalf("ParseInbound: %v", err)
			}
			if ok {
				t.Error("expected no inbound message")
			}
		})
	}
}

func TestParseConnectionUpdate(t *testing.T) {
	event, err := ParseEvent([]byte(`{"event":"connection.update","instance":"pizzaria-ze","data":{"state":"close"}}`))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	update, ok, err := ParseConnectionUpdate(event)
	if err != nil || !ok {
		t.Fatalf("ParseConnectionUpdate: ok=%v err=%v", ok, err)
	}
	if update.InstanceName != "pizzaria-ze" || update.State != "close" {
		t.Errorf("update = %+v", update)
	}
}

func TestParseEvent_Invalid(t *testing.T) {
	if _, err := ParseEvent([]byte("{not json")); err == nil {
		t.Error("expected error for malformed body")
	}
	if _, err := ParseEvent([]byte(`{"instance":"x"}`)); err == nil {
		t.Error("expected error for missing event field")
	}
}
