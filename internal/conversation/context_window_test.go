package conversation

import (
	"fmt"
	"testing"
	"time"

	"github.com/zapdeskhq/zapbot-platform/internal/business"
)

func TestPrepareWindow_EmptyHistory(t *testing.T) {
	d := PrepareWindow(nil, time.Time{}, business.AlwaysOpen{}, "Bem-vindo!", time.Now())
	if d.Cleared || d.ReturningCustomer || d.WelcomeBack != "" || len(d.Messages) != 0 {
		t.Fatalf("empty history must yield empty decision: %+v", d)
	}
}

func TestPrepareWindow_DropsAfterDayOfSilence(t *testing.T) {
	now := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	history := []ChatMessage{{Role: ChatRoleUser, Content: "quero uma pizza"}}

	d := PrepareWindow(history, now.Add(-25*time.Hour), business.AlwaysOpen{}, "Bem-vindo à Pizzaria!", now)
	if !d.Cleared || !d.ReturningCustomer {
		t.Fatalf("stale context must be cleared: %+v", d)
	}
	if d.WelcomeBack != "Bem-vindo à Pizzaria!" {
		t.Errorf("cleared context must carry the welcome back text: %+v", d)
	}
	if len(d.Messages) != 0 {
		t.Errorf("cleared decision must carry no messages: %+v", d.Messages)
	}

	d = PrepareWindow(history, now.Add(-23*time.Hour), business.AlwaysOpen{}, "Bem-vindo à Pizzaria!", now)
	if d.Cleared || d.WelcomeBack != "" {
		t.Fatalf("context under a day old must be kept: %+v", d)
	}
}

func TestPrepareWindow_DropsAcrossBusinessClosure(t *testing.T) {
	hours, err := business.ParseWindowHours("09:00", "18:00", "UTC")
	if err != nil {
		t.Fatalf("parse hours: %v", err)
	}
	history := []ChatMessage{{Role: ChatRoleUser, Content: "fecho o pedido amanhã"}}

	// Last message yesterday at 17:00, back today at 10:00.
	last := time.Date(2025, 6, 2, 17, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

	d := PrepareWindow(history, last, hours, "", now)
	if !d.Cleared || !d.ReturningCustomer {
		t.Fatalf("overnight closure must clear context: %+v", d)
	}
	if d.WelcomeBack != "" {
		t.Errorf("no configured welcome means no welcome back: %+v", d)
	}

	// Same open period: keep.
	d = PrepareWindow(history, now.Add(-30*time.Minute), hours, "", now)
	if d.Cleared {
		t.Fatalf("context inside one open period must be kept: %+v", d)
	}
}

func TestPrepareWindow_CapsAtTenMessages(t *testing.T) {
	var history []ChatMessage
	for i := 0; i < 15; i++ {
		history = append(history, ChatMessage{Role: ChatRoleUser, Content: fmt.Sprintf("msg %d", i)})
	}
	now := time.Now()

	d := PrepareWindow(history, now.Add(-time.Minute), business.AlwaysOpen{}, "", now)
	if len(d.Messages) != 10 {
		t.Fatalf("window size = %d, want 10", len(d.Messages))
	}
	if d.Messages[0].Content != "msg 5" || d.Messages[9].Content != "msg 14" {
		t.Errorf("window must keep the most recent messages: first=%q last=%q",
			d.Messages[0].Content, d.Messages[9].Content)
	}
}
