package telegram

import (
	"context"
	"strings"
	"testing"

	"github.com/linnemanlabs/wbtrack/internal/bot"
)

func TestNotifier_SplitsLongText(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{}
	n := NewNotifier(newTestClient(t, api))

	text := strings.Repeat("a", 4090) + "\n" + strings.Repeat("b", 10)
	if err := n.Notify(context.Background(), "42", text); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	calls := api.sent()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if got := calls[0].body["text"].(string); len(got) != 4090 {
		t.Errorf("first chunk length = %d, want 4090", len(got))
	}
	for _, c := range calls {
		if c.body["chat_id"] != float64(42) {
			t.Errorf("chat_id = %v", c.body["chat_id"])
		}
	}
}

func TestNotifier_InvalidOwner(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{}
	n := NewNotifier(newTestClient(t, api))
	if err := n.Notify(context.Background(), "not-a-chat", "hi"); err == nil {
		t.Fatal("expected error for non-numeric owner")
	}
	if len(api.sent()) != 0 {
		t.Error("message sent for invalid owner")
	}
}

func TestReplier_KeyboardOnLastChunk(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{}
	r := NewReplier(newTestClient(t, api))

	kb := &bot.Keyboard{Rows: [][]string{{"Add cabinet", "Edit cabinet"}, {"Cancel"}}}
	text := strings.Repeat("x", 5000)
	if err := r.Reply(context.Background(), "7", text, kb); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	calls := api.sent()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if _, ok := calls[0].body["reply_markup"]; ok {
		t.Error("keyboard attached to first chunk")
	}
	markup, ok := calls[1].body["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("reply_markup = %v", calls[1].body["reply_markup"])
	}
	rows, _ := markup["keyboard"].([]any)
	if len(rows) != 2 {
		t.Errorf("keyboard rows = %v", markup["keyboard"])
	}
	if markup["resize_keyboard"] != true {
		t.Error("resize_keyboard not set")
	}
}

func TestReplier_RemoveKeyboard(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{}
	r := NewReplier(newTestClient(t, api))

	if err := r.Reply(context.Background(), "7", "Enter a name:", &bot.Keyboard{Remove: true}); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	markup, _ := api.sent()[0].body["reply_markup"].(map[string]any)
	if markup["remove_keyboard"] != true {
		t.Errorf("reply_markup = %v", api.sent()[0].body["reply_markup"])
	}
}

func TestChatIDRoundTrip(t *testing.T) {
	t.Parallel()

	for _, id := range []int64{1, -1001234567890, 987654321} {
		got, err := ChatID(OwnerID(id))
		if err != nil {
			t.Fatalf("ChatID: %v", err)
		}
		if got != id {
			t.Errorf("ChatID(OwnerID(%d)) = %d", id, got)
		}
	}
}
