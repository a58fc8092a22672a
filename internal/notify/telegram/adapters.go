package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/linnemanlabs/wbtrack/internal/bot"
	"github.com/linnemanlabs/wbtrack/internal/tracking"
)

// Notifier delivers tracking notifications. It implements tracking.Notifier.
type Notifier struct {
	client *Client
}

// NewNotifier wraps a Client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// Notify sends text to the owner's chat in as many messages as needed.
func (n *Notifier) Notify(ctx context.Context, owner tracking.OwnerID, text string) error {
	chatID, err := ChatID(owner)
	if err != nil {
		return err
	}
	return sendChunks(ctx, n.client, chatID, text, nil)
}

// Replier answers conversation messages. It implements bot.Replier.
type Replier struct {
	client *Client
}

// NewReplier wraps a Client.
func NewReplier(client *Client) *Replier {
	return &Replier{client: client}
}

// Reply sends text with the keyboard attached to the last chunk.
func (r *Replier) Reply(ctx context.Context, owner tracking.OwnerID, text string, kb *bot.Keyboard) error {
	chatID, err := ChatID(owner)
	if err != nil {
		return err
	}
	return sendChunks(ctx, r.client, chatID, text, markup(kb))
}

// Source long-polls getUpdates. It implements bot.UpdateSource.
type Source struct {
	client *Client
}

// NewSource wraps a Client.
func NewSource(client *Client) *Source {
	return &Source{client: client}
}

// Updates returns the next batch of messages. Updates without a text message
// are returned with empty Text so their ids are still acknowledged.
func (s *Source) Updates(ctx context.Context, offset int64, wait time.Duration) ([]bot.Inbound, error) {
	updates, err := s.client.GetUpdates(ctx, offset, wait)
	if err != nil {
		return nil, err
	}
	out := make([]bot.Inbound, 0, len(updates))
	for _, u := range updates {
		in := bot.Inbound{UpdateID: u.UpdateID}
		if u.Message != nil {
			in.Owner = OwnerID(u.Message.Chat.ID)
			in.Text = u.Message.Text
		}
		out = append(out, in)
	}
	return out, nil
}

// OwnerID renders a chat id as an owner id.
func OwnerID(chatID int64) tracking.OwnerID {
	return tracking.OwnerID(strconv.FormatInt(chatID, 10))
}

// ChatID parses an owner id back into a chat id.
func ChatID(owner tracking.OwnerID) (int64, error) {
	id, err := strconv.ParseInt(string(owner), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: owner %q is not a chat id: %w", owner, err)
	}
	return id, nil
}

func sendChunks(ctx context.Context, c *Client, chatID int64, text string, last any) error {
	chunks := Split(text, MaxMessageLen)
	for i, chunk := range chunks {
		var m any
		if i == len(chunks)-1 {
			m = last
		}
		if err := c.SendMessage(ctx, chatID, chunk, m); err != nil {
			return fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// markup converts a conversation keyboard into Bot API reply markup.
func markup(kb *bot.Keyboard) any {
	if kb == nil {
		return nil
	}
	if kb.Remove {
		return ReplyKeyboardRemove{RemoveKeyboard: true}
	}
	rows := make([][]KeyboardButton, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		row := make([]KeyboardButton, 0, len(r))
		for _, label := range r {
			row = append(row, KeyboardButton{Text: label})
		}
		rows = append(rows, row)
	}
	return ReplyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true}
}
