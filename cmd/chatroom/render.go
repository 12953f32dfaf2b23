package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"univmarket/internal/chatsession"
	"univmarket/internal/domain/entity"
)

const lineWidth = 64

// transcript prints a room's messages once each, in order, as the log grows.
type transcript struct {
	out     io.Writer
	userID  string
	printed map[string]bool
	prev    *entity.Message
}

func newTranscript(out io.Writer, userID string) *transcript {
	return &transcript{out: out, userID: userID, printed: make(map[string]bool)}
}

// update prints every message of messages not printed before. A full history reload
// that re-delivers already shown messages prints nothing.
func (t *transcript) update(room *entity.ChatRoom, messages []entity.Message) {
	for i := range messages {
		msg := messages[i]
		key := chatsession.DedupKey(msg)
		if t.printed[key] {
			continue
		}
		t.printed[key] = true

		continuous := t.prev != nil && chatsession.IsContinuous(*t.prev, msg)
		fmt.Fprintln(t.out, renderMessage(room, t.userID, msg, continuous))
		t.prev = &messages[i]
	}
}

func renderMessage(room *entity.ChatRoom, userID string, msg entity.Message, continuous bool) string {
	if msg.IsSystem() {
		return center(msg.Content, lineWidth)
	}

	clock := msg.CreatedAt.Local().Format("15:04")
	if msg.SenderID == userID {
		body := msg.Content + "  " + clock
		if !continuous {
			return rightAlign("me", lineWidth) + "\n" + rightAlign(body, lineWidth)
		}
		return rightAlign(body, lineWidth)
	}

	body := "  " + msg.Content + "  " + clock
	if continuous {
		return body
	}
	name := msg.SenderNickname
	if name == "" && room != nil {
		name = room.CounterpartNickname(userID)
	}
	if name == "" {
		name = msg.SenderID
	}
	return name + "\n" + body
}

func center(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return strings.Repeat(" ", (width-n)/2) + s
}

func rightAlign(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return strings.Repeat(" ", width-n) + s
}
