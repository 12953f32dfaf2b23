package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"univmarket/internal/domain/entity"
)

func TestTranscript_PrintsEachMessageOnce(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	room := &entity.ChatRoom{SellerID: "sena", BuyerID: "bora", SellerNickname: "Sena", BuyerNickname: "Bora"}
	messages := []entity.Message{
		{ID: "m1", SenderID: "sena", Content: "still available", CreatedAt: base},
		{ID: "m2", SenderID: "sena", Content: "come by at 5", CreatedAt: base.Add(10 * time.Second)},
		{ID: "m3", SenderID: "bora", Content: entity.ReservedNotice, CreatedAt: base.Add(20 * time.Second)},
	}

	var buf bytes.Buffer
	tr := newTranscript(&buf, "bora")
	tr.update(room, messages[:2])
	tr.update(room, messages)
	tr.update(room, messages)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "Sena\n"), "continuous run shows the name once")
	assert.Equal(t, 1, strings.Count(out, "come by at 5"))
	assert.Equal(t, 1, strings.Count(out, entity.ReservedNotice))

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	notice := lines[len(lines)-1]
	assert.True(t, strings.HasPrefix(notice, "   "), "system notices are centred")
	assert.Equal(t, entity.ReservedNotice, strings.TrimSpace(notice))
}

func TestRenderMessage_OwnMessagesRightAligned(t *testing.T) {
	msg := entity.Message{SenderID: "bora", Content: "hi", CreatedAt: time.Now()}
	out := renderMessage(nil, "bora", msg, false)

	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, "me", strings.TrimSpace(lines[0]))
	assert.Len(t, lines[0], lineWidth)
}
