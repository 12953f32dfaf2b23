package chatsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"univmarket/internal/domain/entity"
)

func TestIsContinuous(t *testing.T) {
	first := msgAt("m1", "U1", "hi", 0)

	tests := []struct {
		name string
		cur  entity.Message
		want bool
	}{
		{"same sender within window", msgAt("m2", "U1", "there", 59*time.Second), true},
		{"window is exclusive", msgAt("m2", "U1", "there", 60*time.Second), false},
		{"other sender", msgAt("m2", "U2", "hello", time.Second), false},
		{"system notice", msgAt("m2", "U1", entity.ReservedNotice, time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsContinuous(first, tt.cur))
		})
	}
}

func TestMessageStore_Reads(t *testing.T) {
	s := NewMessageStore()
	_, ok := s.Last()
	assert.False(t, ok)
	assert.False(t, s.Continuous(0))

	s.insert(msgAt("m1", "U1", "a", 0))
	s.insert(msgAt("m2", "U1", "b", 10*time.Second))
	s.insert(msgAt("m3", "U2", "c", 20*time.Second))

	assert.Equal(t, 3, s.Len())
	last, ok := s.Last()
	assert.True(t, ok)
	assert.Equal(t, "m3", last.ID)

	assert.False(t, s.Continuous(0))
	assert.True(t, s.Continuous(1))
	assert.False(t, s.Continuous(2))
	assert.False(t, s.Continuous(3))

	snapshot := s.Messages()
	snapshot[0].Content = "changed"
	assert.Equal(t, "a", s.Messages()[0].Content)
}
