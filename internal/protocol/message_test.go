package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateChatIDFormat(t *testing.T) {
	id := GenerateChatID()
	assert.Len(t, id, chatIDLength)
	for _, r := range id {
		assert.Contains(t, chatIDAlphabet, string(r))
	}
}

func TestGenerateChatIDVaries(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		seen[GenerateChatID()] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestNewNewChatMessageAttachesID(t *testing.T) {
	m := NewNewChatMessage("hello")
	assert.Len(t, m.ID, chatIDLength)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, TagNewChatMessage, m.Tag())
}
