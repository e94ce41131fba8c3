package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextLength(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hello", 5},
		{"héllo", 5},
		{"日本語", 3},
		{"\U0001f600", 2},
		{"a\U0001f600b", 4},
		{"\xff", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TextLength(tt.in), "%q", tt.in)
	}
}

func TestMessageHasBubble(t *testing.T) {
	assert.True(t, NewTextMessage("a", "hi").HasBubble())
	assert.False(t, NewTextMessage("a", "   \n").HasBubble())
	assert.False(t, NewMediaMessage("a", "/m/x.png", "").HasBubble())
	assert.True(t, NewMediaMessage("a", "/m/x.png", "caption").HasBubble())
}

func TestNewMediaMessageCategory(t *testing.T) {
	assert.Equal(t, "video", string(NewMediaMessage("a", "/m/clip.mp4", "").Category))
	assert.Equal(t, "audio", string(NewMediaMessage("a", "/m/song.mp3", "").Category))
	assert.Equal(t, "image", string(NewMediaMessage("a", "/m/pic.gif", "").Category))
}
