// Package chat holds the client-side chat state of one room: the ordered
// message log, the member list and the draft being composed.
package chat

import (
	"strings"

	"github.com/roomchat/roomchat/internal/media"
)

// Kind distinguishes the two stored message variants.
type Kind string

const (
	KindText  Kind = "text"
	KindMedia Kind = "media"
)

// Member is one participant of a room.
type Member struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Message is one entry of the room log. For KindMedia, Body is the caption
// and Category is fixed when the message is reconciled.
type Message struct {
	Kind     Kind           `json:"kind"`
	Author   string         `json:"author"`
	Body     string         `json:"body,omitempty"`
	MediaURL string         `json:"media_url,omitempty"`
	Category media.Category `json:"category,omitempty"`
}

// NewTextMessage builds a text log entry.
func NewTextMessage(author, body string) Message {
	return Message{Kind: KindText, Author: author, Body: body}
}

// NewMediaMessage builds a media log entry, deriving its category from the
// URL extension.
func NewMediaMessage(author, mediaURL, caption string) Message {
	return Message{
		Kind:     KindMedia,
		Author:   author,
		Body:     caption,
		MediaURL: mediaURL,
		Category: media.CategoryFromURL(mediaURL),
	}
}

// HasBubble reports whether the body or caption should render. The author
// label renders regardless.
func (m Message) HasBubble() bool {
	return strings.TrimSpace(m.Body) != ""
}
