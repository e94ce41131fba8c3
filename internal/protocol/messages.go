// Package protocol defines the WebSocket frames exchanged between the chat
// client and the room server. All frames are JSON. Outbound frames carry a
// "type" discriminator; inbound frames carry one only for membership events,
// everything else is a content event.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Frame type constants
// ---------------------------------------------------------------------------

// Client -> Server frame types.
const (
	TypeText = "text"
	TypeFile = "file"
)

// Server -> Client membership frame types.
const (
	TypeEntrance  = "entrance"
	TypeDismissal = "dismissal"
)

var (
	// ErrMalformedMembership is returned when a membership frame does not
	// carry an array under new_room_obj.
	ErrMalformedMembership = errors.New("protocol: new_room_obj is not an array")

	// ErrMalformedContent is returned for a content frame with no author,
	// no message and no media_file_url, such as null or {}.
	ErrMalformedContent = errors.New("protocol: content frame has no author and no content")
)

// User identifies the author of a frame.
type User struct {
	Username string `json:"username"`
}

// ---------------------------------------------------------------------------
// Client -> Server frames
// ---------------------------------------------------------------------------

// TextFrame is a plain text chat message sent by the client.
type TextFrame struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	User     User   `json:"user"`
	RoomName string `json:"room_name"`
}

// FileFrame carries an attachment as base64 content along with an optional
// caption in Message.
type FileFrame struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	FileType string `json:"fileType"`
	Message  string `json:"message"`
	User     User   `json:"user"`
	RoomName string `json:"room_name"`
}

// NewTextFrame builds a text frame for the given author and room.
func NewTextFrame(username, room, message string) TextFrame {
	return TextFrame{
		Type:     TypeText,
		Message:  message,
		User:     User{Username: username},
		RoomName: room,
	}
}

// NewFileFrame builds a file frame. content must already be base64 encoded.
func NewFileFrame(username, room, message, fileType, content string) FileFrame {
	return FileFrame{
		Type:     TypeFile,
		Content:  content,
		FileType: fileType,
		Message:  message,
		User:     User{Username: username},
		RoomName: room,
	}
}

// ---------------------------------------------------------------------------
// Server -> Client frames
// ---------------------------------------------------------------------------

// MemberRecord is one entry of a membership payload. Room-shaped entries
// carry RoomName and Members instead of Username.
type MemberRecord struct {
	Username string         `json:"username,omitempty"`
	Avatar   string         `json:"avatar,omitempty"`
	RoomName string         `json:"room_name,omitempty"`
	Members  []MemberRecord `json:"members,omitempty"`
}

// MembershipEvent signals that a user entered or left the room. Records is
// the decoded new_room_obj array.
type MembershipEvent struct {
	Type    string
	Records []MemberRecord
}

// ContentEvent is a text or media message relayed by the server.
type ContentEvent struct {
	Message  string `json:"message"`
	MediaURL string `json:"media_file_url"`
	User     User   `json:"user"`
}

// IsMedia reports whether the event references an uploaded file.
func (e ContentEvent) IsMedia() bool {
	return e.MediaURL != ""
}

// Envelope holds the optional type discriminator and the raw frame for
// deferred decoding.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field. Unlike client frames, a missing type is valid: it marks a content
// event.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	e.Type = partial.Type
	return nil
}

// IsMembership reports whether the envelope announces an entrance or a
// dismissal.
func (e Envelope) IsMembership() bool {
	return e.Type == TypeEntrance || e.Type == TypeDismissal
}

// ParseServerFrame decodes raw WebSocket bytes into either a MembershipEvent
// or a ContentEvent. A membership frame whose new_room_obj is missing or not
// an array yields ErrMalformedMembership; an empty content frame yields
// ErrMalformedContent.
func ParseServerFrame(data []byte) (interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: failed to parse frame: %w", err)
	}

	if env.IsMembership() {
		var m struct {
			NewRoomObj json.RawMessage `json:"new_room_obj"`
		}
		if err := json.Unmarshal(env.Raw, &m); err != nil {
			return nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
		}
		raw := bytes.TrimSpace(m.NewRoomObj)
		if len(raw) == 0 || raw[0] != '[' {
			return nil, ErrMalformedMembership
		}
		var records []MemberRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("protocol: failed to decode %q records: %w", env.Type, err)
		}
		return MembershipEvent{Type: env.Type, Records: records}, nil
	}

	var c ContentEvent
	if err := json.Unmarshal(env.Raw, &c); err != nil {
		return nil, fmt.Errorf("protocol: failed to decode content frame: %w", err)
	}
	if c.User.Username == "" && c.Message == "" && c.MediaURL == "" {
		return nil, ErrMalformedContent
	}
	return c, nil
}

// Encode marshals an outbound frame.
func Encode(frame interface{}) ([]byte, error) {
	out, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal frame: %w", err)
	}
	return out, nil
}
