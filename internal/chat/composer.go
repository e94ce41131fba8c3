package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/kyokomi/emoji/v2"
	"github.com/rs/zerolog"

	"github.com/roomchat/roomchat/internal/media"
)

// Draft is a snapshot of the composition in progress.
type Draft struct {
	Text        string
	Attachment  media.Attachment
	SendEnabled bool
}

// ComposerConfig wires a Composer to its collaborators.
type ComposerConfig struct {
	// Validator checks attachments. Nil selects media.NewValidator(nil).
	Validator *media.Validator
	// OnError surfaces a validation reason to the user.
	OnError func(reason string)
	Logger  zerolog.Logger
}

// Composer owns the outgoing draft: a length-capped text buffer and at most
// one validated attachment. It is goroutine-safe; attachment validation runs
// without holding the lock so typing is never blocked by a probe.
type Composer struct {
	mu         sync.Mutex
	text       string
	attachment media.Attachment

	validator *media.Validator
	onError   func(string)
	log       zerolog.Logger
}

// NewComposer creates an empty Composer.
func NewComposer(cfg ComposerConfig) *Composer {
	v := cfg.Validator
	if v == nil {
		v = media.NewValidator(nil)
	}
	onError := cfg.OnError
	if onError == nil {
		onError = func(string) {}
	}
	return &Composer{validator: v, onError: onError, log: cfg.Logger}
}

// OnTextChanged replaces the draft text. Text longer than MaxDraftUnits is
// refused and the draft is left as it was.
func (c *Composer) OnTextChanged(text string) bool {
	if TextLength(text) > MaxDraftUnits {
		return false
	}
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
	return true
}

// OnEmojiPicked appends an emoji to the draft. A ":shortcode:" is resolved
// to its glyph; anything else is appended verbatim. An append that would
// exceed MaxDraftUnits is dropped with a warning.
func (c *Composer) OnEmojiPicked(e string) bool {
	glyph := ResolveEmoji(e)
	if glyph == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.text + glyph
	if n := TextLength(next); n > MaxDraftUnits {
		c.log.Warn().
			Int("length", n).
			Int("limit", MaxDraftUnits).
			Msg("[composer] emoji discarded, draft would exceed the text limit")
		return false
	}
	c.text = next
	return true
}

// OnFileAttached validates a and, if accepted, stores it in the draft. On
// rejection the reason is passed to the error callback, the draft is left
// unchanged and the rejection is returned.
func (c *Composer) OnFileAttached(ctx context.Context, a media.Attachment) error {
	if err := c.validator.Validate(ctx, a); err != nil {
		c.log.Debug().Err(err).Str("file", a.Name()).Msg("[composer] attachment rejected")
		c.onError(media.Reason(err))
		return err
	}

	c.mu.Lock()
	c.attachment = a
	c.mu.Unlock()
	return nil
}

// ClearAttachment drops the attached file, keeping the text.
func (c *Composer) ClearAttachment() {
	c.mu.Lock()
	c.attachment = nil
	c.mu.Unlock()
}

// Reset empties the draft. Called after every successful send.
func (c *Composer) Reset() {
	c.mu.Lock()
	c.text = ""
	c.attachment = nil
	c.mu.Unlock()
}

// Draft returns a snapshot of the current composition.
func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Draft{
		Text:        c.text,
		Attachment:  c.attachment,
		SendEnabled: sendEnabled(c.text, c.attachment),
	}
}

// SendEnabled reports whether the draft has something to send.
func (c *Composer) SendEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sendEnabled(c.text, c.attachment)
}

func sendEnabled(text string, a media.Attachment) bool {
	return strings.TrimSpace(text) != "" || a != nil
}

// ResolveEmoji maps a ":shortcode:" to its glyph. Input that is not a known
// shortcode is returned unchanged.
func ResolveEmoji(e string) string {
	if strings.HasPrefix(e, ":") && strings.HasSuffix(e, ":") && len(e) > 2 {
		if glyph, ok := emoji.CodeMap()[strings.ToLower(e)]; ok {
			return strings.TrimSpace(glyph)
		}
	}
	return e
}
