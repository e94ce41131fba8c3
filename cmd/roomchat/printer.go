package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/roomchat/roomchat/internal/chat"
)

// printer renders reconciled room events to a terminal.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) OnMessage(_ string, msg chat.Message) {
	p.printf("%s\n", formatMessage(msg))
}

func (p *printer) OnMembership(_ string, event string, members []chat.Member) {
	p.printf("* %s, %d member(s): %s\n", event, len(members), memberNames(members))
}

func (p *printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func formatMessage(msg chat.Message) string {
	var b strings.Builder
	b.WriteString(msg.Author)
	b.WriteString(":")
	if msg.Kind == chat.KindMedia {
		fmt.Fprintf(&b, " [%s] %s", msg.Category, msg.MediaURL)
	}
	if msg.HasBubble() {
		b.WriteString(" ")
		b.WriteString(msg.Body)
	}
	return b.String()
}

func memberNames(members []chat.Member) string {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Username
	}
	return strings.Join(names, ", ")
}
