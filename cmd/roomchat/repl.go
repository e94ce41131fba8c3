package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

type inputKind int

const (
	inputText inputKind = iota
	inputAttach
	inputDetach
	inputEmoji
	inputVideo
	inputMembers
	inputHelp
	inputQuit
)

// input is one parsed line of the chat prompt.
type input struct {
	kind inputKind
	arg  string
}

var errUnknownCommand = errors.New("unknown command, try /help")

const replHelp = `/attach <path>   stage a file; the next line is its caption
/detach          drop the staged file, keep the caption
/emoji <:code:>  append an emoji to the draft
/video           tell the room you are waiting in video chat
/members         list room members
/quit            leave the room
anything else is sent as a message`

// parseInput splits a prompt line. Lines not starting with "/" are text;
// command arguments follow shell quoting so paths may contain spaces.
func parseInput(line string) (input, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return input{kind: inputText, arg: line}, nil
	}

	args, err := shellwords.Parse(trimmed)
	if err != nil {
		return input{}, fmt.Errorf("parse command: %w", err)
	}

	name, rest := args[0], args[1:]
	want := func(n int) error {
		if len(rest) != n {
			return fmt.Errorf("%s takes %d argument(s)", name, n)
		}
		return nil
	}

	switch name {
	case "/attach":
		if err := want(1); err != nil {
			return input{}, err
		}
		return input{kind: inputAttach, arg: rest[0]}, nil
	case "/detach":
		return input{kind: inputDetach}, want(0)
	case "/emoji":
		if err := want(1); err != nil {
			return input{}, err
		}
		return input{kind: inputEmoji, arg: rest[0]}, nil
	case "/video":
		return input{kind: inputVideo}, want(0)
	case "/members":
		return input{kind: inputMembers}, want(0)
	case "/help":
		return input{kind: inputHelp}, nil
	case "/quit", "/exit":
		return input{kind: inputQuit}, nil
	}
	return input{}, errUnknownCommand
}
