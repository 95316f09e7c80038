package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrProtocol       = errors.New("PROTOCOL_ERROR: malformed command")
	ErrUnknownCommand = errors.New("UNKNOWN_COMMAND: command not recognised in this phase")
	ErrBadSeat        = errors.New("BAD_SEAT: seat is not a number")
	ErrDecode         = errors.New("DECODE_ERROR: invalid update payload")
)

// CommandKind is the closed set of requests a client can send.
type CommandKind int

const (
	CmdJoin CommandKind = iota + 1
	CmdQuery
	CmdToken
	CmdQuit
	CmdStart
	CmdStartUp
	CmdUpdate
	CmdGameOver
)

var commandKeywords = map[string]CommandKind{
	"join":     CmdJoin,
	"query":    CmdQuery,
	"token":    CmdToken,
	"quit":     CmdQuit,
	"start":    CmdStart,
	"startUp":  CmdStartUp,
	"update":   CmdUpdate,
	"gameOver": CmdGameOver,
}

func (k CommandKind) String() string {
	for keyword, kind := range commandKeywords {
		if kind == k {
			return keyword
		}
	}
	return "unknown"
}

// Command is one parsed `keyword=value` request.
type Command struct {
	Kind  CommandKind
	Value string
}

// Seat parses the value as a seat number.
func (c Command) Seat() (int, error) {
	seat, err := strconv.Atoi(strings.TrimSpace(c.Value))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadSeat, c.Value)
	}
	return seat, nil
}

// ParseCommand turns the bytes read from a connection into a Command. The
// browser client wraps commands in an HTTP request, so the body (or the query
// string when there is no body) is used when the data looks like HTTP.
func ParseCommand(raw []byte) (Command, error) {
	text := string(commandText(raw))
	if text == "" {
		return Command{}, fmt.Errorf("%w: empty request", ErrProtocol)
	}

	keyword, value, _ := strings.Cut(text, "=")
	kind, ok := commandKeywords[keyword]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, keyword)
	}

	switch kind {
	case CmdStartUp, CmdUpdate:
		decoded, err := url.PathUnescape(value)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		value = decoded
	}
	return Command{Kind: kind, Value: value}, nil
}

var httpMethods = []string{"GET ", "POST ", "PUT ", "OPTIONS ", "HEAD ", "PATCH ", "DELETE "}

func isHTTP(raw []byte) bool {
	for _, m := range httpMethods {
		if bytes.HasPrefix(raw, []byte(m)) {
			return true
		}
	}
	return false
}

// requestComplete reports whether raw holds a whole command. HTTP requests
// are complete once the headers end and Content-Length bytes of body have
// arrived. Bare updates are complete once their JSON stops ending mid-value;
// other bare commands fit in one write.
func requestComplete(raw []byte) bool {
	if !isHTTP(raw) {
		return bareComplete(raw)
	}
	head, body, found := bytes.Cut(raw, []byte("\r\n\r\n"))
	if !found {
		return false
	}
	return len(body) >= contentLength(head)
}

func bareComplete(raw []byte) bool {
	text := bytes.TrimSpace(bytes.Trim(raw, "\x00"))
	value, ok := bytes.CutPrefix(text, []byte("update="))
	if !ok {
		return true
	}
	// a split escape sequence fails to unescape until the rest arrives
	unescaped, err := url.PathUnescape(string(value))
	if err != nil {
		return false
	}

	// player object, then the optional damages array
	dec := json.NewDecoder(strings.NewReader(unescaped))
	for i := 0; i < 2; i++ {
		var v json.RawMessage
		err := dec.Decode(&v)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return false
		}
		if err != nil {
			return true
		}
	}
	return true
}

func contentLength(head []byte) int {
	for _, line := range strings.Split(string(head), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

func commandText(raw []byte) []byte {
	raw = bytes.Trim(raw, "\x00")
	if !isHTTP(raw) {
		return bytes.TrimSpace(raw)
	}

	head, body, _ := bytes.Cut(raw, []byte("\r\n\r\n"))
	if n := contentLength(head); n > 0 && n < len(body) {
		body = body[:n]
	}
	if body = bytes.TrimSpace(body); len(body) > 0 {
		return body
	}

	// GET /?query=1 HTTP/1.1
	requestLine, _, _ := bytes.Cut(head, []byte("\r\n"))
	fields := bytes.Fields(requestLine)
	if len(fields) < 2 {
		return nil
	}
	target := fields[1]
	if _, query, ok := bytes.Cut(target, []byte("?")); ok {
		return query
	}
	return bytes.TrimPrefix(target, []byte("/"))
}
