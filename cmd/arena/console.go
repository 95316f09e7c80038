package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// console prints log lines the way the control panel shows them:
// [HH:MM:SS] - message
type console struct {
	out io.Writer
	mu  sync.Mutex

	stampColor *color.Color
	infoColor  *color.Color
	warnColor  *color.Color
	errorColor *color.Color
	eventColor *color.Color
}

func newConsole(out io.Writer) *console {
	return &console{
		out:        out,
		stampColor: color.New(color.FgHiBlack),
		infoColor:  color.New(color.FgWhite),
		warnColor:  color.New(color.FgYellow),
		errorColor: color.New(color.FgRed, color.Bold),
		eventColor: color.New(color.FgCyan, color.Bold),
	}
}

func (c *console) Log(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := c.infoColor
	switch {
	case strings.HasPrefix(message, "ERROR"):
		text = c.errorColor
	case strings.HasPrefix(message, "WARN"):
		text = c.warnColor
	}
	fmt.Fprintf(c.out, "%s - %s\n",
		c.stampColor.Sprintf("[%s]", time.Now().Format("15:04:05")),
		text.Sprint(message))
}

// Callback reports a finished part of the server.
func (c *console) Callback(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s - %s\n",
		c.stampColor.Sprintf("[%s]", time.Now().Format("15:04:05")),
		c.eventColor.Sprintf("%s finished", tag))
}
