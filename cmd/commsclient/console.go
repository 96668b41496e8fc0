package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/events"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/hook"
)

// chatMessage is what a line typed on stdin becomes on the wire.
type chatMessage struct {
	Type string `json:"type"`
	Msg  string `json:"_msg"`
}

type sender interface {
	Send(msg any)
}

// readInput sends every non-empty stdin line as a chat message until EOF or
// ctx is done.
func readInput(ctx context.Context, in io.Reader, s sender, logger *slog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.Send(chatMessage{Type: "message", Msg: line})
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("stdin read failed", "error", err)
		return
	}
	logger.Debug("stdin closed")
}

// registerHooks installs the console handlers for server message types.
func registerHooks(hooks *hook.Registry, out io.Writer, logger *slog.Logger) {
	hooks.Register(func(payload any) {
		msg, _ := payload.(map[string]any)
		fmt.Fprintf(out, "< %v\n", msg["_msg"])
	}, "message", "broadcast")

	hooks.RegisterOne("error", func(payload any) {
		logger.Warn("server reported an error", "message", payload)
	})
}

// statusFeed holds one subscription per status topic; the bus does not tag
// payloads with their topic.
type statusFeed struct {
	lastUpdate   events.Subscription
	connected    events.Subscription
	disconnected events.Subscription
	errs         events.Subscription
}

func subscribeStatus(bus *events.Bus, transport string) *statusFeed {
	return &statusFeed{
		lastUpdate:   bus.Subscribe(events.TopicLastUpdateTime),
		connected:    bus.Subscribe(transport + events.SuffixConnected),
		disconnected: bus.Subscribe(transport + events.SuffixDisconnected),
		errs:         bus.Subscribe(transport + events.SuffixError),
	}
}

// print writes status changes to out until ctx is done or the bus closes.
func (f *statusFeed) print(ctx context.Context, out io.Writer, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-f.lastUpdate:
			if !ok {
				return
			}
			if u, ok := p.(events.LastUpdate); ok {
				fmt.Fprintf(out, "* last update: %s\n", u.Message)
			}
		case _, ok := <-f.connected:
			if !ok {
				return
			}
			fmt.Fprintln(out, "* connected")
		case _, ok := <-f.disconnected:
			if !ok {
				return
			}
			fmt.Fprintln(out, "* disconnected")
		case p, ok := <-f.errs:
			if !ok {
				return
			}
			logger.Warn("transport error", "error", p)
		}
	}
}
