package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/vijay324/expense-tracker-sub000/internal/event"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

// ErrStreamUnsupported signals that the server (or an intermediary) cannot
// deliver a live event stream; the agent falls back to polling.
var ErrStreamUnsupported = errors.New("event streaming unsupported")

// Stream is an open server-to-client event channel. Events closes when the
// stream ends for any reason.
type Stream interface {
	Events() <-chan event.Event
	Close() error
}

// Dialer opens a Stream. The default implementation speaks SSE over HTTP.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// SSEDialer connects to the server's /stream endpoint and parses the
// text/event-stream wire format.
type SSEDialer struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Logger  logger.Logger
}

var _ Dialer = (*SSEDialer)(nil)

func (d *SSEDialer) httpClient() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *SSEDialer) Dial(ctx context.Context) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	resp, err := d.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream request rejected: %s", resp.Status)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		// The server answered but cannot stream; degraded-mode signal.
		resp.Body.Close()
		return nil, ErrStreamUnsupported
	}

	s := &sseStream{
		body:   resp.Body,
		events: make(chan event.Event, 16),
		logger: d.Logger,
	}
	go s.readLoop()
	return s, nil
}

type sseStream struct {
	body      io.ReadCloser
	events    chan event.Event
	closeOnce sync.Once
	logger    logger.Logger
}

func (s *sseStream) Events() <-chan event.Event { return s.events }

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}

// readLoop parses `event:`/`data:` frames separated by blank lines. A
// malformed frame is logged and dropped; it never ends the stream.
func (s *sseStream) readLoop() {
	defer close(s.events)
	defer s.Close()

	scanner := bufio.NewScanner(s.body)

	var eventName string
	var dataLines []string

	flush := func() {
		defer func() {
			eventName = ""
			dataLines = nil
		}()

		if eventName == "" && len(dataLines) == 0 {
			return
		}

		typ := event.Type(eventName)
		if !typ.Valid() {
			s.logf("dropping frame with unknown event type %q", eventName)
			return
		}

		raw := strings.Join(dataLines, "\n")
		if !json.Valid([]byte(raw)) {
			s.logf("dropping %s frame with malformed payload", eventName)
			return
		}

		s.events <- event.Event{Type: typ, Data: json.RawMessage(raw)}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// comment frame (keepalive)
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func (s *sseStream) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Warnf(format, args...)
	}
}
