package api

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// SSEStreamWriter writes server-sent events, one JSON payload per event,
// each tagged with a type and a sequence number starting at 1.
type SSEStreamWriter struct {
	w             io.Writer
	flusher       func()
	startingAfter int
	seq           int
	begun         bool
}

type streamEvent struct {
	Type           string `json:"type"`
	SequenceNumber int    `json:"sequence_number"`
	Data           any    `json:"data,omitempty"`
}

func NewSSEStreamWriter(c *echo.Context) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	return &SSEStreamWriter{
		w:             res,
		flusher:       flusher.Flush,
		startingAfter: parseStartingAfter(c.QueryParam("starting_after")),
		seq:           1,
	}, nil
}

// Started reports whether any event has been written, after which errors
// can no longer be reported with a status code.
func (s *SSEStreamWriter) Started() bool {
	return s.begun
}

// Emit sends one event. Events at or below starting_after are skipped so a
// client can resume a replayed stream.
func (s *SSEStreamWriter) Emit(typ string, data any) error {
	s.begun = true
	defer func() { s.seq++ }()
	if s.startingAfter >= s.seq {
		return nil
	}
	b, err := json.Marshal(streamEvent{Type: typ, SequenceNumber: s.seq, Data: data})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", typ, b); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher()
	}
	return nil
}

// Failed sends a terminal error event.
func (s *SSEStreamWriter) Failed(err error) error {
	return s.Emit("error", ResponseError{Message: err.Error(), Type: "server_error"})
}

func parseStartingAfter(v string) int {
	if v == "" {
		return 0
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
