package queuehub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
)

const DefaultHeartbeat = 25 * time.Second

// Writer is a transport that can carry one event at a time.
type Writer interface {
	WriteEvent(Event) error
}

// Stream pumps sub's events into w and emits a ping every heartbeat until
// ctx is cancelled, the subscriber is closed, or a write fails.
func Stream(ctx context.Context, sub *Subscriber, w Writer, heartbeat time.Duration) error {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Done():
			return nil
		case ev := <-sub.Events():
			if err := w.WriteEvent(ev); err != nil {
				return fmt.Errorf("write %s event: %w", ev.Type, err)
			}
		case t := <-ticker.C:
			ping := Event{
				Type:           EventPing,
				OrganizationID: sub.Key.OrganizationID,
				DoctorID:       sub.Key.DoctorID,
				Date:           sub.Key.Date,
				Timestamp:      t.UTC(),
			}
			if err := w.WriteEvent(ping); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

// SSEWriter frames events as text/event-stream.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter writes the stream headers and returns a writer, or an error if
// the response cannot be flushed incrementally.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) WriteEvent(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WSConn is the subset of *websocket.Conn the writer needs.
type WSConn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
}

// WSWriter sends each event as a JSON text frame.
type WSWriter struct {
	conn         WSConn
	writeTimeout time.Duration
}

func NewWSWriter(conn WSConn) *WSWriter {
	return &WSWriter{conn: conn, writeTimeout: 10 * time.Second}
}

func (w *WSWriter) WriteEvent(ev Event) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteJSON(ev)
}

var _ WSConn = (*gorillawebsocket.Conn)(nil)
