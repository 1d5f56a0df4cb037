// Package upstream dials and drives the realtime websocket session
// with the conversational AI service.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Config struct {
	// Endpoint is the service base URL (http(s) or ws(s)); the realtime
	// path and query are appended here.
	Endpoint     string
	APIKey       string
	Deployment   string
	APIVersion   string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// URL builds the realtime websocket URL for the configured deployment.
func URL(cfg Config) (string, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
		return "", fmt.Errorf("upstream endpoint %q is not an http(s) or ws(s) URL", cfg.Endpoint)
	}

	query := url.Values{}
	query.Set("api-version", cfg.APIVersion)
	query.Set("deployment", cfg.Deployment)
	return endpoint + "/openai/realtime?" + query.Encode(), nil
}

// Session is one live upstream connection. Reads have a single consumer
// (the upstream pump). Writes are serialized by a mutex so that frame
// sequences produced by concurrent tool executions never interleave on
// the wire.
type Session struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial connects and authenticates the realtime session.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	rawURL, err := URL(cfg)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	header := http.Header{}
	header.Set("api-key", cfg.APIKey)

	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("dial realtime session (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial realtime session: %w", err)
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Session{conn: conn, writeTimeout: writeTimeout}, nil
}

// ReadMessage returns the next upstream frame.
func (s *Session) ReadMessage() (messageType int, data []byte, err error) {
	return s.conn.ReadMessage()
}

// Send encodes one control frame as JSON text.
func (s *Session) Send(frame any) error {
	return s.SendSequence(frame)
}

// SendSequence writes frames back to back under one lock hold. A tool
// result and its response trigger go out through here so another
// invocation's frames cannot land between them.
func (s *Session) SendSequence(frames ...any) error {
	payloads := make([][]byte, 0, len(frames))
	for _, frame := range frames {
		payload, err := json.Marshal(frame)
		if err != nil {
			return fmt.Errorf("encode upstream frame: %w", err)
		}
		payloads = append(payloads, payload)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, payload := range payloads {
		if err := s.writeLocked(websocket.TextMessage, payload); err != nil {
			return err
		}
	}
	return nil
}

// Forward relays a raw client frame unchanged, preserving its message
// type (text or binary audio).
func (s *Session) Forward(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeLocked(messageType, data)
}

func (s *Session) writeLocked(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// Close sends a close frame and tears the connection down. Safe to call
// more than once and from any goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(s.writeTimeout)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
