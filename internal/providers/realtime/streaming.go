package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"clinscribe/internal/domain"
	"clinscribe/internal/ports"
)

// Config controls the live transcription websocket.
type Config struct {
	APIKey string
	URL    string
	Model  string
}

// Provider implements ports.TranscriptionProvider over a websocket channel.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.URL == "" {
		cfg.URL = "wss://realtime.clinscribe.local/v1/listen"
	}
	if cfg.Model == "" {
		cfg.Model = "live-transcribe-1"
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer}
}

// StartStreaming dials the channel and sends the setup frame carrying the
// role instruction before any audio.
func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("realtime api key is not configured")
	}

	wsURL, err := normalizeURL(p.cfg.URL)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+p.cfg.APIKey)

	conn, _, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to transcription channel: %w", err)
	}

	setup, err := json.Marshal(buildSetup(p.cfg.Model, cfg))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("encode setup frame: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send setup frame: %w", err)
	}

	session := &streamingSession{
		conn:   conn,
		events: make(chan domain.TranscriptEvent, 64),
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

type setupFrame struct {
	Type        string     `json:"type"`
	Model       string     `json:"model"`
	Instruction string     `json:"instruction"`
	Language    string     `json:"language,omitempty"`
	Audio       audioSetup `json:"audio"`
}

type audioSetup struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func buildSetup(model string, cfg ports.StreamingConfig) setupFrame {
	if cfg.Encoding == "" {
		cfg.Encoding = "pcm_s16le"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return setupFrame{
		Type:        "setup",
		Model:       model,
		Instruction: cfg.Instruction,
		Language:    cfg.Language,
		Audio: audioSetup{
			Encoding:   cfg.Encoding,
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
		},
	}
}

type streamingSession struct {
	conn *websocket.Conn

	events chan domain.TranscriptEvent
	audio  chan []byte
	done   chan struct{}
	closed chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// CloseSend flushes queued audio and tells the server no more audio follows.
func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) || errors.Is(err, net.ErrClosed) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
			_ = s.conn.Close()
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"close_stream"}`)); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

// readLoop forwards transcript fragments and error events until the server
// closes the channel. Error events do not end the session.
func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read channel event: %w", err))
			return
		}

		var message serverMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			continue
		}

		switch strings.ToLower(message.Type) {
		case "transcript":
			if message.Text == "" {
				continue
			}
			s.emit(domain.TranscriptEvent{Kind: domain.TranscriptEventFragment, Text: message.Text})
		case "error":
			detail := strings.TrimSpace(message.Message)
			if detail == "" {
				detail = "transcription channel reported an unknown error"
			}
			s.emit(domain.TranscriptEvent{Kind: domain.TranscriptEventError, Text: detail})
		}
	}
}

func (s *streamingSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.closed:
	}
}

type serverMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

func normalizeURL(raw string) (string, error) {
	base := strings.TrimSpace(raw)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid transcription channel url: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid transcription channel url scheme %q", parsed.Scheme)
	}
	return parsed.String(), nil
}
