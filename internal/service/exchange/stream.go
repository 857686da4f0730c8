package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Writer lets a frame handler answer the server (pong replies).
type Writer interface {
	WriteJSON(v interface{}) error
}

// StreamConfig describes one WebSocket subscription.
type StreamConfig struct {
	URL       string
	Subscribe []interface{} // JSON messages sent right after connecting

	// PingInterval > 0 starts a keepalive loop. PingMessage builds an
	// application-level ping; nil sends a protocol ping frame.
	PingInterval time.Duration
	PingMessage  func() interface{}

	// Handle receives every data frame. A non-nil error ends the stream.
	Handle func(frame []byte, w Writer) error
}

// Stream is a live WebSocket feed that satisfies repository.Subscription.
type Stream struct {
	conn *websocket.Conn
	cfg  StreamConfig

	writeMu sync.Mutex
	done    chan struct{}
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu     sync.Mutex
	err    error
	closed bool
}

// Dial connects, sends the subscribe messages and starts the read and ping loops.
// The stream ends when ctx is done, the server closes, Handle fails or Close is called.
func Dial(ctx context.Context, dialer *websocket.Dialer, cfg StreamConfig) (*Stream, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	s := &Stream{
		conn: conn,
		cfg:  cfg,
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	for _, msg := range cfg.Subscribe {
		if err := s.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ws subscribe: %w", err)
		}
	}

	s.wg.Add(1)
	go s.readLoop()
	if cfg.PingInterval > 0 {
		s.wg.Add(1)
		go s.pingLoop()
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func (s *Stream) WriteJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *Stream) readLoop() {
	defer s.wg.Done()
	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(fmt.Errorf("ws read: %w", err))
			return
		}
		if s.cfg.Handle == nil {
			continue
		}
		if err := s.cfg.Handle(frame, s); err != nil {
			s.finish(err)
			return
		}
	}
}

func (s *Stream) pingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			var err error
			if s.cfg.PingMessage != nil {
				err = s.WriteJSON(s.cfg.PingMessage())
			} else {
				s.writeMu.Lock()
				err = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				s.writeMu.Unlock()
			}
			if err != nil {
				s.finish(fmt.Errorf("ws ping: %w", err))
				return
			}
		}
	}
}

// finish records the first terminal error and tears the connection down.
func (s *Stream) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		if !s.closed {
			s.err = err
		}
		s.mu.Unlock()
		close(s.stop)
		_ = s.conn.Close()
		close(s.done)
	})
}

func (s *Stream) Done() <-chan struct{} { return s.done }

// Err is nil while running and after a local Close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream and waits for its loops to exit.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()

	s.finish(errors.New("closed"))
	s.wg.Wait()
	return nil
}
