package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Session represents one websocket observer. Network I/O runs in dedicated
// goroutines; the broadcast state for a session is touched only from the
// game loop.
type Session struct {
	ID   uint64
	conn *websocket.Conn

	OutQueue chan []byte // writer goroutine reads from here

	IP string

	// Initialized is set by the broadcast system after the init message is
	// buffered; until then the session receives nothing. Game loop only.
	Initialized bool

	outBuf  [][]byte // buffered messages, flushed once per tick (game loop only)
	writeTO time.Duration

	server    *Server
	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	log *zap.Logger
}

func NewSession(conn *websocket.Conn, id uint64, outSize int, writeTimeout time.Duration, srv *Server, log *zap.Logger) *Session {
	return &Session{
		ID:       id,
		conn:     conn,
		OutQueue: make(chan []byte, outSize),
		IP:       conn.RemoteAddr().String(),
		writeTO:  writeTimeout,
		server:   srv,
		closeCh:  make(chan struct{}),
		log:      log.With(zap.Uint64("session", id)),
	}
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a message for this session. Nothing is written to the socket
// until FlushOutput runs in the output phase.
// Called only from the game loop goroutine.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer to OutQueue for the writer goroutine.
// Non-blocking: a full OutQueue means the observer can't keep up, and it is
// disconnected rather than allowed to stall the tick.
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow observer")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close shuts down the session and notifies the game loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
		if s.server != nil {
			s.server.NotifyDead(s.ID)
		}
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop consumes inbound frames. Observers are read-only: anything they
// send is discarded, but the read keeps ping/pong and close handling alive.
func (s *Session) readLoop() {
	defer s.Close()
	s.conn.SetReadLimit(4 * 1024)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if !s.closed.Load() {
				s.log.Debug("observer read ended", zap.Error(err))
			}
			return
		}
	}
}

// writeLoop writes queued messages to the socket with a per-write deadline.
func (s *Session) writeLoop() {
	defer s.Close()
	for {
		select {
		case data := <-s.OutQueue:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTO))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !s.closed.Load() {
					s.log.Debug("observer write failed", zap.Error(err))
				}
				return
			}
		case <-s.closeCh:
			s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
