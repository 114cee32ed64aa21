// Package receiver implements the inbound side of the exchange: a TCP
// listener speaking MLLP, with one session per accepted connection.
//
// # Session state machine
//
// Each session moves through
//
//	Open -> ReadingFrame -> Validating -> Acknowledging -> ReadingFrame ...
//
// and reaches Closed on end-of-stream or a socket error. A single malformed
// message never closes the session; the session degrades to sending (or
// skipping) an acknowledgment and keeps reading.
//
// # Capture
//
// Every complete frame is persisted to the capture sink exactly once,
// whether or not it validated and whether or not the acknowledgment could be
// sent. A capture failure is logged and the session continues; capture is
// best-effort, not exactly-once delivery.
package receiver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eastgenomics/hl7-epic-integration/internal/capture"
	"github.com/eastgenomics/hl7-epic-integration/internal/metrics"
	"github.com/eastgenomics/hl7-epic-integration/pkg/ack"
	"github.com/eastgenomics/hl7-epic-integration/pkg/er7"
	"github.com/eastgenomics/hl7-epic-integration/pkg/mllp"
)

// reasonMissingSegments is the MSA-3 text sent with a reject ack.
const reasonMissingSegments = "missing required segments"

// Config holds receiver settings.
type Config struct {
	// ListenAddr is the TCP address to bind, e.g. ":20480".
	ListenAddr string
	// ReadBuffer bounds one socket read, not a message. Zero selects
	// mllp.DefaultReadBuffer.
	ReadBuffer int
}

// Server accepts MLLP connections and runs a session per connection.
type Server struct {
	cfg     Config
	sink    capture.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	draining bool
}

// New creates a Server. sink is required; a nil logger falls back to
// slog.Default and nil metrics to unregistered collectors.
func New(cfg Config, sink capture.Sink, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Server{
		cfg:     cfg,
		sink:    sink,
		metrics: m,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds the listener and accepts connections until ctx is
// cancelled, then closes the listener and any open sessions and waits for
// them to drain.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln. Exposed separately so tests can bind
// an ephemeral port.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("listening for MLLP connections", "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		s.closeSessions()
		return nil
	})

	g.Go(func() error {
		var wg sync.WaitGroup
		defer wg.Wait()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			s.track(conn)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.untrack(conn)
				s.newSession(conn).run(ctx)
			}()
		}
	})

	return g.Wait()
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A connection accepted in the window between shutdown starting and
	// the listener closing must not outlive the server.
	if s.draining {
		conn.Close()
	}
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
	for conn := range s.conns {
		conn.Close()
	}
}

// sessionState tracks where a session is in its read/validate/ack loop.
type sessionState int

const (
	stateOpen sessionState = iota
	stateReadingFrame
	stateValidating
	stateAcknowledging
	stateClosed
)

type session struct {
	conn    net.Conn
	reader  *mllp.Reader
	writer  *mllp.Writer
	sink    capture.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
	state   sessionState
}

func (s *Server) newSession(conn net.Conn) *session {
	return &session{
		conn:    conn,
		reader:  mllp.NewReader(conn, s.cfg.ReadBuffer),
		writer:  mllp.NewWriter(conn),
		sink:    s.sink,
		metrics: s.metrics,
		logger:  s.logger.With("peer", conn.RemoteAddr().String()),
		state:   stateOpen,
	}
}

func (s *session) run(ctx context.Context) {
	s.logger.Info("session opened")
	s.metrics.ActiveSessions.Inc()
	defer func() {
		s.state = stateClosed
		s.metrics.ActiveSessions.Dec()
		s.conn.Close()
		s.logger.Info("session closed")
	}()

	for {
		s.state = stateReadingFrame
		payload, err := s.reader.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Info("peer closed connection")
			case errors.Is(err, io.ErrUnexpectedEOF):
				s.logger.Warn("connection closed mid-frame, partial frame discarded")
			case errors.Is(err, net.ErrClosed):
				s.logger.Info("session cancelled")
			default:
				s.logger.Error("read failed", "error", err)
			}
			return
		}
		s.handleFrame(ctx, string(payload))
	}
}

// handleFrame validates one message, answers it, and captures it. The
// capture write happens last but unconditionally: neither a validation
// failure nor an ack failure suppresses it.
func (s *session) handleFrame(ctx context.Context, raw string) {
	s.metrics.FramesReceived.Inc()

	s.state = stateValidating
	msg, parseErr := er7.Parse(raw, false)
	valid := parseErr == nil && ack.Validate(msg)

	s.state = stateAcknowledging
	switch {
	case parseErr != nil:
		// Nothing to build a response from; log and move on rather
		// than forwarding a partial ack.
		s.metrics.AckFailures.Inc()
		s.logger.Error("unparseable message, no acknowledgment sent", "error", parseErr)
	case valid:
		s.sendAck(msg, ack.Accept, "")
	default:
		s.sendAck(msg, ack.Reject, reasonMissingSegments)
	}

	entry := capture.Entry{
		Raw:        raw,
		ReceivedAt: time.Now(),
		RemoteAddr: s.conn.RemoteAddr().String(),
		Valid:      valid,
	}
	if err := s.sink.Store(ctx, entry); err != nil {
		s.metrics.CaptureFailures.Inc()
		s.logger.Error("capture failed", "error", err)
	}
}

func (s *session) sendAck(original *er7.Message, outcome ack.Outcome, reason string) {
	response, err := ack.Build(original, outcome, reason)
	if err != nil {
		s.metrics.AckFailures.Inc()
		s.logger.Error("building acknowledgment failed", "error", err)
		return
	}
	if err := s.writer.WriteMessage([]byte(response.Serialize())); err != nil {
		s.metrics.AckFailures.Inc()
		s.logger.Error("sending acknowledgment failed", "error", err)
		return
	}
	if outcome == ack.Accept {
		s.metrics.FramesAccepted.Inc()
		s.logger.Info("message accepted", "controlID", original.Segment("MSH").Field(10))
	} else {
		s.metrics.FramesRejected.Inc()
		s.logger.Warn("message rejected", "reason", reason)
	}
}
