// Package transmitter implements the outbound side of the exchange: it
// gathers candidate message files into a delivery job, frames them, and
// delivers them sequentially over one persistent MLLP connection.
//
// # Failure policy
//
// A broken or reset connection is transient: the engine waits a fixed
// backoff, reconnects with a fresh socket, and retries the same message, up
// to a per-message attempt cap. Every other delivery error is fatal and
// aborts the whole run before any later message is attempted, as is
// exhausting the attempt cap. A run is a batch: a non-network failure on one
// message means the batch cannot be trusted to continue.
//
// A delivery counts as successful once the frame is fully written. The
// acknowledgment read afterwards is bounded by a timeout and logged either
// way; a missing ack does not fail the delivery.
package transmitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/eastgenomics/hl7-epic-integration/internal/metrics"
	"github.com/eastgenomics/hl7-epic-integration/internal/source"
	"github.com/eastgenomics/hl7-epic-integration/pkg/er7"
	"github.com/eastgenomics/hl7-epic-integration/pkg/mllp"
)

// Config holds delivery settings.
type Config struct {
	// MaxAttempts caps deliveries of one message across reconnects.
	// Zero selects 5.
	MaxAttempts int
	// ReconnectBackoff is the fixed wait before reconnecting after a
	// broken connection. Zero selects 300 seconds.
	ReconnectBackoff time.Duration
	// AckTimeout bounds the wait for an acknowledgment after a send.
	// Zero selects 30 seconds.
	AckTimeout time.Duration
	// ReadBuffer bounds one socket read while awaiting an ack.
	ReadBuffer int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.ReconnectBackoff == 0 {
		c.ReconnectBackoff = 300 * time.Second
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 30 * time.Second
	}
	return c
}

// Dialer opens a connection to the integration engine. It is an interface
// so delivery tests can script connection failures.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

type netDialer struct {
	addr string
}

// NewDialer returns a Dialer for the given host and port.
func NewDialer(host string, port int) Dialer {
	return &netDialer{addr: net.JoinHostPort(host, fmt.Sprintf("%d", port))}
}

func (d *netDialer) Dial(ctx context.Context) (net.Conn, error) {
	var nd net.Dialer
	return nd.DialContext(ctx, "tcp", d.addr)
}

// Item is one outbound message, already framed, keyed by its source file.
type Item struct {
	Source string
	Frame  []byte
}

// Job is the set of messages for one delivery run, in enumeration order.
type Job struct {
	Items []Item
}

// BuildJob reads, normalizes and frames the candidate files. Files that do
// not parse as HL7 are logged and skipped; the job carries the rest in the
// order given.
func BuildJob(files []source.File, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	job := &Job{}
	for _, f := range files {
		text, err := source.ReadMessage(f.Path)
		if err != nil {
			logger.Error("skipping unreadable file", "path", f.Path, "error", err)
			continue
		}
		msg, err := er7.Parse(text, false)
		if err != nil {
			logger.Error("skipping unparseable file", "path", f.Path, "error", err)
			continue
		}
		job.Items = append(job.Items, Item{
			Source: f.Path,
			Frame:  mllp.Frame([]byte(msg.Serialize())),
		})
	}
	return job
}

// link is the owned connection state carried through a run. It is passed
// into and returned from deliver so ownership across reconnects stays with
// exactly one caller.
type link struct {
	conn   net.Conn
	reader *mllp.Reader
}

func (l *link) close() {
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		l.reader = nil
	}
}

// Engine delivers jobs over a single connection at a time.
type Engine struct {
	dialer  Dialer
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Engine. A nil logger falls back to slog.Default and nil
// metrics to unregistered collectors.
func New(dialer Dialer, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Engine{dialer: dialer, cfg: cfg.withDefaults(), metrics: m, logger: logger}
}

// Run delivers every item of job in order over one connection, reconnecting
// on transient failures. It returns nil only when every item was delivered.
func (e *Engine) Run(ctx context.Context, job *Job) error {
	if len(job.Items) == 0 {
		e.logger.Info("nothing to deliver")
		return nil
	}

	conn, err := e.dialer.Dial(ctx)
	if err != nil {
		e.metrics.RunsAborted.Inc()
		return fmt.Errorf("connecting: %w", err)
	}
	l := &link{conn: conn, reader: mllp.NewReader(conn, e.cfg.ReadBuffer)}
	defer l.close()

	e.logger.Info("delivery run started", "messages", len(job.Items))
	for _, item := range job.Items {
		l, err = e.deliver(ctx, l, item)
		if err != nil {
			e.metrics.RunsAborted.Inc()
			return err
		}
	}
	e.logger.Info("delivery run completed", "messages", len(job.Items))
	return nil
}

// deliver sends one item, reconnecting on broken connections up to the
// attempt cap. It returns the link now owning the active connection, which
// may differ from the one passed in.
func (e *Engine) deliver(ctx context.Context, l *link, item Item) (*link, error) {
	for attempt := 1; ; attempt++ {
		if l.conn == nil {
			conn, err := e.dialer.Dial(ctx)
			if err != nil {
				e.logger.Warn("reconnect failed", "source", item.Source, "attempt", attempt, "error", err)
				if attempt >= e.cfg.MaxAttempts {
					return l, fmt.Errorf("delivering %s: %d attempts exhausted: %w", item.Source, e.cfg.MaxAttempts, err)
				}
				if err := e.wait(ctx); err != nil {
					return l, err
				}
				continue
			}
			e.metrics.Reconnects.Inc()
			l = &link{conn: conn, reader: mllp.NewReader(conn, e.cfg.ReadBuffer)}
		}

		err := writeFull(l.conn, item.Frame)
		if err == nil {
			e.metrics.MessagesSent.Inc()
			e.logger.Info("message sent", "source", item.Source, "attempt", attempt)
			e.awaitAck(l, item.Source)
			return l, nil
		}

		if !isTransient(err) {
			return l, fmt.Errorf("delivering %s: %w", item.Source, err)
		}

		e.logger.Warn("connection broken during send", "source", item.Source, "attempt", attempt, "error", err)
		l.close()
		if attempt >= e.cfg.MaxAttempts {
			return l, fmt.Errorf("delivering %s: %d attempts exhausted: %w", item.Source, e.cfg.MaxAttempts, err)
		}
		if err := e.wait(ctx); err != nil {
			return l, err
		}
	}
}

// awaitAck reads one frame as the acknowledgment, bounded by AckTimeout.
// The outcome is logged; a missing or late ack does not fail the delivery.
func (e *Engine) awaitAck(l *link, src string) {
	if err := l.conn.SetReadDeadline(time.Now().Add(e.cfg.AckTimeout)); err != nil {
		e.logger.Warn("cannot set ack read deadline", "source", src, "error", err)
		return
	}
	defer l.conn.SetReadDeadline(time.Time{})

	payload, err := l.reader.ReadMessage()
	if err != nil {
		// Drop any partial frame so a late ack for this message cannot
		// surface later as the ack for the next one.
		l.reader.Reset()
		e.logger.Warn("no acknowledgment received", "source", src, "error", err)
		return
	}
	e.logger.Info("acknowledgment received", "source", src, "ack", string(payload))
}

func (e *Engine) wait(ctx context.Context) error {
	e.logger.Info("backing off before reconnect", "backoff", e.cfg.ReconnectBackoff)
	select {
	case <-time.After(e.cfg.ReconnectBackoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeFull(conn net.Conn, p []byte) error {
	n, err := conn.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}

// isTransient reports whether err is the broken/reset-connection class of
// failure that reconnect-and-retry can recover from.
func isTransient(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe)
}
