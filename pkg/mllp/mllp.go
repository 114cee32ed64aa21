// Package mllp implements the Minimal Lower Layer Protocol framing used to
// carry HL7v2 messages over a raw TCP stream.
//
// An MLLP frame is a message payload wrapped in a single start-block byte
// (0x0B) and a two-byte end marker (0x1C 0x0D). Exactly one message travels
// per frame, but a frame may arrive fragmented across any number of TCP
// reads; [Decoder] reassembles frames incrementally from whatever bytes have
// been received so far and never blocks.
package mllp

import (
	"bytes"
	"fmt"
	"io"
)

// MLLP control bytes.
const (
	StartBlock     = 0x0B // VT, marks the beginning of a frame
	EndBlock       = 0x1C // FS, first byte of the end marker
	CarriageReturn = 0x0D // CR, second byte of the end marker
)

// DefaultReadBuffer is the per-read chunk size used by Reader.
const DefaultReadBuffer = 1024

// Frame wraps a message payload with the MLLP start and end markers.
func Frame(payload []byte) []byte {
	framed := make([]byte, 0, len(payload)+3)
	framed = append(framed, StartBlock)
	framed = append(framed, payload...)
	framed = append(framed, EndBlock, CarriageReturn)
	return framed
}

// Decoder extracts complete frames from an append-only byte buffer.
//
// Push appends newly received bytes; Next returns the payload of the next
// complete frame, if any. Bytes preceding a start-block byte are protocol
// noise and are discarded, as is an end marker with no preceding start
// marker. An incomplete trailing frame stays buffered until more bytes
// arrive. The decoder imposes no frame length limit.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Push appends received bytes to the decoder's buffer.
func (d *Decoder) Push(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the payload of the next complete frame and true, or nil and
// false when no complete frame is buffered.
func (d *Decoder) Next() ([]byte, bool) {
	start := bytes.IndexByte(d.buf, StartBlock)
	if start < 0 {
		// No start marker anywhere: everything buffered is noise. This
		// also drops a stray end marker with no opening start block.
		d.buf = d.buf[:0]
		return nil, false
	}
	if start > 0 {
		d.buf = d.buf[start:]
	}

	end := bytes.Index(d.buf, []byte{EndBlock, CarriageReturn})
	if end < 0 {
		// Frame not yet complete; keep waiting. A lone trailing
		// EndBlock may still be followed by CR in the next chunk.
		return nil, false
	}

	payload := make([]byte, end-1)
	copy(payload, d.buf[1:end])
	d.buf = d.buf[end+2:]
	return payload, true
}

// Buffered reports the number of unconsumed bytes held by the decoder.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset discards all buffered bytes, including any partial frame.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// Reader reads MLLP-framed messages from an io.Reader.
type Reader struct {
	r     io.Reader
	dec   *Decoder
	chunk []byte
}

// NewReader returns a Reader that reads frames from r in chunks of bufSize
// bytes. A bufSize of zero selects DefaultReadBuffer.
func NewReader(r io.Reader, bufSize int) *Reader {
	if bufSize <= 0 {
		bufSize = DefaultReadBuffer
	}
	return &Reader{r: r, dec: NewDecoder(), chunk: make([]byte, bufSize)}
}

// ReadMessage returns the payload of the next frame, blocking until one is
// complete. It returns io.EOF on an orderly close with no partial frame
// pending, and io.ErrUnexpectedEOF if the stream ends mid-frame.
func (r *Reader) ReadMessage() ([]byte, error) {
	for {
		if payload, ok := r.dec.Next(); ok {
			return payload, nil
		}
		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.dec.Push(r.chunk[:n])
			continue
		}
		if err != nil {
			if err == io.EOF && r.dec.Buffered() > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// Reset discards any partially received frame. Callers use it when a
// bounded read gave up mid-frame and the stream position is no longer
// trusted.
func (r *Reader) Reset() {
	r.dec.Reset()
}

// Writer writes MLLP-framed messages to an io.Writer.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer that frames payloads onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage frames payload and writes it in full.
func (w *Writer) WriteMessage(payload []byte) error {
	framed := Frame(payload)
	n, err := w.w.Write(framed)
	if err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	if n != len(framed) {
		return io.ErrShortWrite
	}
	return nil
}
