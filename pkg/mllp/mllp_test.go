package mllp

import (
	"bytes"
	"io"
	"testing"
)

func TestFrame(t *testing.T) {
	framed := Frame([]byte("MSH|test"))
	if framed[0] != StartBlock {
		t.Errorf("expected start block 0x0B, got 0x%02X", framed[0])
	}
	if framed[len(framed)-2] != EndBlock || framed[len(framed)-1] != CarriageReturn {
		t.Errorf("expected end marker 0x1C 0x0D, got 0x%02X 0x%02X",
			framed[len(framed)-2], framed[len(framed)-1])
	}
	if !bytes.Equal(framed[1:len(framed)-2], []byte("MSH|test")) {
		t.Errorf("payload altered: %q", framed[1:len(framed)-2])
	}
}

// drain collects every complete frame currently extractable.
func drain(d *Decoder) [][]byte {
	var out [][]byte
	for {
		payload, ok := d.Next()
		if !ok {
			return out
		}
		out = append(out, payload)
	}
}

func TestDecoder_TwoFramesAnySplit(t *testing.T) {
	x := []byte("MSH|^~\\&|A")
	y := []byte("MSH|^~\\&|B")
	stream := append(Frame(x), Frame(y)...)

	// The two frames must come out whole however the stream is chunked.
	for split := 0; split <= len(stream); split++ {
		d := NewDecoder()
		d.Push(stream[:split])
		got := drain(d)
		d.Push(stream[split:])
		got = append(got, drain(d)...)

		if len(got) != 2 {
			t.Fatalf("split %d: expected 2 frames, got %d", split, len(got))
		}
		if !bytes.Equal(got[0], x) || !bytes.Equal(got[1], y) {
			t.Fatalf("split %d: payloads corrupted: %q %q", split, got[0], got[1])
		}
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	x := []byte("MSH|^~\\&|SEND")
	d := NewDecoder()
	var got [][]byte
	for _, b := range Frame(x) {
		d.Push([]byte{b})
		got = append(got, drain(d)...)
	}
	if len(got) != 1 || !bytes.Equal(got[0], x) {
		t.Fatalf("expected one intact frame, got %v", got)
	}
}

func TestDecoder_NoiseBeforeStartDiscarded(t *testing.T) {
	d := NewDecoder()
	d.Push([]byte("garbage"))
	d.Push(Frame([]byte("payload")))
	got := drain(d)
	if len(got) != 1 || string(got[0]) != "payload" {
		t.Fatalf("expected [payload], got %v", got)
	}
}

func TestDecoder_StrayEndMarkerDiscarded(t *testing.T) {
	d := NewDecoder()
	d.Push([]byte{EndBlock, CarriageReturn})
	if _, ok := d.Next(); ok {
		t.Fatal("stray end marker produced a frame")
	}
	if d.Buffered() != 0 {
		t.Fatalf("expected empty buffer, %d bytes retained", d.Buffered())
	}
}

func TestDecoder_IncompleteFrameRetained(t *testing.T) {
	d := NewDecoder()
	framed := Frame([]byte("partial"))
	d.Push(framed[:4])
	if _, ok := d.Next(); ok {
		t.Fatal("incomplete frame produced a payload")
	}
	if d.Buffered() == 0 {
		t.Fatal("incomplete frame was dropped")
	}
	d.Push(framed[4:])
	payload, ok := d.Next()
	if !ok || string(payload) != "partial" {
		t.Fatalf("expected completed frame, got %q ok=%v", payload, ok)
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	framed := Frame([]byte("stale"))
	d.Push(framed[:4])
	d.Reset()
	if d.Buffered() != 0 {
		t.Fatalf("expected empty buffer after reset, %d bytes retained", d.Buffered())
	}
	d.Push(Frame([]byte("fresh")))
	payload, ok := d.Next()
	if !ok || string(payload) != "fresh" {
		t.Fatalf("expected fresh frame after reset, got %q ok=%v", payload, ok)
	}
}

func TestReader_ReadsFrames(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(Frame([]byte("one")))
	stream.Write(Frame([]byte("two")))

	r := NewReader(&stream, 4)
	for _, want := range []string{"one", "two"} {
		payload, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(payload) != want {
			t.Errorf("expected %q, got %q", want, payload)
		}
	}
	if _, err := r.ReadMessage(); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestReader_EOFMidFrame(t *testing.T) {
	framed := Frame([]byte("cut short"))
	r := NewReader(bytes.NewReader(framed[:5]), 0)
	if _, err := r.ReadMessage(); err != io.ErrUnexpectedEOF {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteMessage([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, err := NewReader(&buf, 0).ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != "hello" {
		t.Errorf("expected hello, got %q", payload)
	}
}
