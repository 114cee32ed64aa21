// Package er7 implements a minimal structural model of HL7v2 messages in
// their ER7 (pipe-and-hat) text encoding.
//
// The model is deliberately shallow: it preserves segment order, indexes
// fields and components by their 1-based HL7 positions, and serializes back
// to text. It does not model message profiles, repetitions as typed values,
// or escape sequences; that depth is not needed to validate a message, build
// an acknowledgment, or rewrite the MSH/MSA control fields, which is all the
// exchange engine requires.
//
// # MSH numbering
//
// Per HL7 convention, MSH-1 is the field separator character itself and
// MSH-2 is the remaining encoding characters, so MSH-3 is the first
// pipe-delimited value after the encoding characters. All other segments
// number their fields from the first value after the segment name.
package er7

import (
	"fmt"
	"strings"
)

// Delimiters holds the encoding characters a message was authored with.
// They are read from MSH-1/MSH-2 when parsing and reused when serializing.
type Delimiters struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	Subcomponent byte
}

// DefaultDelimiters is the conventional HL7 encoding character set |^~\&.
var DefaultDelimiters = Delimiters{
	Field:        '|',
	Component:    '^',
	Repetition:   '~',
	Escape:       '\\',
	Subcomponent: '&',
}

// Encoding returns the MSH-2 value for these delimiters.
func (d Delimiters) Encoding() string {
	return string([]byte{d.Component, d.Repetition, d.Escape, d.Subcomponent})
}

// ParseError describes why a text could not be parsed as an ER7 message.
type ParseError struct {
	Line   int    // 1-based segment line, 0 when the whole text is at fault
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("er7: parse error at segment %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("er7: parse error: %s", e.Reason)
}

// Segment is one named segment and its fields. Fields are stored as the raw
// pipe-delimited values in order; component splitting happens on access.
type Segment struct {
	Name string

	delims Delimiters
	fields []string // values after the segment name, in order
}

// Message is an ordered sequence of segments sharing one delimiter set. The
// first segment is always MSH.
type Message struct {
	Delimiters Delimiters
	Segments   []*Segment

	// strictGrouping records whether the caller asked for segments to be
	// nested into standard message groups. Grouping itself is not
	// implemented; the flat segment view below is authoritative either way.
	strictGrouping bool
}

// Parse parses ER7 text into a Message. Segment terminators may be CR, LF or
// CRLF; serialization always emits CR. strictGrouping is carried on the
// message but does not change the flat segment view.
//
// Parse fails with a *ParseError when the text does not open with an MSH
// segment and its field separator, or when a segment name is not exactly
// three uppercase characters.
func Parse(text string, strictGrouping bool) (*Message, error) {
	lines := splitSegments(text)
	if len(lines) == 0 {
		return nil, &ParseError{Reason: "empty message"}
	}

	head := lines[0]
	if len(head) < 4 || head[:3] != "MSH" {
		return nil, &ParseError{Line: 1, Reason: "message must begin with an MSH segment"}
	}

	delims := DefaultDelimiters
	delims.Field = head[3]
	// MSH-2 supplies the remaining encoding characters; shorter values fall
	// back to the defaults for the characters they omit.
	if enc := fieldAfter(head, delims.Field); len(enc) > 0 {
		set := []*byte{&delims.Component, &delims.Repetition, &delims.Escape, &delims.Subcomponent}
		for i := 0; i < len(enc) && i < len(set); i++ {
			*set[i] = enc[i]
		}
	}

	msg := &Message{Delimiters: delims, strictGrouping: strictGrouping}
	for i, line := range lines {
		seg, err := parseSegment(line, delims)
		if err != nil {
			return nil, &ParseError{Line: i + 1, Reason: err.Error()}
		}
		msg.Segments = append(msg.Segments, seg)
	}
	return msg, nil
}

// Serialize renders the message back to ER7 text, segments joined by CR.
// For any message produced by Parse this is the inverse transformation
// modulo line-ending normalization.
func (m *Message) Serialize() string {
	parts := make([]string, len(m.Segments))
	for i, seg := range m.Segments {
		parts[i] = seg.serialize()
	}
	return strings.Join(parts, "\r")
}

// Segment returns the first segment with the given name, or nil.
func (m *Message) Segment(name string) *Segment {
	for _, seg := range m.Segments {
		if seg.Name == name {
			return seg
		}
	}
	return nil
}

// HasSegment reports whether any segment with the given name is present.
func (m *Message) HasSegment(name string) bool {
	return m.Segment(name) != nil
}

// AppendSegment adds an empty segment with the given name and returns it.
func (m *Message) AppendSegment(name string) *Segment {
	seg := &Segment{Name: name, delims: m.Delimiters}
	m.Segments = append(m.Segments, seg)
	return seg
}

// Field returns the value of the 1-based field i, or the empty string when
// the field is absent. For MSH, field 1 is the field separator and field 2
// the encoding characters.
func (s *Segment) Field(i int) string {
	if i < 1 {
		return ""
	}
	if s.Name == "MSH" {
		switch i {
		case 1:
			return string(s.delims.Field)
		default:
			i-- // MSH-2 is stored as the first value after the name
		}
	}
	if i > len(s.fields) {
		return ""
	}
	return s.fields[i-1]
}

// SetField sets the 1-based field i, growing the segment with empty fields
// as needed. Setting MSH-1 is ignored; the field separator belongs to the
// message's delimiter set.
func (s *Segment) SetField(i int, value string) {
	if i < 1 {
		return
	}
	if s.Name == "MSH" {
		if i == 1 {
			return
		}
		i--
	}
	for len(s.fields) < i {
		s.fields = append(s.fields, "")
	}
	s.fields[i-1] = value
}

// Component returns the 1-based component c of field f, or the empty string
// when absent. A field with no component separator is its own component 1.
func (s *Segment) Component(f, c int) string {
	if c < 1 {
		return ""
	}
	parts := strings.Split(s.Field(f), string(s.delims.Component))
	if c > len(parts) {
		return ""
	}
	return parts[c-1]
}

// NumFields reports the highest populated field index.
func (s *Segment) NumFields() int {
	if s.Name == "MSH" {
		return len(s.fields) + 1
	}
	return len(s.fields)
}

func (s *Segment) serialize() string {
	sep := string(s.delims.Field)
	return s.Name + sep + strings.Join(s.fields, sep)
}

func parseSegment(line string, delims Delimiters) (*Segment, error) {
	sep := string(delims.Field)
	idx := strings.Index(line, sep)
	if idx < 0 {
		return nil, fmt.Errorf("no field separator %q", sep)
	}
	name := line[:idx]
	if !validSegmentName(name) {
		return nil, fmt.Errorf("invalid segment name %q", name)
	}
	return &Segment{
		Name:   name,
		delims: delims,
		fields: strings.Split(line[idx+1:], sep),
	}, nil
}

func validSegmentName(name string) bool {
	if len(name) != 3 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return name[0] >= 'A' && name[0] <= 'Z'
}

// splitSegments normalizes CR, LF and CRLF terminators and drops blank lines.
func splitSegments(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\r")
	normalized = strings.ReplaceAll(normalized, "\n", "\r")
	var lines []string
	for _, line := range strings.Split(normalized, "\r") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// fieldAfter returns the first sep-delimited value after the segment name in
// a raw segment line, used to pull MSH-2 before the delimiter set is known.
func fieldAfter(line string, sep byte) string {
	rest := line[4:] // past "MSH" and the separator
	if i := strings.IndexByte(rest, sep); i >= 0 {
		return rest[:i]
	}
	return rest
}
