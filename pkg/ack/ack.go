// Package ack provides structural validation of received HL7v2 messages and
// construction of the ACK responses returned to the sender.
//
// Validation is intentionally minimal: a message is acceptable when it
// carries both an MSH and a PID segment. Anything structurally unparseable
// is invalid; parse failures never propagate to the session loop.
//
// An acknowledgment is always a fresh two-segment ACK message (MSH + MSA)
// with the sending and receiving application/facility fields of the original
// swapped, per the HL7 acknowledgment rules.
package ack

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eastgenomics/hl7-epic-integration/pkg/er7"
)

// Outcome selects between a positive and a negative acknowledgment.
type Outcome int

const (
	Accept Outcome = iota // MSA-1 "AA"
	Reject                // MSA-1 "AE"
)

// MSA-1 acknowledgment codes.
const (
	CodeAccept = "AA"
	CodeError  = "AE"
)

// timestampLayout is the HL7 DTM precision used for MSH-7.
const timestampLayout = "20060102150405"

// BuildError reports that an acknowledgment could not be constructed from a
// malformed original. The caller must not send a partial ack.
type BuildError struct {
	Reason string
}

func (e *BuildError) Error() string {
	return "ack: cannot construct acknowledgment: " + e.Reason
}

// Validate reports whether the message carries the required segment set
// (MSH and PID).
func Validate(m *er7.Message) bool {
	if m == nil {
		return false
	}
	return m.HasSegment("MSH") && m.HasSegment("PID")
}

// ValidateText parses and validates raw ER7 text. Unparseable input is
// simply invalid.
func ValidateText(text string) bool {
	m, err := er7.Parse(text, false)
	if err != nil {
		return false
	}
	return Validate(m)
}

// Build constructs the acknowledgment for original.
//
// MSH-3/4 of the ack take the original's MSH-5/6 and MSH-5/6 take the
// original's MSH-3/4 (sender/receiver swap); MSH-7 is the build time; MSH-9
// is the literal ACK. On Accept, MSA-2 echoes the original's control ID
// (MSH-10). On Reject, MSA-2 carries a locally generated control ID so a
// rejected message's ID is never reused, and MSA-3 carries reason.
func Build(original *er7.Message, outcome Outcome, reason string) (*er7.Message, error) {
	return buildAt(original, outcome, reason, time.Now())
}

func buildAt(original *er7.Message, outcome Outcome, reason string, now time.Time) (*er7.Message, error) {
	if original == nil {
		return nil, &BuildError{Reason: "no original message"}
	}
	msh := original.Segment("MSH")
	if msh == nil {
		return nil, &BuildError{Reason: "original has no MSH segment"}
	}
	controlID := msh.Field(10)
	if outcome == Accept && controlID == "" {
		return nil, &BuildError{Reason: "original has no message control ID (MSH-10)"}
	}

	m := &er7.Message{Delimiters: original.Delimiters}

	hdr := m.AppendSegment("MSH")
	hdr.SetField(2, original.Delimiters.Encoding())
	hdr.SetField(3, msh.Field(5))
	hdr.SetField(4, msh.Field(6))
	hdr.SetField(5, msh.Field(3))
	hdr.SetField(6, msh.Field(4))
	hdr.SetField(7, now.Format(timestampLayout))
	hdr.SetField(9, "ACK")
	hdr.SetField(11, msh.Field(11))
	hdr.SetField(12, msh.Field(12))

	msa := m.AppendSegment("MSA")
	switch outcome {
	case Accept:
		// The accept ack reuses the original's control ID end to end.
		hdr.SetField(10, controlID)
		msa.SetField(1, CodeAccept)
		msa.SetField(2, controlID)
	case Reject:
		// A reject ack gets its own control ID so it can never collide
		// with the ID of the message it is rejecting.
		local := localControlID()
		hdr.SetField(10, local)
		msa.SetField(1, CodeError)
		msa.SetField(2, local)
		msa.SetField(3, reason)
	default:
		return nil, &BuildError{Reason: fmt.Sprintf("unknown outcome %d", outcome)}
	}

	return m, nil
}

// localControlID generates a control ID that cannot collide with one issued
// by the peer. HL7 caps MSH-10 at 20 characters, so use a truncated uuid.
func localControlID() string {
	id := uuid.New().String()
	return "EG" + id[:8] + id[9:13] + id[14:18]
}
