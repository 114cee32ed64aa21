package er7

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleORU = "MSH|^~\\&|SEND|SEND_FAC|RECV|RECV_FAC|20240101120000||ORU^R01|CTRL1|P|2.4\r" +
	"PID|1||12345^^^MRN||DOE^JOHN\r" +
	"OBX|1|ST|GLUC^Glucose||5.5|mmol/L"

func TestParse_Basic(t *testing.T) {
	msg, err := Parse(sampleORU, false)
	require.NoError(t, err)
	require.Len(t, msg.Segments, 3)

	assert.Equal(t, "MSH", msg.Segments[0].Name)
	assert.Equal(t, "PID", msg.Segments[1].Name)
	assert.Equal(t, "OBX", msg.Segments[2].Name)
	assert.Equal(t, DefaultDelimiters, msg.Delimiters)
}

func TestParse_MSHFieldNumbering(t *testing.T) {
	msg, err := Parse(sampleORU, false)
	require.NoError(t, err)

	msh := msg.Segment("MSH")
	require.NotNil(t, msh)
	assert.Equal(t, "|", msh.Field(1))
	assert.Equal(t, "^~\\&", msh.Field(2))
	assert.Equal(t, "SEND", msh.Field(3))
	assert.Equal(t, "SEND_FAC", msh.Field(4))
	assert.Equal(t, "RECV", msh.Field(5))
	assert.Equal(t, "RECV_FAC", msh.Field(6))
	assert.Equal(t, "ORU^R01", msh.Field(9))
	assert.Equal(t, "CTRL1", msh.Field(10))
}

func TestParse_FieldAndComponentAccess(t *testing.T) {
	msg, err := Parse(sampleORU, false)
	require.NoError(t, err)

	pid := msg.Segment("PID")
	require.NotNil(t, pid)
	assert.Equal(t, "1", pid.Field(1))
	assert.Equal(t, "12345^^^MRN", pid.Field(3))
	assert.Equal(t, "12345", pid.Component(3, 1))
	assert.Equal(t, "MRN", pid.Component(3, 4))
	assert.Equal(t, "DOE", pid.Component(5, 1))

	// Absent positions read as empty, never fail.
	assert.Equal(t, "", pid.Field(40))
	assert.Equal(t, "", pid.Component(3, 9))
	assert.Equal(t, "", pid.Field(0))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "  \r\n "},
		{"no MSH first", "PID|1||12345"},
		{"header too short", "MSH"},
		{"lowercase segment name", sampleORU + "\rzsp|1|local"},
		{"segment name too long", "MSH|^~\\&|A|B|C|D|E||F|G\rABCD|1"},
		{"segment without separator", "MSH|^~\\&|A|B|C|D|E||F|G\rPID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, false)
			require.Error(t, err)
			var perr *ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestParse_CustomDelimiters(t *testing.T) {
	msg, err := Parse("MSH#*~\\&#SEND#SEND_FAC", false)
	require.NoError(t, err)
	assert.Equal(t, byte('#'), msg.Delimiters.Field)
	assert.Equal(t, byte('*'), msg.Delimiters.Component)
	assert.Equal(t, "SEND", msg.Segment("MSH").Field(3))
}

func TestSerialize_RoundTrip(t *testing.T) {
	// Any line-ending convention parses; serialization always emits CR.
	for _, ending := range []string{"\r", "\n", "\r\n"} {
		text := strings.ReplaceAll(sampleORU, "\r", ending)
		msg, err := Parse(text, false)
		require.NoError(t, err)
		assert.Equal(t, sampleORU, msg.Serialize(), "ending %q", ending)
	}
}

func TestSerialize_AfterSetField(t *testing.T) {
	msg, err := Parse("MSH|^~\\&|SEND|SEND_FAC|RECV|RECV_FAC|20240101120000||ORU^R01|CTRL1", false)
	require.NoError(t, err)

	msh := msg.Segment("MSH")
	msh.SetField(3, "OTHER")
	assert.Equal(t, "OTHER", msh.Field(3))

	// Growing past the current length pads with empty fields.
	msh.SetField(15, "UTF-8")
	assert.Equal(t, "UTF-8", msh.Field(15))
	assert.Equal(t, "", msh.Field(14))

	reparsed, err := Parse(msg.Serialize(), false)
	require.NoError(t, err)
	assert.Equal(t, "OTHER", reparsed.Segment("MSH").Field(3))
	assert.Equal(t, "UTF-8", reparsed.Segment("MSH").Field(15))
}

func TestAppendSegment(t *testing.T) {
	m := &Message{Delimiters: DefaultDelimiters}
	hdr := m.AppendSegment("MSH")
	hdr.SetField(2, DefaultDelimiters.Encoding())
	hdr.SetField(9, "ACK")
	msa := m.AppendSegment("MSA")
	msa.SetField(1, "AA")

	assert.Equal(t, "MSH|^~\\&|||||||ACK\rMSA|AA", m.Serialize())
}

func TestHasSegment(t *testing.T) {
	msg, err := Parse(sampleORU, false)
	require.NoError(t, err)
	assert.True(t, msg.HasSegment("PID"))
	assert.False(t, msg.HasSegment("SPM"))
}
