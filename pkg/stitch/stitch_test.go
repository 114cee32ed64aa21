package stitch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultMsg = "MSH|^~\\&|LAB|LAB_FAC|RECV|RECV_FAC|20240101120000||ORU^R01|CTRL1\n" +
	"PID|1||12345\n" +
	"OBX|1|ST|GLUC||5.5\n" +
	"OBX|2|ST|UREA||4.1\n" +
	"SPM|1|SAMPLE123\n"

const responseMsg = "MSH|^~\\&|RECV|RECV_FAC|LAB|LAB_FAC|20240101130000||ORU^R01|CTRL2\n" +
	"PID|1||12345\n" +
	"OBX|1|ST|CREA||78\n" +
	"OBX|2|ST|SODIUM||140\n"

func TestMerge_RenumbersAndInsertsBeforeSPM(t *testing.T) {
	merged, changed := Merge(resultMsg, responseMsg, Options{})
	require.True(t, changed)

	lines := strings.Split(merged, "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "OBX|1|ST|GLUC||5.5", lines[2])
	assert.Equal(t, "OBX|2|ST|UREA||4.1", lines[3])
	// Response OBX segments continue the sequence and sit before SPM.
	assert.Equal(t, "OBX|3|ST|CREA||78", lines[4])
	assert.Equal(t, "OBX|4|ST|SODIUM||140", lines[5])
	assert.Equal(t, "SPM|1|SAMPLE123", lines[6])
}

func TestMerge_InsertsBeforeZSPWhenNoSPM(t *testing.T) {
	result := strings.ReplaceAll(resultMsg, "SPM|1|SAMPLE123", "ZSP|1|local")
	merged, changed := Merge(result, responseMsg, Options{})
	require.True(t, changed)

	lines := strings.Split(merged, "\n")
	assert.Equal(t, "ZSP|1|local", lines[len(lines)-1])
	assert.Equal(t, "OBX|4|ST|SODIUM||140", lines[len(lines)-2])
}

func TestMerge_AppendsWhenNoTerminalSegment(t *testing.T) {
	result := "MSH|^~\\&|LAB|LAB_FAC|RECV|RECV_FAC|20240101120000||ORU^R01|CTRL1\nOBX|1|ST|GLUC||5.5"
	merged, changed := Merge(result, responseMsg, Options{})
	require.True(t, changed)

	lines := strings.Split(merged, "\n")
	assert.Equal(t, "OBX|3|ST|SODIUM||140", lines[len(lines)-1])
	assert.Equal(t, "OBX|2|ST|CREA||78", lines[len(lines)-2])
}

func TestMerge_EmptySecondSideIsNoOp(t *testing.T) {
	noObx := "MSH|^~\\&|RECV|RECV_FAC|LAB|LAB_FAC|20240101130000||ORU^R01|CTRL2\nPID|1||12345"
	merged, changed := Merge(resultMsg, noObx, Options{})
	assert.False(t, changed)
	assert.Empty(t, merged)
}

func TestMerge_OrderPreserved(t *testing.T) {
	merged, changed := Merge(resultMsg, responseMsg, Options{})
	require.True(t, changed)

	// Relative order of the response segments survives renumbering.
	creaIdx := strings.Index(merged, "CREA")
	sodiumIdx := strings.Index(merged, "SODIUM")
	assert.Less(t, creaIdx, sodiumIdx)
}

func TestMerge_MixedLineEndings(t *testing.T) {
	crResult := strings.ReplaceAll(resultMsg, "\n", "\r")
	merged, changed := Merge(crResult, responseMsg, Options{})
	require.True(t, changed)
	assert.Contains(t, merged, "OBX|3|ST|CREA||78")
}

func TestMerge_CustomTag(t *testing.T) {
	first := "MSH|^~\\&|A|B|C|D|E||F|G\nNTE|1|note one\nSPM|1|S"
	second := "MSH|^~\\&|A|B|C|D|E||F|G\nNTE|1|note two"
	merged, changed := Merge(first, second, Options{Tag: "NTE"})
	require.True(t, changed)
	assert.Contains(t, merged, "NTE|2|note two")
}

func TestRun(t *testing.T) {
	resultsDir := t.TempDir()
	responsesDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "merged")

	write := func(dir, name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	// Present in both, response has OBX: merged.
	write(resultsDir, "a.txt", resultMsg)
	write(responsesDir, "a.txt", responseMsg)
	// Present in both, response has no OBX: skipped.
	write(resultsDir, "b.txt", resultMsg)
	write(responsesDir, "b.txt", "MSH|^~\\&|A|B|C|D|E||F|G\nPID|1||12345")
	// Only in results: skipped.
	write(resultsDir, "c.txt", resultMsg)

	require.NoError(t, Run(resultsDir, responsesDir, outDir, Options{}, nil))

	merged, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(merged), "OBX|3|ST|CREA||78")

	_, err = os.Stat(filepath.Join(outDir, "b.txt"))
	assert.True(t, os.IsNotExist(err), "no-op merge must not produce output")
	_, err = os.Stat(filepath.Join(outDir, "c.txt"))
	assert.True(t, os.IsNotExist(err), "unmatched name must not produce output")
}
