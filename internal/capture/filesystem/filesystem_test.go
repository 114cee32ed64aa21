package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eastgenomics/hl7-epic-integration/internal/capture"
)

func TestStore(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir)
	require.NoError(t, err)

	entry := capture.Entry{
		Raw:        "MSH|^~\\&|SEND|SEND_FAC|RECV|RECV_FAC|20240101120000||ORU^R01|CTRL1",
		ReceivedAt: time.Date(2024, 1, 1, 12, 0, 0, 123456789, time.UTC),
		RemoteAddr: "10.0.0.5:51234",
		Valid:      true,
	}
	require.NoError(t, sink.Store(context.Background(), entry))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, "2024-01-01_12-00-00.123456789_"), name)
	assert.True(t, strings.HasSuffix(name, ".hl7"), name)

	content, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, entry.Raw, string(content))
}

func TestStore_IdenticalTimestampsDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir)
	require.NoError(t, err)

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Store(context.Background(), capture.Entry{
			Raw:        "MSH|^~\\&|A|B|C|D|E||F|G",
			ReceivedAt: at,
		}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir)
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sink.Store(context.Background(), capture.Entry{
				Raw:        "MSH|^~\\&|A|B|C|D|E||F|G",
				ReceivedAt: time.Now(),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, writers)
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "responses")
	_, err := New(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
