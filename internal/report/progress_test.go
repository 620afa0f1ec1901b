package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsniffer/internal/scanning"
)

func TestProgressBarDrawsAndFinishes(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf)

	bar.Update(scanning.Progress{Scanned: 1, Open: 1, Total: 4})
	assert.Contains(t, buf.String(), "1/4 scanned, 1 open")
	assert.True(t, strings.HasPrefix(buf.String(), "\r"))

	bar.Update(scanning.Progress{Scanned: 4, Open: 1, Closed: 3, Total: 4})
	assert.Contains(t, buf.String(), "4/4 scanned, 1 open")
	assert.Contains(t, buf.String(), "100%")

	bar.Finish()
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	written := buf.Len()
	bar.Update(scanning.Progress{Scanned: 4, Total: 4})
	bar.Finish()
	assert.Equal(t, written, buf.Len(), "nothing is drawn after Finish")
}

func TestProgressBarThrottlesRedraws(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf)

	for i := 1; i < 50; i++ {
		bar.Update(scanning.Progress{Scanned: i, Total: 100})
	}

	assert.Equal(t, 1, strings.Count(buf.String(), "\r"), "redraws within the interval are skipped")
}

func TestProgressBarFinishWithoutDraw(t *testing.T) {
	var buf bytes.Buffer
	NewProgressBar(&buf).Finish()
	assert.Empty(t, buf.String())
}

func TestProgressBarConcurrentUpdates(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				bar.Update(scanning.Progress{Scanned: i, Total: 1000})
			}
		}()
	}
	wg.Wait()
	bar.Finish()

	assert.NotEmpty(t, buf.String())
}

func TestShowProgress(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, IsTerminal(f))
	assert.False(t, ShowProgress(true, false, f))
	assert.False(t, ShowProgress(false, false, f))
	assert.False(t, ShowProgress(true, true, f))
}
