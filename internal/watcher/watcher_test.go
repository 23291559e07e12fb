package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// collector records callback invocations and signals each one.
type collector struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func newCollector() *collector {
	return &collector{ch: make(chan string, 100)}
}

func (c *collector) callback(path string) error {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
	c.ch <- path
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

// waitFor reads one processed path or fails the test.
func (c *collector) waitFor(t *testing.T) string {
	t.Helper()
	select {
	case path := <-c.ch:
		return path
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the processing callback")
		return ""
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("image-bytes"), 0o644))
}

func TestNewImageIsProcessedExactlyOnce(t *testing.T) {
	root := t.TempDir()
	c := newCollector()

	w, err := New(root, c.callback, WithSettleDelay(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	target := filepath.Join(root, "bird.jpg")
	writeFile(t, target)

	assert.Equal(t, target, c.waitFor(t))

	// Give duplicates a chance to show up before asserting exactly once.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, c.count(), "the callback must run exactly once per new file")
}

func TestNonMatchingFilesAreIgnored(t *testing.T) {
	root := t.TempDir()
	c := newCollector()

	w, err := New(root, c.callback, WithSettleDelay(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, filepath.Join(root, "notes.txt"))
	writeFile(t, filepath.Join(root, "photo.JPG"))

	assert.Equal(t, filepath.Join(root, "photo.JPG"), c.waitFor(t),
		"extension matching must be case-insensitive")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, c.count())
}

func TestFilesInNewSubdirectoriesAreSeen(t *testing.T) {
	root := t.TempDir()
	c := newCollector()

	w, err := New(root, c.callback, WithSettleDelay(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	nested := filepath.Join(root, "2026-08-30", "bird.png")
	writeFile(t, nested)

	assert.Equal(t, nested, c.waitFor(t))

	// The new-directory scan and the file's own create event race for
	// the same path; the duplicate guard collapses them.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, c.count(), "a file in a new directory must be processed exactly once")
}

func TestExistingBacklogThrottledByQueue(t *testing.T) {
	root := t.TempDir()
	for i := range 20 {
		writeFile(t, filepath.Join(root, fmt.Sprintf("old_%02d.jpg", i)))
	}

	release := make(chan struct{})
	started := make(chan string, 100)
	callback := func(path string) error {
		started <- path
		<-release
		return nil
	}

	w, err := New(root, callback,
		WithSettleDelay(10*time.Millisecond),
		WithQueueSize(1),
		WithProcessExisting(true),
		WithWorkers(1))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the first backlog file")
	}

	// With the worker blocked and the queue full, the backlog feeder
	// must be parked on the queue, not running ahead of it.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, started, "at most queue capacity plus one worker may be in flight")

	close(release)
	for i := 1; i < 20; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for backlog file %d of 20", i+1)
		}
	}
}

func TestProcessExisting(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "old.jpeg")
	writeFile(t, existing)

	c := newCollector()
	w, err := New(root, c.callback,
		WithSettleDelay(10*time.Millisecond),
		WithProcessExisting(true))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Equal(t, existing, c.waitFor(t))
}

func TestCallbackFailureDoesNotStopWorker(t *testing.T) {
	root := t.TempDir()
	c := newCollector()
	failFirst := true

	callback := func(path string) error {
		if failFirst {
			failFirst = false
			return os.ErrInvalid
		}
		return c.callback(path)
	}

	w, err := New(root, callback, WithSettleDelay(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, filepath.Join(root, "bad.jpg"))

	// The failed item is dropped without retry; the worker keeps going.
	time.Sleep(100 * time.Millisecond)
	good := filepath.Join(root, "good.jpg")
	writeFile(t, good)
	assert.Equal(t, good, c.waitFor(t))
}

func TestSynchronousModeWithoutQueue(t *testing.T) {
	root := t.TempDir()
	c := newCollector()

	w, err := New(root, c.callback,
		WithSettleDelay(10*time.Millisecond),
		WithQueueSize(0))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	target := filepath.Join(root, "sync.jpg")
	writeFile(t, target)
	assert.Equal(t, target, c.waitFor(t))
}

func TestStopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	c := newCollector()

	w, err := New(root, c.callback)
	require.NoError(t, err)
	require.NoError(t, w.Start())

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("double Stop must not hang")
	}
}

func TestStopBeforeStart(t *testing.T) {
	w, err := New(t.TempDir(), func(string) error { return nil })
	require.NoError(t, err)
	w.Stop() // must not panic or hang
}

func TestNormalizePatterns(t *testing.T) {
	assert.Equal(t, defaultPatterns, normalizePatterns(nil))
	assert.Equal(t, defaultPatterns, normalizePatterns([]string{"", " "}))
	assert.Equal(t, []string{"jpg", "png"}, normalizePatterns([]string{".JPG", "png"}))
}
