package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testCachePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cache.zip")
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	cache, err := Open(testCachePath(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("fresh cache should be empty, got %d entries", cache.Len())
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestWriteReplacesNotDuplicates(t *testing.T) {
	cache, err := Open(testCachePath(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := cache.Write("com/example/foo/1.0/foo-1.0.jar", []byte("v1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cache.Write("com/example/foo/1.0/foo-1.0.jar", []byte("v2")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if cache.Len() != 1 {
		t.Fatalf("expected exactly one entry, got %d", cache.Len())
	}
	data, err := cache.Read("com/example/foo/1.0/foo-1.0.jar")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "v2" {
		t.Fatalf("expected latest content, got %q", data)
	}
	if staged := cache.Staged(); len(staged) != 1 {
		t.Fatalf("staging list must deduplicate, got %v", staged)
	}
}

func TestLeadingSlashNormalized(t *testing.T) {
	cache, err := Open(testCachePath(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := cache.Write("/a/b.txt", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := cache.Read("a/b.txt"); err != nil {
		t.Fatalf("leading slash must be equivalent to none: %v", err)
	}
	if !cache.Exists("/a/b.txt") {
		t.Fatalf("exists must honor normalization")
	}
}

func TestFlushAndReopenRoundTrip(t *testing.T) {
	path := testCachePath(t)
	cache, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := cache.Write("dir/one.txt", []byte("one")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cache.Write("dir/two.txt", []byte("two")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	data, err := reopened.Read("dir/one.txt")
	if err != nil {
		t.Fatalf("read after reopen: %v", err)
	}
	if string(data) != "one" {
		t.Fatalf("content lost across flush: %q", data)
	}
	if got := reopened.List("dir"); len(got) != 2 {
		t.Fatalf("expected 2 listed entries, got %v", got)
	}
	// 重新打开的会话没有暂存记录。
	if len(reopened.Staged()) != 0 {
		t.Fatalf("staging list must reset per session")
	}
}

func TestCorruptFileIsFatal(t *testing.T) {
	path := testCachePath(t)
	if err := os.WriteFile(path, []byte("this is not a zip"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatalf("corrupt cache must be a fatal error, not an empty cache")
	}
}

func TestCloseIdempotentAndZeroWriteSafe(t *testing.T) {
	path := testCachePath(t)
	cache, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close with zero writes: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	// 零写入不应产生缓存文件。
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("zero-write close must not create a file: %v", err)
	}
}

func TestReadAfterCloseRejected(t *testing.T) {
	cache, err := Open(testCachePath(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = cache.Close()
	if _, err := cache.Read("anything"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := cache.Write("anything", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on write, got %v", err)
	}
}
