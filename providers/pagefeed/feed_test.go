package pagefeed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"covid-news/models"

	"go.uber.org/zap/zaptest"
)

func writeFeed(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "pages.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func collect(t *testing.T, f *Feed) []string {
	t.Helper()
	var urls []string
	_, err := f.ReadPages(context.Background(), func(d *models.RawDocument) error {
		urls = append(urls, d.URL)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadPages: %v", err)
	}
	return urls
}

func TestReadPagesAdvancesCursor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFeed(t, dir, "{\"url\":\"u1\"}\nnot json\n\n{\"url\":\"u2\"}\n")
	f := New(path, filepath.Join(dir, "log", "offset.txt"), zaptest.NewLogger(t))

	if urls := collect(t, f); len(urls) != 2 || urls[1] != "u2" {
		t.Fatalf("unexpected first pass %v", urls)
	}
	if off, _ := f.Offset(); off != 4 {
		t.Fatalf("expected offset 4, got %d", off)
	}
	if urls := collect(t, f); len(urls) != 0 {
		t.Fatalf("second pass must be empty, got %v", urls)
	}

	fh, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	fh.WriteString("{\"url\":\"u3\"}\n{\"url\":\"partial\"")
	fh.Close()
	if urls := collect(t, f); len(urls) != 1 || urls[0] != "u3" {
		t.Fatalf("expected only the complete new line, got %v", urls)
	}
}

func TestReadPagesKeepsCursorOnFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFeed(t, dir, "{\"url\":\"u1\"}\n{\"url\":\"u2\"}\n")
	f := New(path, filepath.Join(dir, "offset.txt"), zaptest.NewLogger(t))

	boom := errors.New("store unavailable")
	_, err := f.ReadPages(context.Background(), func(d *models.RawDocument) error {
		if d.URL == "u2" {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if off, _ := f.Offset(); off != 0 {
		t.Fatalf("cursor must not move after a failure, got %d", off)
	}
	if urls := collect(t, f); len(urls) != 2 {
		t.Fatalf("retry must see both documents, got %v", urls)
	}
}

func TestReadPagesResetsAfterTruncation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFeed(t, dir, "{\"url\":\"u1\"}\n")
	cursor := filepath.Join(dir, "offset.txt")
	os.WriteFile(cursor, []byte("10"), 0o644)
	f := New(path, cursor, zaptest.NewLogger(t))

	collect(t, f)
	if off, _ := f.Offset(); off != 0 {
		t.Fatalf("expected reset cursor, got %d", off)
	}
	if urls := collect(t, f); len(urls) != 1 {
		t.Fatalf("expected rotated feed to be read again, got %v", urls)
	}
}
