package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestArchiveFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	review := filepath.Join(dir, "category_check.txt")
	if err := os.WriteFile(review, []byte(`{"url":"u1"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := archiveFiles([]string{review, filepath.Join(dir, "missing.txt")})
	if err != nil {
		t.Fatalf("archiveFiles: %v", err)
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)
	hdr, err := tr.Next()
	if err != nil {
		t.Fatalf("expected one entry: %v", err)
	}
	body, _ := io.ReadAll(tr)
	if hdr.Name != "category_check.txt" || string(body) != `{"url":"u1"}`+"\n" {
		t.Fatalf("unexpected entry %s: %q", hdr.Name, body)
	}
	if _, err := tr.Next(); err != io.EOF {
		t.Fatalf("missing files must be skipped, got %v", err)
	}
}
