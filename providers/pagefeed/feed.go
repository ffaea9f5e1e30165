// Package pagefeed reads the classified-page JSON-lines feed written by the classification
// pipeline, remembering how many lines were consumed in a cursor file.
package pagefeed

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"covid-news/models"
	"covid-news/providers"

	"go.uber.org/zap"
)

// Feed is a JSONL file plus the cursor file holding the number of consumed lines.
type Feed struct {
	path       string
	cursorPath string
	logger     *zap.Logger
}

var _ providers.PageProvider = (*Feed)(nil)

// New returns a feed over path whose cursor lives at cursorPath.
func New(path, cursorPath string, logger *zap.Logger) *Feed {
	return &Feed{path: path, cursorPath: cursorPath, logger: logger}
}

func (f *Feed) Name() string { return "pagefeed" }

// Offset returns the number of lines consumed so far.
func (f *Feed) Offset() (int64, error) {
	raw, err := os.ReadFile(f.cursorPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cursor %q: %w", raw, err)
	}
	return n, nil
}

// ReadPages passes every complete line after the cursor to fn. Malformed lines are
// skipped. A trailing line without newline is left for the next run. The cursor only
// moves when fn succeeded for every document, so a failed run is retried from the same
// offset.
func (f *Feed) ReadPages(ctx context.Context, fn func(*models.RawDocument) error) (providers.ReadStats, error) {
	offset, err := f.Offset()
	if err != nil {
		return providers.ReadStats{}, err
	}
	stats := providers.ReadStats{Offset: offset}

	file, err := os.Open(f.path)
	if err != nil {
		return stats, fmt.Errorf("open feed %s: %w", f.path, err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var lineIdx int64
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line, err := r.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read feed: %w", err)
		}
		idx := lineIdx
		lineIdx++
		if idx < offset {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var doc models.RawDocument
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			stats.Malformed++
			f.logger.Debug("Überspringe fehlerhafte Zeile", zap.Int64("line", idx), zap.Error(err))
			continue
		}
		stats.Read++
		if err := fn(&doc); err != nil {
			return stats, err
		}
	}

	if lineIdx < offset {
		// The feed was truncated or rotated; start over next time.
		f.logger.Warn("Feed kürzer als gespeicherter Offset, setze zurück",
			zap.Int64("offset", offset), zap.Int64("lines", lineIdx))
		lineIdx = 0
	}
	if err := f.writeCursor(lineIdx); err != nil {
		return stats, err
	}
	stats.Offset = lineIdx
	return stats, nil
}

func (f *Feed) writeCursor(n int64) error {
	if err := os.MkdirAll(filepath.Dir(f.cursorPath), 0o755); err != nil {
		return fmt.Errorf("create cursor dir: %w", err)
	}
	tmp := f.cursorPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(n, 10)), 0o644); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := os.Rename(tmp, f.cursorPath); err != nil {
		return fmt.Errorf("commit cursor: %w", err)
	}
	return nil
}
