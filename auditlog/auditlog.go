// Package auditlog keeps the append-only operational logs: one JSON object per line for
// human reviews, tab-separated feedback lines and page/tweet count lines.
package auditlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"covid-news/models"

	"go.uber.org/zap"
)

// Dateinamen im Log-Verzeichnis.
const (
	ReviewLogFile   = "category_check.txt"
	FeedbackLogFile = "feedback.txt"
	CountLogFile    = "update.txt"
)

// maxLineSize bounds a single review line when scanning.
const maxLineSize = 1 << 20

// Log writes to and replays from the files in one directory. Appends are serialised so
// concurrent writers never interleave lines.
type Log struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates the directory if needed.
func New(dir string, logger *zap.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	return &Log{dir: dir, logger: logger}, nil
}

// Path returns the full path of one of the log files.
func (l *Log) Path(name string) string { return filepath.Join(l.dir, name) }

// Files lists the log files that exist, for archiving.
func (l *Log) Files() []string {
	var out []string
	for _, name := range []string{ReviewLogFile, FeedbackLogFile, CountLogFile} {
		if _, err := os.Stat(l.Path(name)); err == nil {
			out = append(out, l.Path(name))
		}
	}
	return out
}

// AppendReview writes r as one JSON line.
func (l *Log) AppendReview(r *models.Review) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode review: %w", err)
	}
	return l.appendLines(ReviewLogFile, string(line))
}

// AppendFeedback writes one "<time>\t<content>" line. Newlines in the content are flattened.
func (l *Log) AppendFeedback(content string, at time.Time) error {
	content = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(content)
	return l.appendLines(FeedbackLogFile, fmt.Sprintf("%s\t%s", at.Format("2006-01-02 15:04:05.000000"), content))
}

// AppendPageCount records the number of stored pages after an ingestion run.
func (l *Log) AppendPageCount(n int64, at time.Time) error {
	return l.appendLines(CountLogFile, fmt.Sprintf("%s:The number of pages is %d.", at.Format(time.ANSIC), n))
}

// AppendTweetCount records the number of stored tweets after an ingestion run.
func (l *Log) AppendTweetCount(n int64, at time.Time) error {
	return l.appendLines(CountLogFile, fmt.Sprintf("%s:The number of tweets is %d.", at.Format(time.ANSIC), n))
}

func (l *Log) appendLines(name string, lines ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.Path(name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

// Reviews calls fn for every review line in file order. Blank lines are skipped; malformed
// lines are logged and skipped. An error from fn stops the iteration and is returned.
func (l *Log) Reviews(fn func(*models.Review) error) error {
	f, err := os.Open(l.Path(ReviewLogFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open review log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r models.Review
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			l.logger.Warn("Überspringe fehlerhafte Zeile im Review-Log", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		if r.URL == "" {
			continue
		}
		// Zeilen ohne Version stammen aus der Zeit vor der Versionierung.
		if r.Version == 0 && !r.Time.IsZero() {
			r.Version = r.Time.UnixNano()
		}
		if err := fn(&r); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan review log: %w", err)
	}
	return nil
}

// History is the answer to "what did a reviewer last decide for this URL".
type History struct {
	*models.Review
	IsChecked int `json:"is_checked"`
}

// FindReview returns the most recent review line for url. IsChecked is 0 and Review has only
// the URL when no review exists.
func (l *Log) FindReview(url string) (History, error) {
	var latest *models.Review
	err := l.Reviews(func(r *models.Review) error {
		if r.URL == url {
			latest = r
		}
		return nil
	})
	if err != nil {
		return History{}, err
	}
	if latest == nil {
		return History{Review: &models.Review{URL: url}}, nil
	}
	return History{Review: latest, IsChecked: 1}, nil
}
