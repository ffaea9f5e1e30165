package auditlog

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"covid-news/models"

	"go.uber.org/zap/zaptest"
)

func newLog(t *testing.T) *Log {
	t.Helper()
	l, err := New(t.TempDir(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestReviewsReplayInOrder(t *testing.T) {
	t.Parallel()
	l := newLog(t)

	for i, url := range []string{"u1", "u2", "u1"} {
		if err := l.AppendReview(&models.Review{URL: url, Version: int64(i + 1), NewTopics: []string{"education"}}); err != nil {
			t.Fatalf("AppendReview: %v", err)
		}
	}

	var versions []int64
	err := l.Reviews(func(r *models.Review) error {
		versions = append(versions, r.Version)
		return nil
	})
	if err != nil {
		t.Fatalf("Reviews: %v", err)
	}
	if len(versions) != 3 || versions[0] != 1 || versions[2] != 3 {
		t.Fatalf("unexpected replay order %v", versions)
	}
}

func TestReviewsSkipsMalformedLines(t *testing.T) {
	t.Parallel()
	l := newLog(t)

	raw := `{"url":"u1","new_topics":["infection"],"is_about_COVID-19":1,"new_country":"jp"}

not json
{"url":"","version":9}
{"url":"u2","version":2}
`
	if err := os.WriteFile(l.Path(ReviewLogFile), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	var urls []string
	if err := l.Reviews(func(r *models.Review) error {
		urls = append(urls, r.URL)
		return nil
	}); err != nil {
		t.Fatalf("Reviews: %v", err)
	}
	if strings.Join(urls, ",") != "u1,u2" {
		t.Fatalf("unexpected urls %v", urls)
	}
}

func TestReviewsAcceptZonelessTimes(t *testing.T) {
	t.Parallel()
	l := newLog(t)

	raw := `{"url":"u1","is_hidden":0,"is_about_COVID-19":1,"is_useful":1,"is_about_false_rumor":0,"new_country":"jp","new_topics":["education"],"notes":"","time":"2021-03-04T12:34:56.123456"}
{"url":"u2","is_about_COVID-19":1,"new_country":"us","new_topics":[],"time":"2021-03-05T08:00:00"}
`
	if err := os.WriteFile(l.Path(ReviewLogFile), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	var got []*models.Review
	if err := l.Reviews(func(r *models.Review) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("Reviews: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both lines, got %d", len(got))
	}
	want := time.Date(2021, 3, 4, 12, 34, 56, 123456000, time.UTC)
	if !got[0].Time.Equal(want) || got[0].NewCountry != "jp" || got[0].NewTopics[0] != "education" {
		t.Fatalf("unexpected first review %+v", got[0])
	}
	if got[0].Version != want.UnixNano() || got[1].Version <= got[0].Version {
		t.Fatalf("versions must follow the review time: %d, %d", got[0].Version, got[1].Version)
	}

	h, err := l.FindReview("u1")
	if err != nil || h.IsChecked != 1 {
		t.Fatalf("history not found: %+v err=%v", h, err)
	}
}

func TestReviewsMissingFile(t *testing.T) {
	t.Parallel()
	l := newLog(t)

	called := false
	if err := l.Reviews(func(*models.Review) error { called = true; return nil }); err != nil {
		t.Fatalf("Reviews on empty dir: %v", err)
	}
	if called {
		t.Fatal("no reviews expected")
	}
}

func TestFindReview(t *testing.T) {
	t.Parallel()
	l := newLog(t)

	l.AppendReview(&models.Review{URL: "u1", Notes: "first"})
	l.AppendReview(&models.Review{URL: "u2", Notes: "other"})
	l.AppendReview(&models.Review{URL: "u1", Notes: "second"})

	h, err := l.FindReview("u1")
	if err != nil {
		t.Fatalf("FindReview: %v", err)
	}
	if h.IsChecked != 1 || h.Notes != "second" {
		t.Fatalf("unexpected history %+v", h)
	}

	none, _ := l.FindReview("u3")
	b, _ := json.Marshal(none)
	var decoded map[string]any
	json.Unmarshal(b, &decoded)
	if decoded["url"] != "u3" || decoded["is_checked"].(float64) != 0 {
		t.Fatalf("unexpected empty history %s", b)
	}
}

func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	t.Parallel()
	l := newLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.AppendReview(&models.Review{URL: "u", Version: int64(i), Notes: strings.Repeat("x", 2000)})
		}(i)
	}
	wg.Wait()

	n := 0
	if err := l.Reviews(func(*models.Review) error { n++; return nil }); err != nil {
		t.Fatal(err)
	}
	if n != 50 {
		t.Fatalf("expected 50 intact lines, got %d", n)
	}
}

func TestFeedbackAndCounts(t *testing.T) {
	t.Parallel()
	l := newLog(t)
	at := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

	if err := l.AppendFeedback("line one\nline two", at); err != nil {
		t.Fatal(err)
	}
	if err := l.AppendPageCount(42, at); err != nil {
		t.Fatal(err)
	}
	fb, _ := os.ReadFile(l.Path(FeedbackLogFile))
	if string(fb) != "2021-03-04 05:06:07.000000\tline one line two\n" {
		t.Fatalf("unexpected feedback log %q", fb)
	}
	counts, _ := os.ReadFile(l.Path(CountLogFile))
	if !strings.Contains(string(counts), "The number of pages is 42.") {
		t.Fatalf("unexpected count log %q", counts)
	}
	if len(l.Files()) != 2 {
		t.Fatalf("expected two files, got %v", l.Files())
	}
}
