package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"covid-news/models"

	"go.mongodb.org/mongo-driver/bson"
)

func page(url, ts string, topics map[string]float64) *models.Page {
	return &models.Page{
		URL:              url,
		Country:          "us",
		DisplayedCountry: "us",
		Orig:             models.Origin{Title: "title " + url, Timestamp: ts, SimpleTimestamp: models.SimpleDate(ts)},
		Topics:           topics,
		IsAboutCrisis:    1,
	}
}

func TestMemoryInsertAndReplace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.InsertPage(ctx, page("u1", "2021-01-01T00:00:00", nil))
	if err != nil || !ok {
		t.Fatalf("first insert: ok=%v err=%v", ok, err)
	}
	ok, err = s.InsertPage(ctx, page("u1", "2021-01-05T00:00:00", nil))
	if err != nil || ok {
		t.Fatalf("second insert must not happen: ok=%v err=%v", ok, err)
	}

	ok, _ = s.ReplacePageIfNewer(ctx, page("u1", "2021-01-01T00:00:00", nil))
	if ok {
		t.Fatal("equal timestamp must not replace")
	}
	ok, _ = s.ReplacePageIfNewer(ctx, page("u1", "2020-12-31T00:00:00", nil))
	if ok {
		t.Fatal("older timestamp must not replace")
	}
	ok, _ = s.ReplacePageIfNewer(ctx, page("u1", "2021-01-02T00:00:00", nil))
	if !ok {
		t.Fatal("newer timestamp must replace")
	}
	got, err := s.GetPage(ctx, "u1")
	if err != nil || got.Orig.Timestamp != "2021-01-02T00:00:00" {
		t.Fatalf("unexpected page %+v err=%v", got, err)
	}
	if ok, _ := s.ReplacePageIfNewer(ctx, page("missing", "2030-01-01T00:00:00", nil)); ok {
		t.Fatal("replace must not create pages")
	}
	if _, err := s.GetPage(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryConcurrentReplaceKeepsNewest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	s.InsertPage(ctx, page("u1", "2021-01-01T00:00:00", nil))

	var wg sync.WaitGroup
	for day := 2; day <= 28; day++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			s.ReplacePageIfNewer(ctx, page("u1", fmt.Sprintf("2021-01-%02dT00:00:00", day), nil))
		}(day)
	}
	wg.Wait()

	got, _ := s.GetPage(ctx, "u1")
	if got.Orig.Timestamp != "2021-01-28T00:00:00" {
		t.Fatalf("lost update: %s", got.Orig.Timestamp)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	p := page("u1", "2021-01-01T00:00:00", map[string]float64{"infection": 0.9})
	s.InsertPage(ctx, p)
	p.Topics["education"] = 1

	got, _ := s.GetPage(ctx, "u1")
	got.Topics["economy"] = 1
	again, _ := s.GetPage(ctx, "u1")
	if len(again.Topics) != 1 {
		t.Fatalf("store state leaked: %v", again.Topics)
	}
}

func TestMemoryReviews(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	r1 := &models.Review{URL: "u1", Version: 2, NewTopics: []string{"education"}, IsAboutCrisis: 1}
	r0 := &models.Review{URL: "u1", Version: 1, NewTopics: []string{"economy"}}
	if err := s.SaveReview(ctx, r1); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveReview(ctx, r0); err != nil {
		t.Fatal(err)
	}
	latest, err := s.LatestReview(ctx, "u1")
	if err != nil || latest.Version != 2 {
		t.Fatalf("older review replaced newer: %+v err=%v", latest, err)
	}

	if _, err := s.ApplyReview(ctx, r1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown page, got %v", err)
	}

	s.InsertPage(ctx, page("u1", "2021-01-01T00:00:00", map[string]float64{"infection": 0.9}))
	applied, err := s.ApplyReview(ctx, r1)
	if err != nil || !applied {
		t.Fatalf("apply: %v %v", applied, err)
	}
	applied, _ = s.ApplyReview(ctx, r0)
	if applied {
		t.Fatal("stale review must not be applied")
	}
	got, _ := s.GetPage(ctx, "u1")
	if got.IsChecked != 1 || got.Topics["education"] != 1 || got.ReviewVersion != 2 {
		t.Fatalf("review not reflected: %+v", got)
	}
}

func TestMemoryTweetsFirstWriteWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	batch := []*models.Tweet{
		{ID: "1", Country: "jp", SimpleTimestamp: "2021-01-01", RetweetCount: 5, ContentOrig: "first"},
		{ID: "2", Country: "jp", SimpleTimestamp: "2021-01-02", RetweetCount: 1},
	}
	n, err := s.InsertTweets(ctx, batch)
	if err != nil || n != 2 {
		t.Fatalf("insert: n=%d err=%v", n, err)
	}
	overlap := []*models.Tweet{
		{ID: "1", Country: "jp", ContentOrig: "second"},
		{ID: "3", Country: "us", SimpleTimestamp: "2021-01-02", RetweetCount: 9},
	}
	n, _ = s.InsertTweets(ctx, overlap)
	if n != 1 {
		t.Fatalf("expected 1 new tweet, got %d", n)
	}
	got, _ := s.GetTweets(ctx, []string{"1"})
	if got[0].ContentOrig != "first" {
		t.Fatal("existing tweet was modified")
	}

	found, _ := s.FindTweets(ctx, TweetQuery{Countries: []string{"jp", "us"}, Limit: 10})
	ids := []string{}
	for _, tw := range found {
		ids = append(ids, tw.ID)
	}
	if fmt.Sprint(ids) != "[3 2 1]" {
		t.Fatalf("unexpected tweet order %v", ids)
	}
	if c, _ := s.CountTweets(ctx); c != 3 {
		t.Fatalf("unexpected count %d", c)
	}
}

func TestPageQueryVisibility(t *testing.T) {
	t.Parallel()

	var q PageQuery
	visible := page("a", "2021-01-01T00:00:00", nil)
	hidden := page("b", "2021-01-01T00:00:00", nil)
	hidden.IsHidden = 1
	offTopic := page("c", "2021-01-01T00:00:00", nil)
	offTopic.IsAboutCrisis = 0
	domestic := page("d", "2021-01-01T00:00:00", nil)
	domestic.Country = "jp"
	domestic.IsAboutCrisis = 0

	cases := []struct {
		p    *models.Page
		want bool
	}{
		{visible, true},
		{hidden, false},
		{offTopic, false},
		{domestic, false},
	}
	for _, tc := range cases {
		if got := q.Match(tc.p); got != tc.want {
			t.Fatalf("Match(%s) = %v, want %v", tc.p.URL, got, tc.want)
		}
	}
}

func TestPageQuerySortAndPaginate(t *testing.T) {
	t.Parallel()

	pages := []*models.Page{
		page("old", "2021-01-01T09:00:00", map[string]float64{"prevention": 0.9}),
		page("weak", "2021-01-02T08:00:00", map[string]float64{"prevention": 0.6}),
		page("strong", "2021-01-02T07:00:00", map[string]float64{"prevention": 0.95}),
		page("other", "2021-01-02T10:00:00", map[string]float64{"lockdown": 0.9}),
	}
	q := PageQuery{
		Topics:     []string{"prevention", "lockdown"},
		SortTopics: []string{"prevention", "lockdown"},
	}
	got := q.Apply(pages)
	order := []string{}
	for _, p := range got {
		order = append(order, p.URL)
	}
	if fmt.Sprint(order) != "[strong weak other old]" {
		t.Fatalf("unexpected order %v", order)
	}

	q.Offset, q.Limit = 2, 10
	if n := len(q.Apply(pages)); n != 2 {
		t.Fatalf("expected 2 pages after offset 2, got %d", n)
	}
	q.Offset = 10
	if got := q.Apply(pages); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil page, got %v", got)
	}
}

func TestPageQueryPositive(t *testing.T) {
	t.Parallel()

	q := PageQuery{Positive: &PositiveFilter{MinSentiment: 0.9, Since: "2021-01-10"}}
	good := page("good", "2021-01-15T00:00:00", nil)
	good.Sentiment = models.FloatPtr(0.95)
	unscored := page("unscored", "2021-01-15T00:00:00", nil)
	rejected := page("rejected", "2021-01-15T00:00:00", nil)
	rejected.Sentiment = models.FloatPtr(0.99)
	rejected.IsPositive = models.IntPtr(0)
	stale := page("stale", "2021-01-01T00:00:00", nil)
	stale.Sentiment = models.FloatPtr(0.99)

	got := q.Apply([]*models.Page{good, unscored, rejected, stale})
	if len(got) != 1 || got[0].URL != "good" {
		t.Fatalf("unexpected positive selection %v", got)
	}
}

func TestMongoFilterShape(t *testing.T) {
	t.Parallel()

	f := pageFilter(PageQuery{Topics: []string{"prevention", "lockdown"}, Countries: []string{"us"}})
	and, ok := f[0].Value.(bson.A)
	if !ok || f[0].Key != "$and" {
		t.Fatalf("unexpected filter %v", f)
	}
	if len(and) != 4 {
		t.Fatalf("expected 4 clauses, got %d", len(and))
	}
	s := pageSort(PageQuery{SortTopics: []string{"prevention"}})
	if s[0].Key != "orig.simple_timestamp" || s[1].Key != "topics.prevention" {
		t.Fatalf("unexpected sort %v", s)
	}
}
