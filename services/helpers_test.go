package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"covid-news/auditlog"
	"covid-news/models"
	"covid-news/search"
	"covid-news/storage"
	"covid-news/taxonomy"
)

var fixedNow = time.Date(2021, 1, 20, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	tx      *taxonomy.Taxonomy
	store   *storage.MemoryStore
	audit   *auditlog.Log
	service *PageService
	engine  *QueryEngine
	norm    *Normalizer
	index   *fakeIndex
	cache   *countingCache
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	tx := taxonomy.MustDefault()
	store := storage.NewMemoryStore()
	audit, err := auditlog.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("auditlog.New: %v", err)
	}
	c := &countingCache{}
	index := &fakeIndex{}
	svc := NewPageService(store, audit, tx, c, logger)
	svc.now = func() time.Time { return fixedNow }
	engine := NewQueryEngine(store, index, tx, 4, logger)
	engine.now = func() time.Time { return fixedNow }
	return &testEnv{
		tx:      tx,
		store:   store,
		audit:   audit,
		service: svc,
		engine:  engine,
		norm:    NewNormalizer(tx, nil, logger),
		index:   index,
		cache:   c,
	}
}

// rawDoc builds a feed document that passes every title check.
func rawDoc(url, ts string, scores map[string]float64) *models.RawDocument {
	bert := map[string]float64{"is_useful": 0.95, "is_about_false_rumor": 0.1}
	for k, v := range scores {
		bert[k] = v
	}
	return &models.RawDocument{
		URL:          url,
		Country:      "us",
		Orig:         models.RawStamp{Title: "Masks " + url, Timestamp: ts},
		JaTranslated: models.RawStamp{Title: "マスク " + url, Timestamp: ts},
		EnTranslated: models.RawStamp{Title: "Masks " + url, Timestamp: ts},
		Classes:      map[string]float64{"is_about_COVID-19": 1, "is_clear": 1},
		ClassesBert:  bert,
		Snippets:     map[string][]string{"infection": {"感染者が増加"}},
		SnippetsEn:   map[string][]string{"infection": {"cases rise"}},
		Domain:       "example.com",
		DomainLabel:  "例",
	}
}

func (e *testEnv) ingest(t *testing.T, doc *models.RawDocument) Status {
	t.Helper()
	p, err := e.norm.Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize(%s): %v", doc.URL, err)
	}
	status, err := e.service.UpsertPage(context.Background(), p)
	if err != nil {
		t.Fatalf("UpsertPage(%s): %v", doc.URL, err)
	}
	return status
}

type fakeIndex struct {
	mu      sync.Mutex
	hits    []search.Hit
	err     error
	queries []search.Query
}

func (f *fakeIndex) SearchPages(ctx context.Context, q search.Query) ([]search.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.hits, f.err
}

func (f *fakeIndex) SearchTweets(ctx context.Context, q search.Query) ([]search.Hit, error) {
	return f.SearchPages(ctx, q)
}

type countingCache struct {
	mu     sync.Mutex
	purges int
}

func (c *countingCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (c *countingCache) Set(context.Context, string, []byte) error         { return nil }
func (c *countingCache) Purge(context.Context) error {
	c.mu.Lock()
	c.purges++
	c.mu.Unlock()
	return nil
}

type checkerFunc func(lang, title string) bool

func (f checkerFunc) Check(lang, title string) bool { return f(lang, title) }
