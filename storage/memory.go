package storage

import (
	"context"
	"sync"

	"covid-news/models"
)

// MemoryStore is an in-process Store. Every read and write copies, so callers never share
// state with the store. Conditional writes run under one mutex.
type MemoryStore struct {
	mu      sync.RWMutex
	pages   map[string]*models.Page
	reviews map[string]*models.Review
	tweets  map[string]*models.Tweet
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pages:   map[string]*models.Page{},
		reviews: map[string]*models.Review{},
		tweets:  map[string]*models.Tweet{},
	}
}

func (m *MemoryStore) InsertPage(ctx context.Context, p *models.Page) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[p.URL]; ok {
		return false, nil
	}
	m.pages[p.URL] = p.Clone()
	return true, nil
}

func (m *MemoryStore) ReplacePageIfNewer(ctx context.Context, p *models.Page) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.pages[p.URL]
	if !ok || !(existing.Orig.Timestamp < p.Orig.Timestamp) {
		return false, nil
	}
	m.pages[p.URL] = p.Clone()
	return true, nil
}

func (m *MemoryStore) GetPage(ctx context.Context, url string) (*models.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[url]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) GetPages(ctx context.Context, urls []string) ([]*models.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Page, 0, len(urls))
	for _, u := range urls {
		if p, ok := m.pages[u]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) FindPages(ctx context.Context, q PageQuery) ([]*models.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	all := make([]*models.Page, 0, len(m.pages))
	for _, p := range m.pages {
		all = append(all, p)
	}
	m.mu.RUnlock()

	// Pages are replaced, never mutated in place, so the snapshot stays consistent.
	found := q.Apply(all)
	out := make([]*models.Page, len(found))
	for i, p := range found {
		out[i] = p.Clone()
	}
	return out, nil
}

func (m *MemoryStore) CountPages(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.pages)), ctx.Err()
}

func (m *MemoryStore) SaveReview(ctx context.Context, r *models.Review) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.reviews[r.URL]; ok && cur.Version > r.Version {
		return nil
	}
	c := *r
	c.NewTopics = append([]string(nil), r.NewTopics...)
	m.reviews[r.URL] = &c
	return nil
}

func (m *MemoryStore) LatestReview(ctx context.Context, url string) (*models.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[url]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r
	c.NewTopics = append([]string(nil), r.NewTopics...)
	return &c, nil
}

func (m *MemoryStore) ApplyReview(ctx context.Context, r *models.Review) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[r.URL]
	if !ok {
		return false, ErrNotFound
	}
	if p.ReviewVersion > r.Version {
		return false, nil
	}
	updated := p.Clone()
	r.ApplyTo(updated)
	m.pages[r.URL] = updated
	return true, nil
}

func (m *MemoryStore) InsertTweets(ctx context.Context, tweets []*models.Tweet) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range tweets {
		if _, ok := m.tweets[t.ID]; ok {
			continue
		}
		c := *t
		m.tweets[t.ID] = &c
		n++
	}
	return n, nil
}

func (m *MemoryStore) GetTweets(ctx context.Context, ids []string) ([]*models.Tweet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Tweet, 0, len(ids))
	for _, id := range ids {
		if t, ok := m.tweets[id]; ok {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindTweets(ctx context.Context, q TweetQuery) ([]*models.Tweet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	all := make([]*models.Tweet, 0, len(m.tweets))
	for _, t := range m.tweets {
		c := *t
		all = append(all, &c)
	}
	m.mu.RUnlock()
	return q.Apply(all), nil
}

func (m *MemoryStore) CountTweets(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.tweets)), ctx.Err()
}

func (m *MemoryStore) Close() error { return nil }
