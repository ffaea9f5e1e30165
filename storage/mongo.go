package storage

import (
	"context"
	"errors"
	"fmt"

	"covid-news/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig names the database and collections used by MongoStore.
type MongoConfig struct {
	URI             string
	Database        string
	PageCollection  string
	TweetCollection string
}

// MongoStore implements Store on MongoDB. Pages are stored flat, one document per URL; the
// latest review per URL lives in "<pages>_reviews" keyed by URL.
type MongoStore struct {
	client  *mongo.Client
	pages   *mongo.Collection
	reviews *mongo.Collection
	tweets  *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

type reviewDoc struct {
	URL     string        `bson:"_id"`
	Version int64         `bson:"version"`
	Review  models.Review `bson:"review"`
}

// OpenMongo connects and makes sure the unique URL index exists.
func OpenMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:  client,
		pages:   db.Collection(cfg.PageCollection),
		reviews: db.Collection(cfg.PageCollection + "_reviews"),
		tweets:  db.Collection(cfg.TweetCollection),
	}
	_, err = s.pages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "orig.simple_timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "displayed_country", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create page indexes: %w", err)
	}
	_, err = s.tweets.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "country", Value: 1}, {Key: "simpleTimestamp", Value: -1}, {Key: "retweetCount", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create tweet indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) InsertPage(ctx context.Context, p *models.Page) (bool, error) {
	_, err := s.pages.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert page %s: %w", p.URL, err)
	}
	return true, nil
}

func (s *MongoStore) ReplacePageIfNewer(ctx context.Context, p *models.Page) (bool, error) {
	filter := bson.D{
		{Key: "url", Value: p.URL},
		{Key: "orig.timestamp", Value: bson.D{{Key: "$lt", Value: p.Orig.Timestamp}}},
	}
	res, err := s.pages.ReplaceOne(ctx, filter, p)
	if err != nil {
		return false, fmt.Errorf("replace page %s: %w", p.URL, err)
	}
	return res.MatchedCount == 1, nil
}

func (s *MongoStore) GetPage(ctx context.Context, url string) (*models.Page, error) {
	var p models.Page
	err := s.pages.FindOne(ctx, bson.D{{Key: "url", Value: url}}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", url, err)
	}
	return &p, nil
}

func (s *MongoStore) GetPages(ctx context.Context, urls []string) ([]*models.Page, error) {
	if len(urls) == 0 {
		return []*models.Page{}, nil
	}
	cur, err := s.pages.Find(ctx, bson.D{{Key: "url", Value: bson.D{{Key: "$in", Value: urls}}}})
	if err != nil {
		return nil, fmt.Errorf("get pages: %w", err)
	}
	out := []*models.Page{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}
	return out, nil
}

func pageFilter(q PageQuery) bson.D {
	and := bson.A{
		bson.D{{Key: "is_about_COVID-19", Value: 1}},
		bson.D{{Key: "is_hidden", Value: 0}},
	}
	if len(q.Topics) > 0 {
		or := bson.A{}
		for _, label := range q.Topics {
			or = append(or, bson.D{{Key: "topics." + label, Value: bson.D{{Key: "$exists", Value: true}}}})
		}
		and = append(and, bson.D{{Key: "$or", Value: or}})
	}
	if len(q.Countries) > 0 {
		and = append(and, bson.D{{Key: "displayed_country", Value: bson.D{{Key: "$in", Value: q.Countries}}}})
	}
	if q.Positive != nil {
		and = append(and,
			bson.D{{Key: "sentiment", Value: bson.D{{Key: "$gt", Value: q.Positive.MinSentiment}}}},
			bson.D{{Key: "is_positive", Value: bson.D{{Key: "$ne", Value: 0}}}},
			bson.D{{Key: "orig.timestamp", Value: bson.D{{Key: "$gte", Value: q.Positive.Since}}}},
		)
	}
	return bson.D{{Key: "$and", Value: and}}
}

func pageSort(q PageQuery) bson.D {
	sort := bson.D{{Key: "orig.simple_timestamp", Value: -1}}
	for _, label := range q.SortTopics {
		sort = append(sort, bson.E{Key: "topics." + label, Value: -1})
	}
	return append(sort, bson.E{Key: "orig.timestamp", Value: -1}, bson.E{Key: "url", Value: 1})
}

func (s *MongoStore) FindPages(ctx context.Context, q PageQuery) ([]*models.Page, error) {
	opts := options.Find().SetSort(pageSort(q))
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.pages.Find(ctx, pageFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("find pages: %w", err)
	}
	out := []*models.Page{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}
	return out, nil
}

func (s *MongoStore) CountPages(ctx context.Context) (int64, error) {
	n, err := s.pages.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

func (s *MongoStore) SaveReview(ctx context.Context, r *models.Review) error {
	filter := bson.D{
		{Key: "_id", Value: r.URL},
		{Key: "version", Value: bson.D{{Key: "$lte", Value: r.Version}}},
	}
	update := bson.M{"$set": bson.M{"version": r.Version, "review": *r}}
	_, err := s.reviews.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	// A duplicate key means a newer review already owns the URL.
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("save review %s: %w", r.URL, err)
	}
	return nil
}

func (s *MongoStore) LatestReview(ctx context.Context, url string) (*models.Review, error) {
	var doc reviewDoc
	err := s.reviews.FindOne(ctx, bson.D{{Key: "_id", Value: url}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest review %s: %w", url, err)
	}
	return &doc.Review, nil
}

func (s *MongoStore) ApplyReview(ctx context.Context, r *models.Review) (bool, error) {
	set := bson.D{
		{Key: "is_hidden", Value: r.IsHidden},
		{Key: "is_about_COVID-19", Value: r.IsAboutCrisis},
		{Key: "is_useful", Value: r.IsUseful},
		{Key: "is_about_false_rumor", Value: r.IsAboutFalseRumor},
		{Key: "is_checked", Value: 1},
		{Key: "topics", Value: r.TopicScores()},
		{Key: "review_version", Value: r.Version},
	}
	if r.IsPositive != nil {
		set = append(set, bson.E{Key: "is_positive", Value: *r.IsPositive})
	}
	if r.NewCountry != "" {
		set = append(set, bson.E{Key: "displayed_country", Value: r.NewCountry})
	}
	filter := bson.D{
		{Key: "url", Value: r.URL},
		{Key: "review_version", Value: bson.D{{Key: "$lte", Value: r.Version}}},
	}
	res, err := s.pages.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return false, fmt.Errorf("apply review %s: %w", r.URL, err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	n, err := s.pages.CountDocuments(ctx, bson.D{{Key: "url", Value: r.URL}})
	if err != nil {
		return false, fmt.Errorf("apply review %s: %w", r.URL, err)
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *MongoStore) InsertTweets(ctx context.Context, tweets []*models.Tweet) (int, error) {
	if len(tweets) == 0 {
		return 0, nil
	}
	writes := make([]mongo.WriteModel, len(tweets))
	for i, t := range tweets {
		writes[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: t.ID}}).
			SetUpdate(bson.M{"$setOnInsert": t}).
			SetUpsert(true)
	}
	res, err := s.tweets.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("insert tweets: %w", err)
	}
	return int(res.UpsertedCount), nil
}

func (s *MongoStore) GetTweets(ctx context.Context, ids []string) ([]*models.Tweet, error) {
	if len(ids) == 0 {
		return []*models.Tweet{}, nil
	}
	cur, err := s.tweets.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, fmt.Errorf("get tweets: %w", err)
	}
	out := []*models.Tweet{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode tweets: %w", err)
	}
	return out, nil
}

func (s *MongoStore) FindTweets(ctx context.Context, q TweetQuery) ([]*models.Tweet, error) {
	filter := bson.D{}
	if len(q.Countries) > 0 {
		filter = bson.D{{Key: "country", Value: bson.D{{Key: "$in", Value: q.Countries}}}}
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "simpleTimestamp", Value: -1},
		{Key: "retweetCount", Value: -1},
		{Key: "_id", Value: 1},
	})
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.tweets.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find tweets: %w", err)
	}
	out := []*models.Tweet{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode tweets: %w", err)
	}
	return out, nil
}

func (s *MongoStore) CountTweets(ctx context.Context) (int64, error) {
	n, err := s.tweets.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count tweets: %w", err)
	}
	return n, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
