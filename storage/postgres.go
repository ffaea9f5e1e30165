package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"covid-news/models"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// pageRow ist die relationale Abbildung einer Page. Verschachtelte Maps liegen als jsonb vor.
type pageRow struct {
	URL              string `gorm:"column:url;primaryKey"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Country          string `gorm:"index"`
	DisplayedCountry string `gorm:"index"`
	OriginTitle      string
	OriginTimestamp  string `gorm:"index"`
	SimpleTimestamp  string `gorm:"index"`

	Translations datatypes.JSONType[map[string]models.Translation] `gorm:"type:jsonb"`
	Topics       datatypes.JSONType[map[string]float64]            `gorm:"type:jsonb"`
	Snippets     datatypes.JSONType[map[string]map[string]string]  `gorm:"type:jsonb"`
	DomainLabels datatypes.JSONType[map[string]string]             `gorm:"type:jsonb"`

	IsAboutCrisis     int `gorm:"column:is_about_crisis;index"`
	IsUseful          int
	IsClear           int
	IsAboutFalseRumor int
	IsHidden          int `gorm:"index"`
	IsChecked         int
	IsPositive        *int
	Sentiment         *float64
	Domain            string
	ReviewVersion     int64
}

func (pageRow) TableName() string { return "pages" }

func toPageRow(p *models.Page) pageRow {
	return pageRow{
		URL:               p.URL,
		Country:           p.Country,
		DisplayedCountry:  p.DisplayedCountry,
		OriginTitle:       p.Orig.Title,
		OriginTimestamp:   p.Orig.Timestamp,
		SimpleTimestamp:   p.Orig.SimpleTimestamp,
		Translations:      datatypes.NewJSONType(p.Translations),
		Topics:            datatypes.NewJSONType(p.Topics),
		Snippets:          datatypes.NewJSONType(p.Snippets),
		DomainLabels:      datatypes.NewJSONType(p.DomainLabels),
		IsAboutCrisis:     p.IsAboutCrisis,
		IsUseful:          p.IsUseful,
		IsClear:           p.IsClear,
		IsAboutFalseRumor: p.IsAboutFalseRumor,
		IsHidden:          p.IsHidden,
		IsChecked:         p.IsChecked,
		IsPositive:        p.IsPositive,
		Sentiment:         p.Sentiment,
		Domain:            p.Domain,
		ReviewVersion:     p.ReviewVersion,
	}
}

func (r *pageRow) toPage() *models.Page {
	return &models.Page{
		URL:              r.URL,
		Country:          r.Country,
		DisplayedCountry: r.DisplayedCountry,
		Orig: models.Origin{
			Title:           r.OriginTitle,
			Timestamp:       r.OriginTimestamp,
			SimpleTimestamp: r.SimpleTimestamp,
		},
		Translations:      r.Translations.Data(),
		Topics:            r.Topics.Data(),
		Snippets:          r.Snippets.Data(),
		DomainLabels:      r.DomainLabels.Data(),
		IsAboutCrisis:     r.IsAboutCrisis,
		IsUseful:          r.IsUseful,
		IsClear:           r.IsClear,
		IsAboutFalseRumor: r.IsAboutFalseRumor,
		IsHidden:          r.IsHidden,
		IsChecked:         r.IsChecked,
		IsPositive:        r.IsPositive,
		Sentiment:         r.Sentiment,
		Domain:            r.Domain,
		ReviewVersion:     r.ReviewVersion,
	}
}

// reviewRow holds the latest review per URL.
type reviewRow struct {
	URL       string `gorm:"column:url;primaryKey"`
	ID        string
	Version   int64
	Payload   datatypes.JSONType[models.Review] `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (reviewRow) TableName() string { return "reviews" }

type tweetRow struct {
	ID              string `gorm:"column:id;primaryKey"`
	CreatedAt       time.Time
	Name            string
	Verified        bool
	Username        string
	Avatar          string
	Timestamp       string
	SimpleTimestamp string `gorm:"index"`
	ContentOrig     string `gorm:"type:text"`
	ContentJaTrans  string `gorm:"type:text"`
	ContentEnTrans  string `gorm:"type:text"`
	RetweetCount    int
	Country         string `gorm:"index"`
	Lang            string
}

func (tweetRow) TableName() string { return "tweets" }

func toTweetRow(t *models.Tweet) tweetRow {
	return tweetRow{
		ID: t.ID, Name: t.Name, Verified: t.Verified, Username: t.Username, Avatar: t.Avatar,
		Timestamp: t.Timestamp, SimpleTimestamp: t.SimpleTimestamp, ContentOrig: t.ContentOrig,
		ContentJaTrans: t.ContentJaTrans, ContentEnTrans: t.ContentEnTrans,
		RetweetCount: t.RetweetCount, Country: t.Country, Lang: t.Lang,
	}
}

func (r *tweetRow) toTweet() *models.Tweet {
	return &models.Tweet{
		ID: r.ID, Name: r.Name, Verified: r.Verified, Username: r.Username, Avatar: r.Avatar,
		Timestamp: r.Timestamp, SimpleTimestamp: r.SimpleTimestamp, ContentOrig: r.ContentOrig,
		ContentJaTrans: r.ContentJaTrans, ContentEnTrans: r.ContentEnTrans,
		RetweetCount: r.RetweetCount, Country: r.Country, Lang: r.Lang,
	}
}

// tweetBatchSize matches the batch size of the tweet dump loader.
const tweetBatchSize = 1000

// PostgresStore implements Store with gorm on PostgreSQL.
type PostgresStore struct {
	db *gorm.DB
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres verbindet sich mit der Datenbank und migriert das Schema.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresStore(db)
}

// NewPostgresStore wraps an open connection and runs the auto-migration.
func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&pageRow{}, &reviewRow{}, &tweetRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) InsertPage(ctx context.Context, p *models.Page) (bool, error) {
	row := toPageRow(p)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("insert page %s: %w", p.URL, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *PostgresStore) ReplacePageIfNewer(ctx context.Context, p *models.Page) (bool, error) {
	row := toPageRow(p)
	res := s.db.WithContext(ctx).Model(&pageRow{}).
		Where("url = ? AND origin_timestamp < ?", row.URL, row.OriginTimestamp).
		Select("*").Omit("url", "created_at").
		Updates(&row)
	if res.Error != nil {
		return false, fmt.Errorf("replace page %s: %w", p.URL, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *PostgresStore) GetPage(ctx context.Context, url string) (*models.Page, error) {
	var row pageRow
	err := s.db.WithContext(ctx).Where("url = ?", url).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", url, err)
	}
	return row.toPage(), nil
}

func (s *PostgresStore) GetPages(ctx context.Context, urls []string) ([]*models.Page, error) {
	if len(urls) == 0 {
		return []*models.Page{}, nil
	}
	var rows []pageRow
	if err := s.db.WithContext(ctx).Where("url IN ?", urls).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get pages: %w", err)
	}
	out := make([]*models.Page, len(rows))
	for i := range rows {
		out[i] = rows[i].toPage()
	}
	return out, nil
}

func (s *PostgresStore) FindPages(ctx context.Context, q PageQuery) ([]*models.Page, error) {
	tx := s.db.WithContext(ctx).Model(&pageRow{}).
		Where("is_about_crisis = 1 AND is_hidden = 0")
	if len(q.Topics) > 0 {
		var exprs []clause.Expression
		for _, label := range q.Topics {
			exprs = append(exprs, clause.Expr{SQL: "jsonb_exists(topics, ?)", Vars: []interface{}{label}})
		}
		tx = tx.Where(clause.Or(exprs...))
	}
	if len(q.Countries) > 0 {
		tx = tx.Where("displayed_country IN ?", q.Countries)
	}
	if q.Positive != nil {
		tx = tx.Where("sentiment IS NOT NULL AND sentiment > ?", q.Positive.MinSentiment).
			Where("(is_positive IS NULL OR is_positive <> 0)").
			Where("origin_timestamp >= ?", q.Positive.Since)
	}

	tx = tx.Order("simple_timestamp DESC")
	for _, label := range q.SortTopics {
		tx = tx.Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "(topics->>?)::float DESC NULLS LAST",
			Vars:               []interface{}{label},
			WithoutParentheses: true,
		}})
	}
	tx = tx.Order("origin_timestamp DESC").Order("url ASC")
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []pageRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find pages: %w", err)
	}
	out := make([]*models.Page, len(rows))
	for i := range rows {
		out[i] = rows[i].toPage()
	}
	return out, nil
}

func (s *PostgresStore) CountPages(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&pageRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) SaveReview(ctx context.Context, r *models.Review) error {
	row := reviewRow{URL: r.URL, ID: r.ID, Version: r.Version, Payload: datatypes.NewJSONType(*r)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "version", "payload", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "reviews.version <= excluded.version"},
		}},
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save review %s: %w", r.URL, err)
	}
	return nil
}

func (s *PostgresStore) LatestReview(ctx context.Context, url string) (*models.Review, error) {
	var row reviewRow
	err := s.db.WithContext(ctx).Where("url = ?", url).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest review %s: %w", url, err)
	}
	r := row.Payload.Data()
	return &r, nil
}

func (s *PostgresStore) ApplyReview(ctx context.Context, r *models.Review) (bool, error) {
	updates := map[string]interface{}{
		"is_hidden":            r.IsHidden,
		"is_about_crisis":      r.IsAboutCrisis,
		"is_useful":            r.IsUseful,
		"is_about_false_rumor": r.IsAboutFalseRumor,
		"is_checked":           1,
		"topics":               datatypes.NewJSONType(r.TopicScores()),
		"review_version":       r.Version,
	}
	if r.IsPositive != nil {
		updates["is_positive"] = *r.IsPositive
	}
	if r.NewCountry != "" {
		updates["displayed_country"] = r.NewCountry
	}

	db := s.db.WithContext(ctx)
	res := db.Model(&pageRow{}).
		Where("url = ? AND review_version <= ?", r.URL, r.Version).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("apply review %s: %w", r.URL, res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	var n int64
	if err := db.Model(&pageRow{}).Where("url = ?", r.URL).Count(&n).Error; err != nil {
		return false, fmt.Errorf("apply review %s: %w", r.URL, err)
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *PostgresStore) InsertTweets(ctx context.Context, tweets []*models.Tweet) (int, error) {
	if len(tweets) == 0 {
		return 0, nil
	}
	rows := make([]tweetRow, len(tweets))
	for i, t := range tweets {
		rows[i] = toTweetRow(t)
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).CreateInBatches(&rows, tweetBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("insert tweets: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *PostgresStore) GetTweets(ctx context.Context, ids []string) ([]*models.Tweet, error) {
	if len(ids) == 0 {
		return []*models.Tweet{}, nil
	}
	var rows []tweetRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get tweets: %w", err)
	}
	out := make([]*models.Tweet, len(rows))
	for i := range rows {
		out[i] = rows[i].toTweet()
	}
	return out, nil
}

func (s *PostgresStore) FindTweets(ctx context.Context, q TweetQuery) ([]*models.Tweet, error) {
	tx := s.db.WithContext(ctx).Model(&tweetRow{})
	if len(q.Countries) > 0 {
		tx = tx.Where("country IN ?", q.Countries)
	}
	tx = tx.Order("simple_timestamp DESC").Order("retweet_count DESC").Order("id ASC")
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var rows []tweetRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find tweets: %w", err)
	}
	out := make([]*models.Tweet, len(rows))
	for i := range rows {
		out[i] = rows[i].toTweet()
	}
	return out, nil
}

func (s *PostgresStore) CountTweets(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&tweetRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tweets: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
