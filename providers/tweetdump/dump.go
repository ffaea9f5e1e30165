// Package tweetdump loads crawled tweets from the dump directory layout
// <source>/orig/YYYY/MM/DD/<hour>/<id>.json with a sibling <id>.metadata file and optional
// translations under ja_translated/ and en_translated/ as .txt files.
package tweetdump

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"covid-news/models"
	"covid-news/providers"

	"go.uber.org/zap"
)

// createdAtLayout is the format of created_at in the raw tweet JSON.
const createdAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

type rawTweet struct {
	IDStr     string `json:"id_str"`
	CreatedAt string `json:"created_at"`
	FullText  string `json:"full_text"`
	Text      string `json:"text"`
	Lang      string `json:"lang"`
	User      struct {
		Name            string `json:"name"`
		Verified        bool   `json:"verified"`
		ScreenName      string `json:"screen_name"`
		ProfileImageURL string `json:"profile_image_url_https"`
	} `json:"user"`
}

type metadata struct {
	Count       int    `json:"count"`
	CountryCode string `json:"country_code"`
}

// Loader reads one day of tweets from a dump directory.
type Loader struct {
	dir    string
	logger *zap.Logger
}

var _ providers.TweetProvider = (*Loader)(nil)

func New(dir string, logger *zap.Logger) *Loader {
	return &Loader{dir: dir, logger: logger}
}

func (l *Loader) Name() string { return "tweetdump" }

// ReadTweets returns every parseable tweet crawled on day. Unreadable files are logged and
// skipped.
func (l *Loader) ReadTweets(ctx context.Context, day time.Time) ([]*models.Tweet, error) {
	pattern := filepath.Join(l.dir, "*", "orig", day.Format("2006"), day.Format("01"), day.Format("02"), "*", "*.json")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(paths)
	l.logger.Debug("Tweet-Dateien gefunden", zap.String("day", day.Format("2006-01-02")), zap.Int("count", len(paths)))

	tweets := make([]*models.Tweet, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := readTweet(path)
		if err != nil {
			l.logger.Warn("Überspringe Tweet", zap.String("path", path), zap.Error(err))
			continue
		}
		tweets = append(tweets, t)
	}
	return tweets, nil
}

func readTweet(path string) (*models.Tweet, error) {
	var raw rawTweet
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}
	var meta metadata
	metaPath := strings.TrimSuffix(path, ".json") + ".metadata"
	if err := readJSON(metaPath, &meta); err != nil {
		return nil, err
	}
	created, err := time.Parse(createdAtLayout, raw.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	created = created.UTC()

	content := raw.FullText
	if content == "" {
		content = raw.Text
	}
	return &models.Tweet{
		ID:              raw.IDStr,
		Name:            raw.User.Name,
		Verified:        raw.User.Verified,
		Username:        raw.User.ScreenName,
		Avatar:          raw.User.ProfileImageURL,
		Timestamp:       created.Format("2006-01-02 15:04:05"),
		SimpleTimestamp: created.Format("2006-01-02"),
		ContentOrig:     content,
		ContentJaTrans:  readTranslation(path, "ja_translated"),
		ContentEnTrans:  readTranslation(path, "en_translated"),
		RetweetCount:    meta.Count,
		Country:         country(raw.Lang, meta.CountryCode),
		Lang:            raw.Lang,
	}, nil
}

// country maps Japanese tweets to jp and everything else to the crawler's country code.
func country(lang, code string) string {
	if lang == "ja" {
		return "jp"
	}
	if code == "" {
		return "unk"
	}
	return strings.ToLower(code)
}

func translationPath(path, dir string) string {
	sep := string(filepath.Separator)
	p := strings.Replace(path, sep+"orig"+sep, sep+dir+sep, 1)
	return strings.TrimSuffix(p, ".json") + ".txt"
}

func readTranslation(path, dir string) string {
	raw, err := os.ReadFile(translationPath(path, dir))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
