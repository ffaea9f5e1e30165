package services

import (
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"covid-news/models"
	"covid-news/taxonomy"
)

// ErrRejected signals that a raw document produces no record. It is not a failure:
// ingestion skips the document and continues.
var ErrRejected = errors.New("document rejected")

// TitleChecker verifies that a translated title is written in the expected language.
type TitleChecker interface {
	Check(lang, title string) bool
}

// Normalizer turns classified feed documents into canonical Page records.
type Normalizer struct {
	tx      *taxonomy.Taxonomy
	checker TitleChecker
	logger  *zap.Logger
}

// NewNormalizer erstellt einen Normalizer. checker darf nil sein.
func NewNormalizer(tx *taxonomy.Taxonomy, checker TitleChecker, logger *zap.Logger) *Normalizer {
	return &Normalizer{tx: tx, checker: checker, logger: logger}
}

// Normalize converts doc. It returns ErrRejected for documents without a displayable title.
func (n *Normalizer) Normalize(doc *models.RawDocument) (*models.Page, error) {
	url := strings.TrimSpace(doc.URL)
	origTitle := cleanTitle(doc.Orig.Title)
	if url == "" || origTitle == "" {
		return nil, ErrRejected
	}

	translations := make(map[string]models.Translation, len(n.tx.Languages()))
	for _, lang := range n.tx.Languages() {
		raw, _ := doc.Translated(lang)
		title := cleanTitle(raw.Title)
		if title == "" {
			return nil, ErrRejected
		}
		if n.checker != nil && !n.checker.Check(lang, title) {
			n.logger.Warn("Titel hat falsche Sprache, überspringe", zap.String("url", url), zap.String("lang", lang))
			return nil, ErrRejected
		}
		translations[lang] = models.Translation{Title: title, Timestamp: raw.Timestamp}
	}

	th := n.tx.Thresholds()
	p := &models.Page{
		URL:              url,
		Country:          doc.Country,
		DisplayedCountry: doc.Country,
		Orig: models.Origin{
			Title:           origTitle,
			Timestamp:       doc.Orig.Timestamp,
			SimpleTimestamp: models.SimpleDate(doc.Orig.Timestamp),
		},
		Translations:      translations,
		Topics:            SelectTopics(n.tx, doc.ClassesBert, doc.ClassesKwd),
		Snippets:          make(map[string]map[string]string, len(translations)),
		IsAboutCrisis:     discreteFlag(doc, "is_about_COVID-19", th.Relevance, 0),
		IsUseful:          discreteFlag(doc, "is_useful", th.Useful, -1),
		IsClear:           discreteFlag(doc, "is_clear", -1, -1),
		IsAboutFalseRumor: discreteFlag(doc, "is_about_false_rumor", th.FalseRumor, 0),
		IsChecked:         0,
		Domain:            doc.Domain,
		DomainLabels:      make(map[string]string, len(translations)),
	}
	if score, ok := doc.ClassesBert["is_positive"]; ok {
		p.Sentiment = models.FloatPtr(score)
		p.IsPositive = models.IntPtr(boolToInt(score > th.Sentiment))
	} else if v, ok := doc.Classes["is_positive"]; ok {
		p.IsPositive = models.IntPtr(boolToInt(v == 1))
	}
	for lang := range translations {
		p.Snippets[lang] = ReshapeSnippets(doc.SnippetCandidates(lang), n.tx.TopicLabels())
		p.DomainLabels[lang] = doc.DomainLabelFor(lang)
	}
	return p, nil
}

// SelectTopics keeps the labels scoring above the relevance threshold, forced keyword topics
// at 1.0, and from those the best match plus every label above the co-topic threshold.
func SelectTopics(tx *taxonomy.Taxonomy, scores, keywords map[string]float64) map[string]float64 {
	th := tx.Thresholds()
	candidates := map[string]float64{}
	for label, score := range scores {
		if tx.IsTopicLabel(label) && score > th.Relevance {
			candidates[label] = score
		}
	}
	for _, kt := range tx.KeywordTopics() {
		if keywords[kt.Keyword] == 1 {
			candidates[kt.Label] = 1.0
		}
	}

	rank := make(map[string]int, len(candidates))
	for i, label := range tx.TopicLabels() {
		rank[label] = i
	}
	ordered := make([]string, 0, len(candidates))
	for label := range candidates {
		ordered = append(ordered, label)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if candidates[a] != candidates[b] {
			return candidates[a] > candidates[b]
		}
		return rank[a] < rank[b]
	})

	topics := make(map[string]float64, len(ordered))
	for i, label := range ordered {
		if i > 0 && candidates[label] <= th.CoTopic {
			break
		}
		topics[label] = candidates[label]
	}
	return topics
}

// ReshapeSnippets picks one excerpt per label: the label's first non-empty candidate, else the
// first non-empty candidate of any label in canonical order, else "". Every label gets a key.
func ReshapeSnippets(candidates map[string][]string, labels []string) map[string]string {
	general := ""
	for _, label := range labels {
		if s := firstNonEmpty(candidates[label]); s != "" {
			general = s
			break
		}
	}
	out := make(map[string]string, len(labels))
	for _, label := range labels {
		if s := firstNonEmpty(candidates[label]); s != "" {
			out[label] = s
		} else {
			out[label] = general
		}
	}
	return out
}

func firstNonEmpty(list []string) string {
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// discreteFlag derives a 0/1 flag from the continuous score when present (threshold < 0 means
// the flag has no score), else passes the discrete classifier output through, else fallback.
func discreteFlag(doc *models.RawDocument, name string, threshold float64, fallback int) int {
	if threshold >= 0 {
		if score, ok := doc.ClassesBert[name]; ok {
			return boolToInt(score > threshold)
		}
	}
	if v, ok := doc.Classes[name]; ok {
		return int(v)
	}
	return fallback
}

func cleanTitle(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
