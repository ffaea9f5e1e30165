package services

import (
	"sort"

	"covid-news/models"
)

// articleView reshapes a stored page for lang: scored topics become named entries with their
// snippet, the translated title and domain label follow lang.
func (e *QueryEngine) articleView(p *models.Page, lang string) models.ArticleView {
	rank := make(map[string]int)
	for i, label := range e.tx.TopicLabels() {
		rank[label] = i
	}
	labels := make([]string, 0, len(p.Topics))
	for label := range p.Topics {
		if _, ok := rank[label]; ok {
			labels = append(labels, label)
		}
	}
	sort.Slice(labels, func(i, j int) bool {
		a, b := labels[i], labels[j]
		if p.Topics[a] != p.Topics[b] {
			return p.Topics[a] > p.Topics[b]
		}
		return rank[a] < rank[b]
	})

	topics := make([]models.TopicView, 0, len(labels)+1)
	for _, label := range labels {
		key, _ := e.tx.ExternalTopic(label)
		topics = append(topics, models.TopicView{
			Name:        e.tx.TopicName(key, lang),
			Snippet:     p.Snippets[lang][label],
			Relatedness: p.Topics[label],
		})
	}

	falseRumor := p.IsAboutFalseRumor
	if e.tx.IsFalseRumorDomain(p.Domain) {
		falseRumor = 1
	}
	return models.ArticleView{
		URL:               p.URL,
		Country:           p.Country,
		DisplayedCountry:  p.DisplayedCountry,
		Orig:              p.Orig,
		Translated:        p.Translated(lang),
		Topics:            topics,
		IsAboutCrisis:     p.IsAboutCrisis,
		IsUseful:          p.IsUseful,
		IsClear:           p.IsClear,
		IsAboutFalseRumor: falseRumor,
		IsHidden:          p.IsHidden,
		IsChecked:         p.IsChecked,
		IsPositive:        p.IsPositive,
		Domain:            p.Domain,
		DomainLabel:       p.DomainLabels[lang],
	}
}
