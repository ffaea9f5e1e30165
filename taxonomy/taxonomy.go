// Package taxonomy maps the classifiers' fine-grained labels onto the stable topic and
// country categories exposed by the API, together with their per-language display names.
//
// A Taxonomy is immutable once built. Build one per process (or per test) with Load or Parse
// and pass it explicitly to the components that need it.
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// All is the synthetic external key that covers every internal label of a dimension.
const All = "all"

//go:embed default.yaml
var defaultYAML []byte

// Thresholds holds the fixed cut-offs used to turn classifier scores into topics and flags.
type Thresholds struct {
	Relevance          float64 `yaml:"relevance" json:"relevance"`
	CoTopic            float64 `yaml:"coTopic" json:"co_topic"`
	Useful             float64 `yaml:"useful" json:"useful"`
	FalseRumor         float64 `yaml:"falseRumor" json:"false_rumor"`
	Sentiment          float64 `yaml:"sentiment" json:"sentiment"`
	PositiveWindowDays int     `yaml:"positiveWindowDays" json:"positive_window_days"`
}

// DefaultThresholds are applied to any threshold left at zero in the configuration.
var DefaultThresholds = Thresholds{
	Relevance:          0.5,
	CoTopic:            0.7,
	Useful:             0.9,
	FalseRumor:         0.92,
	Sentiment:          0.9,
	PositiveWindowDays: 30,
}

// KeywordTopic forces an internal topic label when the keyword classifier fires.
type KeywordTopic struct {
	Keyword string `yaml:"keyword"`
	Label   string `yaml:"label"`
}

type topicEntry struct {
	Key    string            `yaml:"key"`
	Names  map[string]string `yaml:"names"`
	Labels []string          `yaml:"labels"`
}

type countryEntry struct {
	Key                   string            `yaml:"key"`
	Names                 map[string]string `yaml:"names"`
	Codes                 []string          `yaml:"codes"`
	Language              string            `yaml:"language"`
	RepresentativeSiteURL string            `yaml:"representativeSiteUrl"`
}

type document struct {
	Version           int            `yaml:"version"`
	DomesticCountry   string         `yaml:"domesticCountry"`
	Languages         []string       `yaml:"languages"`
	SearchTopic       string         `yaml:"searchTopic"`
	GeneralTopic      string         `yaml:"generalTopic"`
	FalseRumorDomains []string       `yaml:"falseRumorDomains"`
	KeywordTopics     []KeywordTopic `yaml:"keywordTopics"`
	Thresholds        Thresholds     `yaml:"thresholds"`
	Topics            []topicEntry   `yaml:"topics"`
	Countries         []countryEntry `yaml:"countries"`
}

// dimension is one side of the taxonomy (topics or countries).
type dimension struct {
	keys     []string
	labels   []string
	internal map[string][]string
	external map[string]string
	names    map[string]map[string]string
	byName   map[string]string
}

func newDimension() *dimension {
	return &dimension{
		internal: map[string][]string{},
		external: map[string]string{},
		names:    map[string]map[string]string{},
		byName:   map[string]string{},
	}
}

func (d *dimension) add(kind, key string, names map[string]string, labels []string) error {
	if key == "" {
		return fmt.Errorf("%s with empty key", kind)
	}
	if key == All {
		return fmt.Errorf("%s key %q is reserved", kind, All)
	}
	if _, dup := d.internal[key]; dup {
		return fmt.Errorf("duplicate %s key %q", kind, key)
	}
	if len(labels) == 0 {
		return fmt.Errorf("%s %q has no internal labels", kind, key)
	}
	for _, label := range labels {
		if owner, taken := d.external[label]; taken {
			return fmt.Errorf("internal %s label %q maps to both %q and %q", kind, label, owner, key)
		}
		d.external[label] = key
		d.labels = append(d.labels, label)
	}
	d.keys = append(d.keys, key)
	d.internal[key] = append([]string(nil), labels...)
	d.names[key] = names
	for _, name := range names {
		d.byName[strings.ToLower(name)] = key
	}
	return nil
}

func (d *dimension) seal() {
	d.internal[All] = append([]string(nil), d.labels...)
}

func (d *dimension) resolve(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if _, ok := d.internal[name]; ok {
		return name
	}
	if key, ok := d.byName[strings.ToLower(name)]; ok {
		return key
	}
	return name
}

// Taxonomy is the read-only registry of topics, countries, languages and thresholds.
type Taxonomy struct {
	version           int
	domestic          string
	languages         []string
	search            string
	general           string
	falseRumorDomains map[string]bool
	keywordTopics     []KeywordTopic
	thresholds        Thresholds

	topics      *dimension
	countries   *dimension
	countryMeta map[string]countryEntry
}

// Load reads a taxonomy file; an empty path selects the embedded default.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	return Parse(raw)
}

// Default builds the embedded taxonomy.
func Default() (*Taxonomy, error) {
	return Parse(defaultYAML)
}

// MustDefault is Default for tests and static initialisation.
func MustDefault() *Taxonomy {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

// Parse builds a Taxonomy from its YAML form.
func Parse(raw []byte) (*Taxonomy, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if len(doc.Topics) == 0 || len(doc.Countries) == 0 {
		return nil, errors.New("taxonomy needs at least one topic and one country")
	}

	t := &Taxonomy{
		version:           doc.Version,
		domestic:          doc.DomesticCountry,
		languages:         doc.Languages,
		search:            doc.SearchTopic,
		general:           doc.GeneralTopic,
		falseRumorDomains: map[string]bool{},
		thresholds:        withDefaults(doc.Thresholds),
		topics:            newDimension(),
		countries:         newDimension(),
		countryMeta:       map[string]countryEntry{},
	}
	if len(t.languages) == 0 {
		t.languages = []string{"ja", "en"}
	}
	if t.search == "" {
		t.search = "search"
	}
	for _, d := range doc.FalseRumorDomains {
		t.falseRumorDomains[d] = true
	}

	for _, e := range doc.Topics {
		if err := t.topics.add("topic", e.Key, e.Names, e.Labels); err != nil {
			return nil, err
		}
	}
	for _, e := range doc.Countries {
		if err := t.countries.add("country", e.Key, e.Names, e.Codes); err != nil {
			return nil, err
		}
		t.countryMeta[e.Key] = e
	}
	t.topics.seal()
	t.countries.seal()

	if t.general != "" {
		if _, ok := t.topics.internal[t.general]; !ok {
			return nil, fmt.Errorf("general topic %q is not a topic key", t.general)
		}
	}
	if t.domestic != "" {
		if _, ok := t.countries.external[t.domestic]; !ok {
			return nil, fmt.Errorf("domestic country %q is not an internal country code", t.domestic)
		}
	}
	for _, kt := range doc.KeywordTopics {
		if kt.Keyword == "" {
			return nil, fmt.Errorf("keyword topic %q has no keyword", kt.Label)
		}
		if _, ok := t.topics.external[kt.Label]; !ok {
			return nil, fmt.Errorf("keyword topic %q is not an internal topic label", kt.Label)
		}
		t.keywordTopics = append(t.keywordTopics, kt)
	}
	return t, nil
}

func withDefaults(th Thresholds) Thresholds {
	if th.Relevance == 0 {
		th.Relevance = DefaultThresholds.Relevance
	}
	if th.CoTopic == 0 {
		th.CoTopic = DefaultThresholds.CoTopic
	}
	if th.Useful == 0 {
		th.Useful = DefaultThresholds.Useful
	}
	if th.FalseRumor == 0 {
		th.FalseRumor = DefaultThresholds.FalseRumor
	}
	if th.Sentiment == 0 {
		th.Sentiment = DefaultThresholds.Sentiment
	}
	if th.PositiveWindowDays == 0 {
		th.PositiveWindowDays = DefaultThresholds.PositiveWindowDays
	}
	return th
}

func (t *Taxonomy) Version() int            { return t.version }
func (t *Taxonomy) Thresholds() Thresholds  { return t.thresholds }
func (t *Taxonomy) DomesticCountry() string { return t.domestic }
func (t *Taxonomy) SearchTopic() string     { return t.search }
func (t *Taxonomy) GeneralTopic() string    { return t.general }
func (t *Taxonomy) KeywordTopics() []KeywordTopic {
	return append([]KeywordTopic(nil), t.keywordTopics...)
}
func (t *Taxonomy) Languages() []string              { return append([]string(nil), t.languages...) }
func (t *Taxonomy) IsFalseRumorDomain(d string) bool { return t.falseRumorDomains[d] }

// HasLanguage reports whether lang is one of the display languages.
func (t *Taxonomy) HasLanguage(lang string) bool {
	for _, l := range t.languages {
		if l == lang {
			return true
		}
	}
	return false
}

// TopicKeys returns the external topics in canonical order, without All.
func (t *Taxonomy) TopicKeys() []string { return append([]string(nil), t.topics.keys...) }

// CountryKeys returns the external countries in canonical order, without All.
func (t *Taxonomy) CountryKeys() []string { return append([]string(nil), t.countries.keys...) }

// TopicLabels returns every internal topic label in canonical order.
func (t *Taxonomy) TopicLabels() []string { return append([]string(nil), t.topics.labels...) }

// CountryCodes returns every internal country code in canonical order.
func (t *Taxonomy) CountryCodes() []string { return append([]string(nil), t.countries.labels...) }

// IsTopicLabel reports whether label is a recognized internal topic label.
func (t *Taxonomy) IsTopicLabel(label string) bool {
	_, ok := t.topics.external[label]
	return ok
}

// IsCountryCode reports whether code is a recognized internal country code.
func (t *Taxonomy) IsCountryCode(code string) bool {
	_, ok := t.countries.external[code]
	return ok
}

// ExternalTopic maps an internal topic label to its external topic.
func (t *Taxonomy) ExternalTopic(label string) (string, bool) {
	key, ok := t.topics.external[label]
	return key, ok
}

// ExternalCountry maps an internal country code to its external country.
func (t *Taxonomy) ExternalCountry(code string) (string, bool) {
	key, ok := t.countries.external[code]
	return key, ok
}

// InternalTopics returns the labels an external topic covers. Unknown keys yield an empty,
// non-nil set so callers can treat them as matching nothing.
func (t *Taxonomy) InternalTopics(key string) []string {
	return append([]string{}, t.topics.internal[key]...)
}

// InternalCountries returns the codes an external country covers; see InternalTopics.
func (t *Taxonomy) InternalCountries(key string) []string {
	return append([]string{}, t.countries.internal[key]...)
}

// IsTopicKey reports whether key is a known external topic or All.
func (t *Taxonomy) IsTopicKey(key string) bool {
	_, ok := t.topics.internal[key]
	return ok
}

// IsCountryKey reports whether key is a known external country or All.
func (t *Taxonomy) IsCountryKey(key string) bool {
	_, ok := t.countries.internal[key]
	return ok
}

// TopicName returns the display name of an external topic, falling back to the key.
func (t *Taxonomy) TopicName(key, lang string) string {
	if name := t.topics.names[key][lang]; name != "" {
		return name
	}
	return key
}

// CountryName returns the display name of an external country, falling back to the key.
func (t *Taxonomy) CountryName(key, lang string) string {
	if name := t.countries.names[key][lang]; name != "" {
		return name
	}
	return key
}

// ResolveTopic turns a key or a localized display name into the external topic key.
// Unrecognized input is returned trimmed but otherwise unchanged.
func (t *Taxonomy) ResolveTopic(name string) string {
	if strings.TrimSpace(name) == t.search {
		return t.search
	}
	return t.topics.resolve(name)
}

// ResolveCountry is ResolveTopic for countries.
func (t *Taxonomy) ResolveCountry(name string) string {
	return t.countries.resolve(name)
}

// TopicMeta describes one external topic for a display language.
type TopicMeta struct {
	Key  string `json:"topic"`
	Name string `json:"name"`
}

// CountryMeta describes one external country for a display language.
type CountryMeta struct {
	Key                   string   `json:"country"`
	Name                  string   `json:"name"`
	Language              string   `json:"language"`
	RepresentativeSiteURL string   `json:"representativeSiteUrl"`
	Sources               []string `json:"sources,omitempty"`
}

// Meta is the read-only taxonomy lookup served to clients.
type Meta struct {
	Topics    []TopicMeta   `json:"topics"`
	Countries []CountryMeta `json:"countries"`
}

// Meta returns the display-ready taxonomy for lang.
func (t *Taxonomy) Meta(lang string) Meta {
	m := Meta{}
	for _, key := range t.topics.keys {
		m.Topics = append(m.Topics, TopicMeta{Key: key, Name: t.TopicName(key, lang)})
	}
	for _, key := range t.countries.keys {
		e := t.countryMeta[key]
		m.Countries = append(m.Countries, CountryMeta{
			Key:                   key,
			Name:                  t.CountryName(key, lang),
			Language:              e.Language,
			RepresentativeSiteURL: e.RepresentativeSiteURL,
		})
	}
	return m
}
