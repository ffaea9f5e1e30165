// Package sitelist groups the crawled news domains by external country.
package sitelist

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"covid-news/taxonomy"
)

type siteList struct {
	Domains map[string]struct {
		Region string `json:"region"`
	} `json:"domains"`
}

// Sources maps an external country key to its sorted list of source domains.
type Sources map[string][]string

// Load reads the site list JSON and groups its domains with tx. An empty path yields no sources.
func Load(path string, tx *taxonomy.Taxonomy) (Sources, error) {
	if path == "" {
		return Sources{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site list: %w", err)
	}
	return Parse(raw, tx)
}

// Parse groups domains by the external country of their region code. Unknown regions are
// dropped.
func Parse(raw []byte, tx *taxonomy.Taxonomy) (Sources, error) {
	var sl siteList
	if err := json.Unmarshal(raw, &sl); err != nil {
		return nil, fmt.Errorf("decode site list: %w", err)
	}
	out := Sources{}
	for domain, meta := range sl.Domains {
		key, ok := tx.ExternalCountry(meta.Region)
		if !ok {
			continue
		}
		out[key] = append(out[key], domain)
	}
	for key := range out {
		sort.Strings(out[key])
	}
	return out, nil
}

// Decorate fills the Sources field of every country in m.
func (s Sources) Decorate(m taxonomy.Meta) taxonomy.Meta {
	countries := make([]taxonomy.CountryMeta, len(m.Countries))
	for i, c := range m.Countries {
		c.Sources = append([]string(nil), s[c.Key]...)
		countries[i] = c
	}
	m.Countries = countries
	return m
}
