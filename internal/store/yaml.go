package store

import (
	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/pricing"
)

// configDoc is the YAML shape of the alias/combo/pricing surface an
// operator edits by hand, matching the other_examples CLIProxyAPI
// family's plain-text config convention (spec.md §1's "out of scope"
// config surface, given a minimal concrete import/export seam here).
type configDoc struct {
	Aliases []aliasEntry `yaml:"aliases"`
	Combos  []comboEntry `yaml:"combos"`
	Pricing []priceEntry `yaml:"pricing"`
}

type aliasEntry struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type comboEntry struct {
	Name   string   `yaml:"name"`
	Models []string `yaml:"models"`
}

type priceEntry struct {
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	Input         float64 `yaml:"input"`
	Output        float64 `yaml:"output"`
	Cached        float64 `yaml:"cached,omitempty"`
	Reasoning     float64 `yaml:"reasoning,omitempty"`
	CacheCreation float64 `yaml:"cache_creation,omitempty"`
}

// ExportConfigYAML dumps every alias, combo, and pricing entry as one
// YAML document, for an operator to edit offline and re-import.
func (db *DB) ExportConfigYAML() ([]byte, error) {
	var doc configDoc
	err := db.bolt.View(func(tx *bolt.Tx) error {
		if err := forEach(tx, bucketAliases, func() any { return &aliasRecord{} }, func(name string, v any) error {
			rec := v.(*aliasRecord)
			doc.Aliases = append(doc.Aliases, aliasEntry{Name: name, Provider: rec.ProviderId, Model: rec.Model})
			return nil
		}); err != nil {
			return err
		}
		if err := forEach(tx, bucketCombos, func() any { return &comboRecord{} }, func(name string, v any) error {
			rec := v.(*comboRecord)
			doc.Combos = append(doc.Combos, comboEntry{Name: name, Models: rec.Models})
			return nil
		}); err != nil {
			return err
		}
		return forEach(tx, bucketPricing, func() any { return &pricing.Entry{} }, func(key string, v any) error {
			providerId, model, ok := splitPricingKey(key)
			if !ok {
				return nil
			}
			e := v.(*pricing.Entry)
			doc.Pricing = append(doc.Pricing, priceEntry{
				Provider: providerId, Model: model, Input: e.Input, Output: e.Output,
				Cached: e.Cached, Reasoning: e.Reasoning, CacheCreation: e.CacheCreation,
			})
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "export store config")
	}
	return yaml.Marshal(doc)
}

// ImportConfigYAML upserts every alias, combo, and pricing entry in data,
// an operator-edited YAML document in the ExportConfigYAML shape. Stored
// entries whose names do not appear in data are left in place.
func (db *DB) ImportConfigYAML(data []byte) error {
	var doc configDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "parse config yaml")
	}

	for _, a := range doc.Aliases {
		if err := db.PutAlias(a.Name, a.Provider, a.Model); err != nil {
			return errors.Wrap(err, "import alias")
		}
	}
	for _, c := range doc.Combos {
		if err := db.PutCombo(c.Name, c.Models); err != nil {
			return errors.Wrap(err, "import combo")
		}
	}
	for _, p := range doc.Pricing {
		entry := pricing.Entry{
			Input: p.Input, Output: p.Output, Cached: p.Cached,
			Reasoning: p.Reasoning, CacheCreation: p.CacheCreation,
		}
		if err := db.SetPricing(p.Provider, p.Model, entry); err != nil {
			return errors.Wrap(err, "import pricing entry")
		}
	}
	return nil
}
