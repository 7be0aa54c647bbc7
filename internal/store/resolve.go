package store

import (
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/1-api-gateway/relaygw/internal/chat"
)

// Resolve implements chat.AliasResolver: turn a client-facing model name
// into the provider and upstream model(s) to call (spec.md §4.7 "resolve
// aliases, detect combo").
//
// Lookup order: an exact alias match, then an exact combo match, then a
// literal "provider/model" pair taken at face value. A combo's provider is
// taken from its first member — every member of a combo is expected to
// resolve to the same provider, since one credential.Store account loop
// (internal/chat.Handler.attemptAccountLoop) serves every model tried for
// one logical request; a combo mixing providers degrades to "every
// member's bare model id is tried against the first member's provider",
// which is a real limitation worth keeping in mind when authoring combos,
// not a crash.
func (db *DB) Resolve(model string) (chat.AliasResolution, bool) {
	var resolution chat.AliasResolution
	var found bool

	_ = db.bolt.View(func(tx *bolt.Tx) error {
		var alias aliasRecord
		if ok, _ := get(tx, bucketAliases, model, &alias); ok {
			resolution = chat.AliasResolution{ProviderId: alias.ProviderId, Models: []string{alias.Model}}
			found = true
			return nil
		}

		var combo comboRecord
		if ok, _ := get(tx, bucketCombos, model, &combo); ok && len(combo.Models) > 0 {
			providerId, models := resolveComboMembers(tx, combo.Models)
			if providerId != "" {
				resolution = chat.AliasResolution{ProviderId: providerId, Models: models}
				found = true
			}
			return nil
		}

		if providerId, bareModel, ok := splitProviderModel(model); ok {
			resolution = chat.AliasResolution{ProviderId: providerId, Models: []string{bareModel}}
			found = true
		}
		return nil
	})

	return resolution, found
}

// resolveComboMembers resolves each combo member (alias or literal
// "provider/model") to a bare upstream model id, reporting the first
// member's provider id as the combo's provider.
func resolveComboMembers(tx *bolt.Tx, members []string) (providerId string, models []string) {
	for _, raw := range members {
		var alias aliasRecord
		if ok, _ := get(tx, bucketAliases, raw, &alias); ok {
			if providerId == "" {
				providerId = alias.ProviderId
			}
			models = append(models, alias.Model)
			continue
		}
		if p, m, ok := splitProviderModel(raw); ok {
			if providerId == "" {
				providerId = p
			}
			models = append(models, m)
			continue
		}
		// Neither an alias nor a "provider/model" pair: pass the raw
		// string through as a bare model id under whatever provider the
		// combo has settled on so far.
		models = append(models, raw)
	}
	return providerId, models
}

func splitProviderModel(s string) (providerId, model string, ok bool) {
	i := strings.IndexByte(s, '/')
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}
