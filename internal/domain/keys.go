package domain

import (
	"strings"

	"coinbook/internal/domain/model"
)

// KeyRoot is the prefix shared by every ledger key.
const KeyRoot = "coinbook"

// Keyspace builds the store keys of one strategy namespace:
//
//	<prefix>-funds
//	<prefix>-position-<id>
//
// where <prefix> is "coinbook" or "coinbook-<namespace>".
type Keyspace struct {
	namespace string
	prefix    string
}

func NewKeyspace(namespace string) Keyspace {
	ns := strings.TrimSpace(namespace)
	prefix := KeyRoot
	if ns != "" {
		prefix = KeyRoot + "-" + ns
	}
	return Keyspace{namespace: ns, prefix: prefix}
}

func (k Keyspace) Namespace() string { return k.namespace }

func (k Keyspace) Prefix() string { return k.prefix }

// ScanPrefix is the widest prefix covering every key of the namespace. It may also
// match keys of other namespaces that extend this one; filter with Owns.
func (k Keyspace) ScanPrefix() string { return k.prefix + "-" }

func (k Keyspace) Funds() string { return k.prefix + "-funds" }

func (k Keyspace) PositionPrefix() string { return k.prefix + "-position-" }

func (k Keyspace) Position(id string) string { return k.PositionPrefix() + id }

// PositionID extracts the id from a position key of this namespace.
func (k Keyspace) PositionID(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, k.PositionPrefix())
	if !ok || !model.ValidPositionID(id) {
		return "", false
	}
	return id, true
}

// Owns reports whether key is the funds key or a position key of this namespace.
func (k Keyspace) Owns(key string) bool {
	if key == k.Funds() {
		return true
	}
	_, ok := k.PositionID(key)
	return ok
}
