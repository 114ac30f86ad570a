package service

import (
	"fmt"
	"strings"

	"github.com/mmcdole/recents/internal/recents"
)

// keyStore is the part of the store needed for namespace housekeeping.
type keyStore interface {
	Keys(prefix string) ([]string, error)
	Delete(key string) error
}

// StoredNamespaces lists namespaces that have recency state on disk.
func StoredNamespaces(store keyStore) ([]string, error) {
	keys, err := store.Keys(recents.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, recents.KeyPrefix))
	}
	return names, nil
}

// ClearNamespace deletes the stored recency state of one namespace.
// Running reconcilers for it are not affected.
func ClearNamespace(store keyStore, namespace string) error {
	if err := store.Delete(recents.Key(namespace)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", namespace, err)
	}
	return nil
}
