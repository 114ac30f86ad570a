package domain

// KVStore is the persistent key-value capability the cache writes to.
// A missing key is reported as ("", false, nil), never as an error.
type KVStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error

	// Keys lists stored keys that start with prefix, in key order.
	Keys(prefix string) ([]string, error)

	Close() error
}
