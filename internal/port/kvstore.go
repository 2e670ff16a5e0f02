package port

// KeyValueStore is a durable string-keyed store. The integrity registry
// uses it to persist expected hashes across process restarts.
type KeyValueStore interface {
	// Get returns the value for key. Missing keys return ("", false, nil).
	Get(key string) (string, bool, error)

	// Set writes key to value, replacing any previous value.
	Set(key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error

	// KeysWithPrefix returns every stored key beginning with prefix.
	KeysWithPrefix(prefix string) ([]string, error)
}
