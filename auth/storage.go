package auth

// Storage persists the user id to AuthInfo map and the last authenticated
// user id. Implementations must provide read-your-writes consistency within a
// process; the manager serializes all calls.
type Storage interface {
	// Store replaces the persisted map and last user pointer.
	Store(infos map[string]*AuthInfo, lastUserID string) error

	// Load returns the persisted map, empty when nothing was stored.
	Load() (map[string]*AuthInfo, error)

	// LastUserID returns the last authenticated user id, or "".
	LastUserID() (string, error)

	// ClearLastUserID drops the last user pointer only.
	ClearLastUserID() error

	// Clear removes everything.
	Clear() error
}
