package authflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// FileSessionCache persists the session artifact as JSON on disk, the local
// equivalent of the browser session storage the hosted backend SDK keeps. A
// file that cannot be decoded surfaces ErrCorruptCache so bootstrap can
// clear it instead of wedging on every start.
type FileSessionCache struct {
	mu   sync.Mutex
	path string
}

var _ SessionCache = (*FileSessionCache)(nil)

// NewFileSessionCache creates a cache at path; parent directories are
// created on the first write.
func NewFileSessionCache(path string) *FileSessionCache {
	return &FileSessionCache{path: path}
}

// Load returns the cached session, (nil, nil) when nothing is cached, or
// ErrCorruptCache when the artifact cannot be decoded.
func (c *FileSessionCache) Load() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read session cache")
	}

	session := &Session{}
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, ErrCorruptCache.WithMetadata(map[string]any{
			"path":  c.path,
			"cause": err.Error(),
		})
	}

	if session.SubjectID == "" {
		// decodable JSON that is not a session is still corruption
		return nil, ErrCorruptCache.WithMetadata(map[string]any{"path": c.path})
	}

	return session, nil
}

// Store writes the session atomically (temp file plus rename) with owner
// only permissions.
func (c *FileSessionCache) Store(session *Session) error {
	if session == nil {
		return ErrNoSession
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(session)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session")
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create cache directory")
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create cache temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write session cache")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set cache permissions")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to close cache temp file")
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to replace session cache")
	}
	return nil
}

// Clear removes the artifact; a missing file is not an error.
func (c *FileSessionCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear session cache")
	}
	return nil
}
