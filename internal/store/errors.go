package store

import "fmt"

// CorruptArchiveError is returned by Load when an archive or its coverage
// sidecar exists on disk but cannot be parsed. Callers recover by treating
// the archive as empty and re-fetching the range.
type CorruptArchiveError struct {
	Key  Key
	Path string
	Err  error
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf("archive %s: corrupt file %s: %v", e.Key, e.Path, e.Err)
}

func (e *CorruptArchiveError) Unwrap() error { return e.Err }

// PersistenceError is returned by MergeAndPersist when the merged archive
// could not be written durably. The previous on-disk state is left intact
// and the merged result is still usable in memory for the current request.
type PersistenceError struct {
	Key  Key
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("archive %s: persist to %s: %v", e.Key, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
