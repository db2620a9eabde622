package invalidation

import (
	"context"
	"sync"
)

// Versions is an in-process Sink that keeps a version counter per tag. It
// serves single-instance deployments without Redis.
type Versions struct {
	mu       sync.RWMutex
	versions map[string]int64
}

// NewVersions creates an empty version table.
func NewVersions() *Versions {
	return &Versions{versions: make(map[string]int64)}
}

// Invalidate bumps the version of every tag.
func (v *Versions) Invalidate(_ context.Context, tags []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, tag := range tags {
		v.versions[tag]++
	}
	return nil
}

// Version returns the current version of tag.
func (v *Versions) Version(tag string) int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.versions[tag]
}
