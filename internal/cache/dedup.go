package cache

import "time"

// Deduplicator remembers recently seen message ids so webhook
// redeliveries are processed once.
type Deduplicator struct {
	seen *LRUCache[struct{}]
}

func NewDeduplicator(maxSize int, ttl time.Duration) *Deduplicator {
	return &Deduplicator{seen: NewLRUCache[struct{}](maxSize, ttl)}
}

// Seen records id and reports whether it was already recorded. Empty ids
// are never considered duplicates.
func (d *Deduplicator) Seen(id string) bool {
	if id == "" {
		return false
	}
	return !d.seen.Add(id, struct{}{})
}

// Forget drops id so a later delivery is processed again.
func (d *Deduplicator) Forget(id string) {
	d.seen.Delete(id)
}

func (d *Deduplicator) CleanExpired() int {
	return d.seen.CleanExpired()
}

func (d *Deduplicator) Size() int {
	return d.seen.Size()
}
