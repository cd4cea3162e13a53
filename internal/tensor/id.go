package tensor

import "sync/atomic"

// ID is the stable identity of a tensor. It is allocated once at construction
// and never reused within a process, so caches can key on it instead of on
// pointer equality.
type ID uint64

var lastID atomic.Uint64

// NextID allocates a fresh tensor ID.
func NextID() ID {
	return ID(lastID.Add(1))
}
