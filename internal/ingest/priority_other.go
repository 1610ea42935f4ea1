//go:build !linux

package ingest

// boostThreadPriority is a no-op on platforms without thread scheduling
// control; the receiver still works, it just competes at normal priority.
func boostThreadPriority() {}
