//go:build linux

package ctrl

import "golang.org/x/sys/unix"

// currentThreadID returns the calling OS thread's id. Binder addresses
// workers by OS thread, so a caller that wants stable worker identity
// across calls must hold itself to one OS thread (runtime.LockOSThread).
func currentThreadID() uint64 {
	return uint64(unix.Gettid())
}
