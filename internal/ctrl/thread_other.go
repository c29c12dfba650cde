//go:build !linux

package ctrl

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentThreadID falls back to the calling goroutine's id on platforms
// without a portable OS-thread id. This only approximates OS-thread
// identity: it is stable for the lifetime of one goroutine, which is the
// closest non-Linux analog to a worker pinned with runtime.LockOSThread.
func currentThreadID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}
