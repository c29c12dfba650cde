package binder

import (
	"context"
	"sync"

	"github.com/openbinder/binder/internal/ctrl"
)

// MockHost is a synchronous, single-goroutine-driven implementation of
// ctrl.Host for testing code that drives a Process: Drive submits each
// write buffer straight to Process.WriteRead and captures every
// read_commands result for inspection.
type MockHost struct {
	sender      ctrl.Sender
	nonBlocking bool

	mu         sync.Mutex
	writeCalls int
	readCalls  int
	lastWrite  []byte
	reads      [][]byte
}

// NewMockHost creates a mock host identified by pid/euid, with a
// placeholder thread id of 1. Sender reports this identity; Drive does not
// pass it on, since WriteRead picks the worker from the calling OS thread.
func NewMockHost(pid, euid uint32) *MockHost {
	return &MockHost{sender: ctrl.Sender{PID: pid, EUID: euid, ThreadID: 1}}
}

// SetThreadID overrides the thread id that Sender reports. It does not
// change which worker Drive's WriteRead call runs as.
func (h *MockHost) SetThreadID(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sender.ThreadID = id
}

// SetNonBlocking sets the flag NonBlocking reports. Drive does not consult
// it; blocking is fixed per process by OpenOptions.NonBlocking.
func (h *MockHost) SetNonBlocking(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nonBlocking = v
}

// Sender implements ctrl.Host.
func (h *MockHost) Sender() ctrl.Sender {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sender
}

// NonBlocking implements ctrl.Host.
func (h *MockHost) NonBlocking() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nonBlocking
}

// Drive submits writeBuf and captures up to readCapacity bytes of response
// through p, recording both for later inspection via Reads/LastWrite.
func (h *MockHost) Drive(ctx context.Context, p *Process, writeBuf []byte, readCapacity int) (int, []byte, error) {
	h.mu.Lock()
	h.writeCalls++
	h.lastWrite = append([]byte(nil), writeBuf...)
	h.mu.Unlock()

	written, readBuf, err := p.WriteRead(ctx, writeBuf, readCapacity)

	h.mu.Lock()
	h.readCalls++
	h.reads = append(h.reads, append([]byte(nil), readBuf...))
	h.mu.Unlock()

	return written, readBuf, err
}

// Reads returns every read_commands result captured by Drive, in order.
func (h *MockHost) Reads() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.reads))
	copy(out, h.reads)
	return out
}

// LastWrite returns the most recent buffer passed to Drive.
func (h *MockHost) LastWrite() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastWrite
}

// CallCounts reports how many times Drive's write and read phases ran.
func (h *MockHost) CallCounts() (writes, reads int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writeCalls, h.readCalls
}

// Reset clears captured state without changing the host's identity.
func (h *MockHost) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeCalls = 0
	h.readCalls = 0
	h.lastWrite = nil
	h.reads = nil
}

var _ ctrl.Host = (*MockHost)(nil)
