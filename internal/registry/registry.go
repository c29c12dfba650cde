// Package registry implements the per-process object table: an ordered map
// keyed by (owner, local_key) recording both objects a process exports and
// references it holds into other processes, plus each object's independent
// death-notifier list.
package registry

import (
	"sync"

	"github.com/openbinder/binder/internal/logging"
	"github.com/openbinder/binder/internal/mqueue"
)

// OwnerKey identifies a process's queue without exposing a raw pointer.
// Generation guards against a reused numeric ID referring to a process that
// has since been released and replaced.
type OwnerKey struct {
	ID         uint64
	Generation uint64
}

// ObjectKey is the registry's map key: the pair (owner, local_key). Owner
// identifies the exporting process's queue; LocalKey is opaque and
// meaningful only to that process.
type ObjectKey struct {
	Owner    OwnerKey
	LocalKey uint64
}

// NotifierKey identifies one death-notifier subscription on an object.
type NotifierKey struct {
	Cookie      uint64
	NotifyQueue OwnerKey
}

// Notifier is a subscription to an object's death, recorded on the object
// it watches and delivered to NotifyQueue when that object's owner releases.
type Notifier struct {
	Handle      uint64 // the notifier's own local_key for the reference, echoed back on BR_DEAD_BINDER
	Cookie      uint64
	NotifyOwner OwnerKey
	NotifyQueue *mqueue.Queue
}

// Object is one entry in a process's registry: either an object the process
// exports (Owner == the registry's own owner key) or a reference it holds
// into another process. Reference objects carry no notifiers.
type Object struct {
	Key        ObjectKey
	OwnerQueue *mqueue.Queue // the owning process's message queue, for delivery
	RealCookie uint64
	Exported   bool // true when Key.Owner is this registry's own owner

	mu        sync.Mutex
	notifiers map[NotifierKey]*Notifier
	strongRef int32
	weakRef   int32
}

// AddNotifier records a death subscription. No-op if one already exists for
// the same key.
func (o *Object) AddNotifier(n *Notifier) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.notifiers == nil {
		o.notifiers = make(map[NotifierKey]*Notifier)
	}
	key := NotifierKey{Cookie: n.Cookie, NotifyQueue: n.NotifyOwner}
	o.notifiers[key] = n
}

// RemoveNotifier removes a matching subscription, reporting whether one was
// found.
func (o *Object) RemoveNotifier(cookie uint64, notifyOwner OwnerKey) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := NotifierKey{Cookie: cookie, NotifyQueue: notifyOwner}
	if _, ok := o.notifiers[key]; !ok {
		return false
	}
	delete(o.notifiers, key)
	return true
}

// DrainNotifiers removes and returns every subscription on this object, for
// death fan-out when its owner is released.
func (o *Object) DrainNotifiers() []*Notifier {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Notifier, 0, len(o.notifiers))
	for _, n := range o.notifiers {
		out = append(out, n)
	}
	o.notifiers = nil
	return out
}

// AddRef adjusts the object's strong/weak reference counters. weak selects
// which counter is adjusted; delta may be negative.
func (o *Object) AddRef(weak bool, delta int32) int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if weak {
		o.weakRef += delta
		return o.weakRef
	}
	o.strongRef += delta
	return o.strongRef
}

// Refs reports the current strong and weak reference counts.
func (o *Object) Refs() (strong, weak int32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.strongRef, o.weakRef
}

// Registry is the ordered map of one process's known objects, both owned
// and referenced.
type Registry struct {
	self OwnerKey

	mu      sync.RWMutex
	objects map[ObjectKey]*Object
	log     *logging.Logger
}

// New creates an empty registry for the process identified by self.
func New(self OwnerKey) *Registry {
	return &Registry{
		self:    self,
		objects: make(map[ObjectKey]*Object),
		log:     logging.Default().With("component", "registry"),
	}
}

// Find looks up an object by its full key.
func (r *Registry) Find(owner OwnerKey, localKey uint64) (*Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[ObjectKey{Owner: owner, LocalKey: localKey}]
	return obj, ok
}

// FindLocal looks up an object this registry's own process exports.
func (r *Registry) FindLocal(localKey uint64) (*Object, bool) {
	return r.Find(r.self, localKey)
}

// InsertOrGet returns the existing entry for (owner, localKey) if present,
// otherwise constructs one via factory and inserts it. Idempotent under
// concurrent callers: if a racing insert wins, the caller's candidate from
// factory is discarded and the winner is returned.
func (r *Registry) InsertOrGet(owner OwnerKey, localKey uint64, factory func() *Object) (obj *Object, inserted bool) {
	key := ObjectKey{Owner: owner, LocalKey: localKey}

	r.mu.RLock()
	if existing, ok := r.objects[key]; ok {
		r.mu.RUnlock()
		return existing, false
	}
	r.mu.RUnlock()

	candidate := factory()
	candidate.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.objects[key]; ok {
		return existing, false
	}
	r.objects[key] = candidate
	return candidate, true
}

// Erase removes an object from the registry.
func (r *Registry) Erase(obj *Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects, obj.Key)
}

// OwnedObjects returns every object this registry's own process exports,
// for death fan-out when the process is released.
func (r *Registry) OwnedObjects() []*Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Object, 0, len(r.objects))
	for _, obj := range r.objects {
		if obj.Exported {
			out = append(out, obj)
		}
	}
	return out
}

// Self returns this registry's own owner key.
func (r *Registry) Self() OwnerKey {
	return r.self
}

// Len reports the number of entries currently held, for diagnostics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
