// Package translate rewrites the embedded object descriptors inside a
// transaction's data buffer as they cross a process boundary, smuggling
// owner identity through the wire cookie field instead of maintaining a
// numeric per-process handle table.
package translate

import (
	"fmt"

	"github.com/openbinder/binder/internal/registry"
	"github.com/openbinder/binder/internal/wire"
)

// PackOwner folds an OwnerKey into a single 64-bit wire value: 32 bits of
// id, 32 bits of generation. Used both for the flat-object cookie field and
// for BC_TRANSACTION's TargetOwner field. This implementation's process
// ids and generations are both scoped well within that range.
func PackOwner(owner registry.OwnerKey) uint64 {
	return uint64(uint32(owner.ID))<<32 | uint64(uint32(owner.Generation))
}

// UnpackOwner reverses PackOwner.
func UnpackOwner(v uint64) registry.OwnerKey {
	return registry.OwnerKey{
		ID:         uint64(uint32(v >> 32)),
		Generation: uint64(uint32(v)),
	}
}

// Write rewrites every embedded descriptor in data (located via offsets)
// from the sending process's point of view. It must run before the message
// is handed off to the target queue.
func Write(reg *registry.Registry, self registry.OwnerKey, data []byte, offsets []uint64) error {
	for _, off := range offsets {
		if off+wire.FlatObjectSize > uint64(len(data)) {
			return fmt.Errorf("translate: offset %d out of range (data len %d)", off, len(data))
		}
		obj, err := wire.UnmarshalFlatObject(data[off : off+wire.FlatObjectSize])
		if err != nil {
			return err
		}

		switch obj.Tag {
		case wire.TagBinder, wire.TagWeakBinder:
			localKey := obj.Binder
			realCookie := obj.Cookie
			reg.InsertOrGet(self, localKey, func() *registry.Object {
				return &registry.Object{Exported: true, RealCookie: realCookie}
			})
			if obj.Tag == wire.TagBinder {
				obj.Tag = wire.TagHandle
			} else {
				obj.Tag = wire.TagWeakHandle
			}
			obj.Cookie = PackOwner(self)

		case wire.TagHandle, wire.TagWeakHandle:
			owner := UnpackOwner(obj.Cookie)
			if _, ok := reg.Find(owner, obj.Binder); !ok {
				return fmt.Errorf("translate: handle %d not found in owner %+v registry", obj.Binder, owner)
			}
			// Already in wire form; owner identity travels unchanged.

		default:
			return fmt.Errorf("translate: invalid descriptor tag %d on write side", obj.Tag)
		}

		copy(data[off:off+wire.FlatObjectSize], wire.MarshalFlatObject(obj))
	}
	return nil
}

// Read rewrites every embedded descriptor in data from the receiving
// process's point of view, restoring descriptors the receiver originally
// exported and materialising reference entries for everything else.
func Read(reg *registry.Registry, self registry.OwnerKey, data []byte, offsets []uint64) error {
	for _, off := range offsets {
		if off+wire.FlatObjectSize > uint64(len(data)) {
			return fmt.Errorf("translate: offset %d out of range (data len %d)", off, len(data))
		}
		obj, err := wire.UnmarshalFlatObject(data[off : off+wire.FlatObjectSize])
		if err != nil {
			return err
		}

		switch obj.Tag {
		case wire.TagHandle, wire.TagWeakHandle:
			owner := UnpackOwner(obj.Cookie)
			if owner == self {
				local, ok := reg.Find(self, obj.Binder)
				if !ok {
					return fmt.Errorf("translate: own object %d missing from registry on read side", obj.Binder)
				}
				if obj.Tag == wire.TagHandle {
					obj.Tag = wire.TagBinder
				} else {
					obj.Tag = wire.TagWeakBinder
				}
				obj.Cookie = local.RealCookie
			} else {
				reg.InsertOrGet(owner, obj.Binder, func() *registry.Object {
					return &registry.Object{Exported: false, RealCookie: obj.Cookie}
				})
				// Cookie field keeps carrying the packed owner identity for
				// any further hop; nothing else to rewrite.
			}

		case wire.TagBinder, wire.TagWeakBinder:
			return fmt.Errorf("translate: raw binder tag %d is a protocol violation on read side", obj.Tag)

		default:
			return fmt.Errorf("translate: invalid descriptor tag %d on read side", obj.Tag)
		}

		copy(data[off:off+wire.FlatObjectSize], wire.MarshalFlatObject(obj))
	}
	return nil
}
