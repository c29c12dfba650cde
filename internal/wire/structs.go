package wire

import "unsafe"

// FlatObject is the wire descriptor embedded in a transaction's data buffer
// at each offset listed in its offsets array. 24 bytes on the wire:
// tag(4) + flags(4) + binder(8) + cookie(8).
type FlatObject struct {
	Tag    uint32
	Flags  uint32
	Binder uint64 // the object's local_key in its owner's registry
	Cookie uint64
}

var _ [24]byte = [unsafe.Sizeof(FlatObject{})]byte{}

// FlatObjectSize is the marshaled size of a FlatObject.
const FlatObjectSize = 24

// OffsetSize is the marshaled size of one entry in a TransactionData's
// Offsets array.
const OffsetSize = 8

// TransactionData is the payload of a BC_TRANSACTION or BC_REPLY command.
// The target is carried as an (owner, key) pair rather than a raw handle
// number: TargetOwner packed zero means the well-known context manager,
// otherwise TargetOwner/TargetKey name an entry in the owning (target)
// process's registry. The sender's own registry is not consulted, so a
// sender need not hold a reference to the target object.
type TransactionData struct {
	TargetOwner uint64
	TargetKey   uint64
	Code        uint32
	Flags       uint32
	SenderPID   uint32
	SenderEUID  uint32
	Data        []byte
	Offsets     []uint64 // byte offsets into Data where a FlatObject begins
}

// transactionHeaderSize is TargetOwner(8) + TargetKey(8) + Code(4) +
// Flags(4) + SenderPID(4) + SenderEUID(4) + DataSize(4) + OffsetsCount(4).
const transactionHeaderSize = 40

// DeathPayload is the payload of BC_REQUEST_DEATH_NOTIFICATION,
// BC_CLEAR_DEATH_NOTIFICATION, BR_DEAD_BINDER and
// BR_CLEAR_DEATH_NOTIFICATION_DONE. On the BC_* (write) side TargetOwner
// identifies the remote process that owns the watched object; Handle is
// that object's local_key in the owner's registry. On the BR_* (read) side
// TargetOwner is zero and Handle/Cookie simply echo what the caller
// originally registered.
type DeathPayload struct {
	TargetOwner uint64
	Handle      uint64
	Cookie      uint64
}

const deathPayloadSize = 24

// BR_TRANSACTION_COMPLETE, BR_FAILED_REPLY and BR_DEAD_REPLY carry no
// payload: the opcode alone is the whole record.
