package wire

import (
	"encoding/binary"
	"fmt"
)

// MarshalFlatObject encodes a FlatObject into its 24-byte wire form.
func MarshalFlatObject(o *FlatObject) []byte {
	buf := make([]byte, FlatObjectSize)
	binary.LittleEndian.PutUint32(buf[0:4], o.Tag)
	binary.LittleEndian.PutUint32(buf[4:8], o.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], o.Binder)
	binary.LittleEndian.PutUint64(buf[16:24], o.Cookie)
	return buf
}

// UnmarshalFlatObject decodes a FlatObject from its 24-byte wire form.
func UnmarshalFlatObject(buf []byte) (*FlatObject, error) {
	if len(buf) < FlatObjectSize {
		return nil, fmt.Errorf("wire: short flat object buffer: %d bytes", len(buf))
	}
	return &FlatObject{
		Tag:    binary.LittleEndian.Uint32(buf[0:4]),
		Flags:  binary.LittleEndian.Uint32(buf[4:8]),
		Binder: binary.LittleEndian.Uint64(buf[8:16]),
		Cookie: binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// MarshalTransactionData encodes a TransactionData command payload.
func MarshalTransactionData(t *TransactionData) []byte {
	size := transactionHeaderSize + len(t.Data) + len(t.Offsets)*OffsetSize
	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:off+8], t.TargetOwner)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], t.TargetKey)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], t.Code)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], t.Flags)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], t.SenderPID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], t.SenderEUID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(t.Data)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(t.Offsets)))
	off += 4
	off += copy(buf[off:], t.Data)
	for _, o := range t.Offsets {
		binary.LittleEndian.PutUint64(buf[off:off+8], o)
		off += 8
	}
	return buf
}

// UnmarshalTransactionData decodes a TransactionData command payload and
// returns the number of bytes consumed.
func UnmarshalTransactionData(buf []byte) (*TransactionData, int, error) {
	if len(buf) < transactionHeaderSize {
		return nil, 0, fmt.Errorf("wire: short transaction header: %d bytes", len(buf))
	}
	off := 0
	t := &TransactionData{}
	t.TargetOwner = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	t.TargetKey = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	t.Code = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	t.Flags = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	t.SenderPID = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	t.SenderEUID = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	dataSize := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	offsetsCount := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4

	need := int(dataSize) + int(offsetsCount)*OffsetSize
	if len(buf)-off < need {
		return nil, 0, fmt.Errorf("wire: short transaction body: need %d, have %d", need, len(buf)-off)
	}
	t.Data = append([]byte(nil), buf[off:off+int(dataSize)]...)
	off += int(dataSize)
	t.Offsets = make([]uint64, offsetsCount)
	for i := range t.Offsets {
		t.Offsets[i] = binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
	}
	return t, off, nil
}

// MarshalDeathPayload encodes a DeathPayload.
func MarshalDeathPayload(d *DeathPayload) []byte {
	buf := make([]byte, deathPayloadSize)
	binary.LittleEndian.PutUint64(buf[0:8], d.TargetOwner)
	binary.LittleEndian.PutUint64(buf[8:16], d.Handle)
	binary.LittleEndian.PutUint64(buf[16:24], d.Cookie)
	return buf
}

// UnmarshalDeathPayload decodes a DeathPayload.
func UnmarshalDeathPayload(buf []byte) (*DeathPayload, error) {
	if len(buf) < deathPayloadSize {
		return nil, fmt.Errorf("wire: short death payload: %d bytes", len(buf))
	}
	return &DeathPayload{
		TargetOwner: binary.LittleEndian.Uint64(buf[0:8]),
		Handle:      binary.LittleEndian.Uint64(buf[8:16]),
		Cookie:      binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}
