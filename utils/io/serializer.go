package io

import (
	"encoding/binary"
)

/*
	The on-disk journal formats are defined little-endian regardless of the
	host. The Append helpers grow a buffer; the Put helpers write into a
	preallocated one, so codecs can build a record into a single buffer
	without intermediate allocations.
*/

func AppendUint32(buffer []byte, value uint32) []byte {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], value)
	return append(buffer, scratch[:]...)
}

func AppendUint64(buffer []byte, value uint64) []byte {
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], value)
	return append(buffer, scratch[:]...)
}

func AppendInt64(buffer []byte, value int64) []byte {
	return AppendUint64(buffer, uint64(value))
}

func PutUint32(buffer []byte, value uint32) {
	binary.LittleEndian.PutUint32(buffer, value)
}

func PutUint64(buffer []byte, value uint64) {
	binary.LittleEndian.PutUint64(buffer, value)
}

func PutInt64(buffer []byte, value int64) {
	binary.LittleEndian.PutUint64(buffer, uint64(value))
}

func ToUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func ToUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

func ToInt64(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}
