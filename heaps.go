// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"sync"

	"golang.org/x/text/encoding/unicode"
)

// stringsHeap is the "#Strings" heap: UTF-8, NUL-terminated strings
// indexed by byte offset, offset 0 always the empty string. Decoded
// strings are cached: the first lookup of an offset round-trips the
// UTF-8 bytes through a UTF-16 transcoder and interns the result, so
// repeated lookups of the same offset (common for TypeDef/MethodDef
// names referenced from many rows) return the same already-decoded
// string instead of rescanning the heap.
type stringsHeap struct {
	data []byte

	mu    sync.Mutex
	cache map[uint32]string
}

func newStringsHeap(data []byte) stringsHeap {
	return stringsHeap{data: data, cache: map[uint32]string{}}
}

// String returns the NUL-terminated string at offset, or an error if
// offset falls outside the heap.
func (h *stringsHeap) String(offset uint32) (string, error) {
	if offset == 0 {
		return "", nil
	}
	if int(offset) >= len(h.data) {
		return "", ErrOutsideBoundary
	}

	h.mu.Lock()
	if s, ok := h.cache[offset]; ok {
		h.mu.Unlock()
		return s, nil
	}
	h.mu.Unlock()

	end := offset
	for int(end) < len(h.data) && h.data[end] != 0 {
		end++
	}
	if int(end) >= len(h.data) {
		return "", ErrOutsideBoundary
	}

	s, err := transcodeUTF16(h.data[offset:end])
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	h.cache[offset] = s
	h.mu.Unlock()
	return s, nil
}

// transcodeUTF16 round-trips a UTF-8 byte run through UTF-16LE, the same
// decoder/encoder pair the teacher's DecodeUTF16String uses, so the
// interned form matches what a UTF-16-native host would have cached.
func transcodeUTF16(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	u16, err := enc.Bytes(raw)
	if err != nil {
		return "", err
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	back, err := dec.Bytes(u16)
	if err != nil {
		return "", err
	}
	return string(back), nil
}

// guidHeap is the "#GUID" heap: a 1-based array of 16-byte GUIDs.
type guidHeap struct {
	data []byte
}

func newGUIDHeap(data []byte) guidHeap { return guidHeap{data: data} }

// GUID returns the 16 raw bytes of the index'th GUID (1-based; 0 means
// "no GUID").
func (h guidHeap) GUID(index uint32) ([16]byte, error) {
	var g [16]byte
	if index == 0 {
		return g, nil
	}
	start := (index - 1) * 16
	if int(start)+16 > len(h.data) {
		return g, ErrOutsideBoundary
	}
	copy(g[:], h.data[start:start+16])
	return g, nil
}

// blobHeap is the "#Blob" heap: length-prefixed byte blobs indexed by
// byte offset, using the compressed-length encoding of ECMA-335
// §II.24.2.4.
type blobHeap struct {
	data []byte
}

func newBlobHeap(data []byte) blobHeap { return blobHeap{data: data} }

// Blob returns the raw bytes of the blob at offset, with the compressed
// length header stripped off.
func (h blobHeap) Blob(offset uint32) ([]byte, error) {
	if offset == 0 {
		return nil, nil
	}
	n, hdrLen, err := decodeBlobLength(h.data, offset)
	if err != nil {
		return nil, err
	}
	start := offset + hdrLen
	end := uint64(start) + uint64(n)
	if end > uint64(len(h.data)) {
		return nil, ErrOutsideBoundary
	}
	return h.data[start:end], nil
}

// decodeBlobLength decodes the compressed unsigned integer at offset
// that prefixes every blob, per ECMA-335 §II.23.2: a 1-, 2- or 4-byte
// header depending on the top bits of the first byte.
func decodeBlobLength(data []byte, offset uint32) (length uint32, headerLen uint32, err error) {
	if int(offset) >= len(data) {
		return 0, 0, ErrOutsideBoundary
	}
	b0 := data[offset]
	switch {
	case b0&0x80 == 0:
		return uint32(b0), 1, nil
	case b0&0xC0 == 0x80:
		if int(offset)+2 > len(data) {
			return 0, 0, ErrOutsideBoundary
		}
		return (uint32(b0&0x3F) << 8) | uint32(data[offset+1]), 2, nil
	case b0&0xE0 == 0xC0:
		if int(offset)+4 > len(data) {
			return 0, 0, ErrOutsideBoundary
		}
		return (uint32(b0&0x1F) << 24) | (uint32(data[offset+1]) << 16) |
			(uint32(data[offset+2]) << 8) | uint32(data[offset+3]), 4, nil
	default:
		return 0, 0, ErrOutsideBoundary
	}
}
