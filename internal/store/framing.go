package store

import (
	"encoding/binary"
	"fmt"
)

// On-disk page files are framed as:
//
//	magic (4 bytes, "PBPG") | length (4 bytes, LE uint32) | payload
//
// The length prefix lets Load detect a truncated or otherwise damaged page
// file without relying on the filesystem's own size bookkeeping. (Save
// itself writes to a temporary file and renames it into place, so a Save
// interrupted before the rename leaves the previous page file intact.)
var frameMagic = [4]byte{'P', 'B', 'P', 'G'}

const frameHeaderLen = 4 + 4

// ErrCorruptFrame is returned by decodeFrame when a page file's header
// doesn't match its payload.
var ErrCorruptFrame = fmt.Errorf("store: corrupt page frame")

func encodeFrame(payload []byte) []byte {
	buf := make([]byte, frameHeaderLen+len(payload))
	copy(buf, frameMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[frameHeaderLen:], payload)
	return buf
}

func decodeFrame(raw []byte) ([]byte, error) {
	if len(raw) < frameHeaderLen {
		return nil, ErrCorruptFrame
	}
	if [4]byte(raw[:4]) != frameMagic {
		return nil, ErrCorruptFrame
	}
	n := binary.LittleEndian.Uint32(raw[4:8])
	payload := raw[frameHeaderLen:]
	if uint32(len(payload)) != n {
		return nil, ErrCorruptFrame
	}
	return payload, nil
}
