package vector

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// pageEntry is one page directory slot: where a finalized page's encoded
// bytes sit inside the data region, and how many elements it holds. A
// directory is kept in the header region rather than derived by scanning
// the data region because the compressed codec's pages are not fixed-size
// on disk (spec §4.5 "pages are self-describing... random access... is
// O(page)"); raw pages could be found by arithmetic alone, but sharing one
// addressing scheme across both codecs keeps Update's "rewrite in place if
// it still fits, else relocate" logic codec-agnostic. See DESIGN.md.
type pageEntry struct {
	offset uint64
	length uint32
	count  uint32
}

const headerMagic = "VECHDR1\x00"

// headerState is the full in-memory mirror of the header region's content
// (spec §4.6: "logical length, element size, codec id, codec version, page
// element count, element hole bitmap..., stamp-chain head offset").
type headerState struct {
	codecID          uint16
	codecVersion     uint16
	userVersion      uint16
	elementSize      uint16
	pageElementCount uint32
	length           uint64
	activeBuf        []byte // raw-encoded trailing partial page
	activeCount      uint32
	holes            *holeSet
	pageDir          []pageEntry
	stampChainHead   uint64 // offset in rollback region; noStampHead = none
}

const noStampHead = ^uint64(0)

func encodeHeader(h *headerState) []byte {
	holesBytes := h.holes.encode()

	fixed := 8 + 2 + 2 + 2 + 2 + 4 + 8 + 4 + 8 + 4 + 4 + len(h.activeBuf) + len(holesBytes) + 4 + len(h.pageDir)*16
	buf := make([]byte, fixed)
	off := 0
	copy(buf[off:], headerMagic)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], h.codecID)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], h.codecVersion)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], h.userVersion)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], h.elementSize)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], h.pageElementCount)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.length)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], h.activeCount)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.stampChainHead)
	off += 8

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(h.activeBuf)))
	off += 4
	copy(buf[off:], h.activeBuf)
	off += len(h.activeBuf)

	copy(buf[off:], holesBytes)
	off += len(holesBytes)

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(h.pageDir)))
	off += 4
	for _, p := range h.pageDir {
		binary.LittleEndian.PutUint64(buf[off:], p.offset)
		binary.LittleEndian.PutUint32(buf[off+8:], p.length)
		binary.LittleEndian.PutUint32(buf[off+12:], p.count)
		off += 16
	}

	crc := crc32.ChecksumIEEE(buf[:off])
	crcBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(crcBuf, crc)
	return append(buf[:off], crcBuf...)
}

func decodeHeader(buf []byte) (*headerState, error) {
	if len(buf) < 8+4 || string(buf[:8]) != headerMagic {
		return nil, fmt.Errorf("vector: bad header magic")
	}
	if len(buf) < 4 {
		return nil, fmt.Errorf("vector: header truncated")
	}
	body := buf[:len(buf)-4]
	wantCRC := binary.LittleEndian.Uint32(buf[len(buf)-4:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, fmt.Errorf("vector: header checksum mismatch")
	}

	h := &headerState{}
	off := 8
	h.codecID = binary.LittleEndian.Uint16(body[off:])
	off += 2
	h.codecVersion = binary.LittleEndian.Uint16(body[off:])
	off += 2
	h.userVersion = binary.LittleEndian.Uint16(body[off:])
	off += 2
	h.elementSize = binary.LittleEndian.Uint16(body[off:])
	off += 2
	h.pageElementCount = binary.LittleEndian.Uint32(body[off:])
	off += 4
	h.length = binary.LittleEndian.Uint64(body[off:])
	off += 8
	h.activeCount = binary.LittleEndian.Uint32(body[off:])
	off += 4
	h.stampChainHead = binary.LittleEndian.Uint64(body[off:])
	off += 8

	activeLen := int(binary.LittleEndian.Uint32(body[off:]))
	off += 4
	h.activeBuf = append([]byte(nil), body[off:off+activeLen]...)
	off += activeLen

	holes, n := decodeHoleSet(body[off:])
	h.holes = holes
	off += n

	pageCount := int(binary.LittleEndian.Uint32(body[off:]))
	off += 4
	h.pageDir = make([]pageEntry, pageCount)
	for i := 0; i < pageCount; i++ {
		h.pageDir[i] = pageEntry{
			offset: binary.LittleEndian.Uint64(body[off:]),
			length: binary.LittleEndian.Uint32(body[off+8:]),
			count:  binary.LittleEndian.Uint32(body[off+12:]),
		}
		off += 16
	}

	return h, nil
}
