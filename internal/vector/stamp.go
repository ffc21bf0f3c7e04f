package vector

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// pageDelta is the before-image of one page directory slot touched since
// the last stamped flush (spec §4.6 stamped_flush: "reverse delta (list of
// changed page images and the previous length/hole-set)").
type pageDelta struct {
	pageIndex int
	hadPage   bool
	prev      pageEntry
	prevBytes []byte
}

// stampRecord is one entry in the rollback region's append-only log,
// grounded on original_source/crates/vecdb/src/traits/generic.rs's
// stamped_flush_with_changes/rollback_before {stamp, page-index,
// previous-image} record shape (spec §6 "rollback region").
type stampRecord struct {
	stamp           uint64
	prevStampOffset uint64 // noStampHead if this is the first record
	prevLength      uint64
	prevActiveBuf   []byte
	prevActiveCount uint32
	prevHoles       *holeSet
	prevPageDirLen  int
	deltas          []pageDelta
}

func encodeStampRecord(r *stampRecord) []byte {
	holesBytes := r.prevHoles.encode()

	size := 8 + 8 + 8 + 4 + len(r.prevActiveBuf) + 4 + len(holesBytes) + 8 + 4
	for _, d := range r.deltas {
		size += 4 + 1 + 8 + 4 + 4 + 4 + len(d.prevBytes)
	}

	body := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint64(body[off:], r.stamp)
	off += 8
	binary.LittleEndian.PutUint64(body[off:], r.prevStampOffset)
	off += 8
	binary.LittleEndian.PutUint64(body[off:], r.prevLength)
	off += 8

	binary.LittleEndian.PutUint32(body[off:], uint32(len(r.prevActiveBuf)))
	off += 4
	copy(body[off:], r.prevActiveBuf)
	off += len(r.prevActiveBuf)
	binary.LittleEndian.PutUint32(body[off:], r.prevActiveCount)
	off += 4

	copy(body[off:], holesBytes)
	off += len(holesBytes)

	binary.LittleEndian.PutUint64(body[off:], uint64(r.prevPageDirLen))
	off += 8

	binary.LittleEndian.PutUint32(body[off:], uint32(len(r.deltas)))
	off += 4
	for _, d := range r.deltas {
		binary.LittleEndian.PutUint32(body[off:], uint32(d.pageIndex))
		off += 4
		if d.hadPage {
			body[off] = 1
		}
		off++
		binary.LittleEndian.PutUint64(body[off:], d.prev.offset)
		off += 8
		binary.LittleEndian.PutUint32(body[off:], d.prev.length)
		off += 4
		binary.LittleEndian.PutUint32(body[off:], d.prev.count)
		off += 4
		binary.LittleEndian.PutUint32(body[off:], uint32(len(d.prevBytes)))
		off += 4
		copy(body[off:], d.prevBytes)
		off += len(d.prevBytes)
	}

	// [totalLen u32][body...][crc32 u32]; length-prefixed so a reader can
	// walk forward, and the crc guards each record independently per
	// record-level integrity (spec §6 "terminated by a per-record CRC32").
	out := make([]byte, 4+len(body)+4)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(body)))
	copy(out[4:], body)
	crc := crc32.ChecksumIEEE(body)
	binary.LittleEndian.PutUint32(out[4+len(body):], crc)
	return out
}

func decodeStampRecord(buf []byte) (*stampRecord, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("vector: rollback record truncated")
	}
	bodyLen := int(binary.LittleEndian.Uint32(buf[0:4]))
	total := 4 + bodyLen + 4
	if len(buf) < total {
		return nil, 0, fmt.Errorf("vector: rollback record truncated")
	}
	body := buf[4 : 4+bodyLen]
	wantCRC := binary.LittleEndian.Uint32(buf[4+bodyLen:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, 0, fmt.Errorf("%w: rollback record checksum mismatch", ErrNoStampToRoll)
	}

	r := &stampRecord{}
	off := 0
	r.stamp = binary.LittleEndian.Uint64(body[off:])
	off += 8
	r.prevStampOffset = binary.LittleEndian.Uint64(body[off:])
	off += 8
	r.prevLength = binary.LittleEndian.Uint64(body[off:])
	off += 8

	activeLen := int(binary.LittleEndian.Uint32(body[off:]))
	off += 4
	r.prevActiveBuf = append([]byte(nil), body[off:off+activeLen]...)
	off += activeLen
	r.prevActiveCount = binary.LittleEndian.Uint32(body[off:])
	off += 4

	holes, n := decodeHoleSet(body[off:])
	r.prevHoles = holes
	off += n

	r.prevPageDirLen = int(binary.LittleEndian.Uint64(body[off:]))
	off += 8

	deltaCount := int(binary.LittleEndian.Uint32(body[off:]))
	off += 4
	r.deltas = make([]pageDelta, deltaCount)
	for i := 0; i < deltaCount; i++ {
		d := pageDelta{}
		d.pageIndex = int(binary.LittleEndian.Uint32(body[off:]))
		off += 4
		d.hadPage = body[off] == 1
		off++
		d.prev.offset = binary.LittleEndian.Uint64(body[off:])
		off += 8
		d.prev.length = binary.LittleEndian.Uint32(body[off:])
		off += 4
		d.prev.count = binary.LittleEndian.Uint32(body[off:])
		off += 4
		pbLen := int(binary.LittleEndian.Uint32(body[off:]))
		off += 4
		d.prevBytes = append([]byte(nil), body[off:off+pbLen]...)
		off += pbLen
		r.deltas[i] = d
	}

	return r, total, nil
}
