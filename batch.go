// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	"encoding/binary"
	"fmt"
	"math"
)

// leafRecord pairs a subtree's shape with its flattened leaf payload, the
// unit Balance and Ghost both move across an AllToAllV call.
type leafRecord struct {
	structure SubtreeStructure
	payload   []float64
}

// encodeBatch frames a slice of leafRecords into one AllToAllV payload: a
// record count, then per record a length-prefixed structure run and a
// length-prefixed float64 vector.
func encodeBatch(numChildren int, records []leafRecord) ([]byte, error) {
	out := appendUint32(nil, uint32(len(records)))
	for _, r := range records {
		sBytes, err := EncodeStructureRun(r.structure, numChildren)
		if err != nil {
			return nil, err
		}
		out = appendUint32(out, uint32(len(sBytes)))
		out = append(out, sBytes...)

		pBytes := encodeFloats(r.payload)
		out = appendUint32(out, uint32(len(pBytes)))
		out = append(out, pBytes...)
	}
	return out, nil
}

// decodeBatch is the inverse of encodeBatch.
func decodeBatch(buf []byte, numChildren int) ([]leafRecord, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("tamra: decode batch: buffer too short")
	}
	n := int(binary.BigEndian.Uint32(buf))
	off := 4
	out := make([]leafRecord, n)
	for i := 0; i < n; i++ {
		if len(buf) < off+4 {
			return nil, fmt.Errorf("tamra: decode batch: truncated structure length")
		}
		sLen := int(binary.BigEndian.Uint32(buf[off:]))
		off += 4
		if len(buf) < off+sLen {
			return nil, fmt.Errorf("tamra: decode batch: truncated structure")
		}
		s, err := DecodeStructureRun(buf[off:off+sLen], numChildren)
		if err != nil {
			return nil, err
		}
		off += sLen

		if len(buf) < off+4 {
			return nil, fmt.Errorf("tamra: decode batch: truncated payload length")
		}
		pLen := int(binary.BigEndian.Uint32(buf[off:]))
		off += 4
		if len(buf) < off+pLen {
			return nil, fmt.Errorf("tamra: decode batch: truncated payload")
		}
		out[i] = leafRecord{structure: s, payload: decodeFloats(buf[off : off+pLen])}
		off += pLen
	}
	return out, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func encodeFloats(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) []float64 {
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[8*i:]))
	}
	return out
}
