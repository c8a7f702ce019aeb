// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cbor

import (
	"encoding/binary"
	"math"
)

const (
	CborTypeUint       byte = 0x00
	CborTypeNint       byte = 0x20
	CborTypeByteString byte = 0x40
	CborTypeTextString byte = 0x60
	CborTypeArray      byte = 0x80
	CborTypeMap        byte = 0xa0
	CborTypeTag        byte = 0xc0
	CborTypeSimple     byte = 0xe0

	// Only the top 3 bits are used to specify the type
	CborTypeMask byte = 0xe0

	// Max value able to be stored in a single byte without type prefix
	CborMaxUintSimple byte = 0x17
)

// Additional information codes in the low 5 bits of the header byte. Values
// up to 23 hold the length/value directly; 24-27 select how many extra
// big-endian bytes follow; 31 marks an indefinite-length item or break.
const (
	cborAiOneByte    byte = 24
	cborAiTwoBytes   byte = 25
	cborAiFourBytes  byte = 26
	cborAiEightBytes byte = 27
	cborAiIndefinite byte = 31
)

// Simple values and float markers (major type 7)
const (
	cborSimpleFalse     byte = 20
	cborSimpleTrue      byte = 21
	cborSimpleNull      byte = 22
	cborSimpleUndefined byte = 23

	cborFalse       byte = 0xf4
	cborTrue        byte = 0xf5
	cborNull        byte = 0xf6
	cborUndefined   byte = 0xf7
	cborHalfFloat   byte = 0xf9
	cborSingleFloat byte = 0xfa
	cborDoubleFloat byte = 0xfb
	cborBreak       byte = 0xff
)

// appendHead appends the shortest header that can represent val for the given
// major type. This is the canonical/minimal encoding: values up to 23 fit in
// the header byte itself, larger values use the smallest of the 1/2/4/8-byte
// big-endian length modes.
func appendHead(buf []byte, major byte, val uint64) []byte {
	switch {
	case val <= uint64(CborMaxUintSimple):
		return append(buf, major|byte(val))
	case val <= math.MaxUint8:
		return append(buf, major|cborAiOneByte, byte(val))
	case val <= math.MaxUint16:
		buf = append(buf, major|cborAiTwoBytes)
		return binary.BigEndian.AppendUint16(buf, uint16(val))
	case val <= math.MaxUint32:
		buf = append(buf, major|cborAiFourBytes)
		return binary.BigEndian.AppendUint32(buf, uint32(val))
	default:
		buf = append(buf, major|cborAiEightBytes)
		return binary.BigEndian.AppendUint64(buf, val)
	}
}

// headSize returns the number of bytes appendHead would emit for val.
func headSize(val uint64) int {
	switch {
	case val <= uint64(CborMaxUintSimple):
		return 1
	case val <= math.MaxUint8:
		return 2
	case val <= math.MaxUint16:
		return 3
	case val <= math.MaxUint32:
		return 5
	default:
		return 9
	}
}

// readHead parses the item header at data[off]. It returns the major type,
// the raw additional-information code, the decoded length/value, and the
// number of bytes consumed. For major types 0/1 the value is the integer
// magnitude; for types 2-5 it is the byte/element count; for type 6 the tag
// number; for type 7 the simple value or raw float bits. Indefinite-length
// markers return ai == 31 with a zero value.
func readHead(data []byte, off int) (byte, byte, uint64, int, error) {
	if off >= len(data) {
		return 0, 0, 0, 0, UnexpectedEofError{Offset: off}
	}
	hdr := data[off]
	major := hdr & CborTypeMask
	ai := hdr & 0x1f
	var val uint64
	var extra int
	switch {
	case ai <= CborMaxUintSimple:
		val = uint64(ai)
	case ai == cborAiOneByte:
		extra = 1
	case ai == cborAiTwoBytes:
		extra = 2
	case ai == cborAiFourBytes:
		extra = 4
	case ai == cborAiEightBytes:
		extra = 8
	case ai == cborAiIndefinite:
		// Indefinite length is only valid for strings, containers and break
		if major == CborTypeUint || major == CborTypeNint ||
			major == CborTypeTag {
			return 0, 0, 0, 0, SyntaxError{
				Message: "indefinite length not allowed for this major type",
				Offset:  off,
			}
		}
	default:
		return 0, 0, 0, 0, SyntaxError{
			Message: "reserved additional information code",
			Offset:  off,
		}
	}
	if extra > 0 {
		if off+1+extra > len(data) {
			return 0, 0, 0, 0, UnexpectedEofError{Offset: len(data)}
		}
		for i := 0; i < extra; i++ {
			val = val<<8 | uint64(data[off+1+i])
		}
	}
	return major, ai, val, 1 + extra, nil
}

// skipItem returns the offset just past the item starting at data[off]
// without materializing it.
func skipItem(data []byte, off int, depth int, maxDepth int) (int, error) {
	if depth > maxDepth {
		return 0, MaxNestedLevelsError{Limit: maxDepth}
	}
	major, ai, val, n, err := readHead(data, off)
	if err != nil {
		return 0, err
	}
	off += n
	switch major {
	case CborTypeUint, CborTypeNint:
		return off, nil
	case CborTypeByteString, CborTypeTextString:
		if ai == cborAiIndefinite {
			for {
				if off >= len(data) {
					return 0, UnexpectedEofError{Offset: off}
				}
				if data[off] == cborBreak {
					return off + 1, nil
				}
				chunkMajor, chunkAi, chunkLen, chunkN, err := readHead(
					data,
					off,
				)
				if err != nil {
					return 0, err
				}
				if chunkMajor != major || chunkAi == cborAiIndefinite {
					return 0, SyntaxError{
						Message: "invalid indefinite-length string chunk",
						Offset:  off,
					}
				}
				off += chunkN
				if chunkLen > uint64(len(data)-off) {
					return 0, UnexpectedEofError{Offset: len(data)}
				}
				off += int(chunkLen)
			}
		}
		if val > uint64(len(data)-off) {
			return 0, UnexpectedEofError{Offset: len(data)}
		}
		return off + int(val), nil
	case CborTypeArray, CborTypeMap:
		itemsPerEntry := 1
		if major == CborTypeMap {
			itemsPerEntry = 2
		}
		if ai == cborAiIndefinite {
			for {
				if off >= len(data) {
					return 0, UnexpectedEofError{Offset: off}
				}
				if data[off] == cborBreak {
					return off + 1, nil
				}
				for j := 0; j < itemsPerEntry; j++ {
					off, err = skipItem(data, off, depth+1, maxDepth)
					if err != nil {
						return 0, err
					}
				}
			}
		}
		if val > uint64(len(data)-off) {
			// Each entry needs at least one byte per item
			return 0, UnexpectedEofError{Offset: len(data)}
		}
		for j := 0; j < int(val)*itemsPerEntry; j++ {
			off, err = skipItem(data, off, depth+1, maxDepth)
			if err != nil {
				return 0, err
			}
		}
		return off, nil
	case CborTypeTag:
		return skipItem(data, off, depth+1, maxDepth)
	default:
		if ai == cborAiIndefinite {
			return 0, SyntaxError{
				Message: "unexpected break code",
				Offset:  off - n,
			}
		}
		return off, nil
	}
}

// majorTypeName returns a human-readable name for a major type byte,
// used in error messages.
func majorTypeName(major byte) string {
	switch major {
	case CborTypeUint:
		return "positive integer"
	case CborTypeNint:
		return "negative integer"
	case CborTypeByteString:
		return "byte string"
	case CborTypeTextString:
		return "UTF-8 text string"
	case CborTypeArray:
		return "array"
	case CborTypeMap:
		return "map"
	case CborTypeTag:
		return "tag"
	default:
		return "primitives"
	}
}
