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
	"errors"
	"fmt"
	"math"
)

// StreamDecoder provides sequential CBOR decoding with position tracking.
// It decodes items one at a time from a byte slice, tracking the byte offset
// of each decoded item.
type StreamDecoder struct {
	decMode DecMode
	data    []byte
	pos     int
}

// NewStreamDecoder creates a decoder for sequential CBOR item extraction with position tracking.
func NewStreamDecoder(data []byte) (*StreamDecoder, error) {
	decMode, err := getDecMode()
	if err != nil {
		return nil, err
	}
	return &StreamDecoder{
		decMode: decMode,
		data:    data,
	}, nil
}

// Position returns the current byte position in the stream.
func (d *StreamDecoder) Position() int {
	return d.pos
}

// Decode decodes the next CBOR item into dest and returns its byte range.
// Returns (startOffset, length, error).
func (d *StreamDecoder) Decode(dest any) (int, int, error) {
	start := d.pos
	n, err := d.decMode.Decode(d.data[d.pos:], dest)
	if err != nil {
		return 0, 0, err
	}
	d.pos += n
	return start, n, nil
}

// Skip skips the next CBOR item and returns its byte range.
// Returns (startOffset, length, error).
func (d *StreamDecoder) Skip() (int, int, error) {
	start := d.pos
	end, err := skipItem(d.data, d.pos, 0, d.decMode.opts.MaxNestedLevels)
	if err != nil {
		return 0, 0, err
	}
	d.pos = end
	return start, end - start, nil
}

// DecodeRaw decodes the next CBOR item and returns both its value and raw bytes.
// Returns (startOffset, rawBytes, error).
func (d *StreamDecoder) DecodeRaw(dest any) (int, []byte, error) {
	start := d.pos
	n, err := d.decMode.Decode(d.data[d.pos:], dest)
	if err != nil {
		return 0, nil, err
	}
	d.pos += n
	return start, d.data[start:d.pos], nil
}

// RawBytes returns the raw bytes for the given offset and length.
func (d *StreamDecoder) RawBytes(offset, length int) []byte {
	// Check for negative values and integer overflow
	if offset < 0 || length < 0 {
		return nil
	}
	end := offset + length
	// Check for integer overflow: if end < offset, overflow occurred
	if end < offset || end > len(d.data) {
		return nil
	}
	return d.data[offset:end]
}

// Data returns the underlying byte slice.
func (d *StreamDecoder) Data() []byte {
	return d.data
}

// EOF returns true if the decoder has reached the end of the data.
func (d *StreamDecoder) EOF() bool {
	return d.pos >= len(d.data)
}

// Advance moves the decoder position forward by n bytes without decoding.
// This is useful for skipping past headers that were parsed manually.
// Returns an error if n would advance past the end of data.
func (d *StreamDecoder) Advance(n int) error {
	if n < 0 {
		return errors.New("cannot advance by negative amount")
	}
	if d.pos+n > len(d.data) {
		return errors.New("advance would exceed data bounds")
	}
	d.pos += n
	return nil
}

// DecodeArrayHeader decodes a CBOR array header and returns the number of elements.
// This advances the position past the header only, not the array contents.
// Returns (arrayLength, headerOffset, headerLength, error).
func (d *StreamDecoder) DecodeArrayHeader() (int, int, int, error) {
	return d.decodeContainerHeader(CborTypeArray)
}

// DecodeMapHeader decodes a CBOR map header and returns the number of key-value pairs.
// This advances the position past the header only, not the map contents.
// Returns (mapLength, headerOffset, headerLength, error).
func (d *StreamDecoder) DecodeMapHeader() (int, int, int, error) {
	return d.decodeContainerHeader(CborTypeMap)
}

func (d *StreamDecoder) decodeContainerHeader(
	wantMajor byte,
) (int, int, int, error) {
	start := d.pos
	if start >= len(d.data) {
		return 0, 0, 0, errors.New("unexpected end of data")
	}
	major, ai, length, headerLen, err := readHead(d.data, start)
	if err != nil {
		return 0, 0, 0, err
	}
	if major != wantMajor {
		return 0, 0, 0, fmt.Errorf(
			"expected %s (0x%x), got 0x%x",
			majorTypeName(wantMajor),
			wantMajor,
			major,
		)
	}
	if ai == cborAiIndefinite {
		return 0, 0, 0, fmt.Errorf(
			"indefinite length %ss not supported in header-only decode",
			majorTypeName(wantMajor),
		)
	}
	// Lengths are capped to int32 to prevent overflow when values are later
	// converted to uint32 for offset calculations
	if length > uint64(math.MaxInt32) {
		return 0, 0, 0, fmt.Errorf(
			"%s length exceeds maximum int32 value",
			majorTypeName(wantMajor),
		)
	}
	d.pos += headerLen
	return int(length), start, headerLen, nil
}

// SkipN skips n CBOR items and returns the total byte range skipped.
// Returns (startOffset, totalLength, error).
func (d *StreamDecoder) SkipN(n int) (int, int, error) {
	if n <= 0 {
		return d.pos, 0, nil
	}
	start := d.pos
	for i := 0; i < n; i++ {
		if _, _, err := d.Skip(); err != nil {
			return 0, 0, fmt.Errorf("skip item %d: %w", i, err)
		}
	}
	return start, d.pos - start, nil
}

// DecodeArrayItems decodes all items in an array, calling the callback for each.
// The callback receives the item index, start offset, and length.
// Returns the total array byte range (including header).
func (d *StreamDecoder) DecodeArrayItems(
	callback func(index int, offset int, length int, data []byte) error,
) (int, int, error) {
	arrayStart := d.pos

	// Decode as array of RawMessage to get each item's bytes
	var items []RawMessage
	if _, _, err := d.Decode(&items); err != nil {
		return 0, 0, fmt.Errorf("decode array: %w", err)
	}

	arrayEnd := d.pos

	// Determine the actual header size from the raw bytes to handle
	// non-canonical encodings correctly
	major, ai, _, headerLen, err := readHead(d.data, arrayStart)
	if err != nil {
		return 0, 0, fmt.Errorf("parse array header: %w", err)
	}
	if major != CborTypeArray || ai == cborAiIndefinite {
		return 0, 0, errors.New("expected definite-length array")
	}

	// The array header is followed by consecutive items
	pos := arrayStart + headerLen
	for i, item := range items {
		itemLen := len(item)
		if callback != nil {
			if err := callback(i, pos, itemLen, []byte(item)); err != nil {
				return 0, 0, err
			}
		}
		pos += itemLen
	}

	return arrayStart, arrayEnd - arrayStart, nil
}

// ArrayInfo extracts array item count and header size from CBOR array data.
// Returns (count, headerSize, isIndefinite). Count is -1 for invalid headers.
func ArrayInfo(data []byte) (int, uint32, bool) {
	return containerInfo(data, CborTypeArray)
}

// MapInfo extracts map item count and header size from CBOR map data.
// Returns (count, headerSize, isIndefinite). Count is -1 for invalid headers.
func MapInfo(data []byte) (int, uint32, bool) {
	return containerInfo(data, CborTypeMap)
}

func containerInfo(data []byte, wantMajor byte) (int, uint32, bool) {
	if len(data) == 0 {
		return -1, 0, false
	}
	if data[0]&CborTypeMask != wantMajor {
		return -1, 0, false
	}
	major, ai, length, headerLen, err := readHead(data, 0)
	if err != nil || major != wantMajor {
		return -1, 0, false
	}
	if ai == cborAiIndefinite {
		return 0, 1, true
	}
	if length > uint64(math.MaxInt32) {
		// Too large to handle
		return -1, 0, false
	}
	return int(length), uint32(headerLen), false
}

// ArrayHeaderSize returns the CBOR header size in bytes for an array of given length.
func ArrayHeaderSize(length int) uint32 {
	if length < 0 {
		return 0
	}
	// Covers up to 2^32 elements
	return uint32(headSize(uint64(length)))
}
