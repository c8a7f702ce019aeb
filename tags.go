// Copyright 2024 Blink Labs Software
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
	"math/big"
	"reflect"
)

const (
	// Useful tag numbers
	CborTagPositiveBignum = 2
	CborTagNegativeBignum = 3
	CborTagCbor           = 24
	CborTagRational       = 30
	CborTagSet            = 258
	CborTagMap            = 259

	// Tag ranges for "alternatives"
	// https://www.ietf.org/archive/id/draft-bormann-cbor-notable-tags-07.html#name-enumerated-alternative-data
	CborTagAlternative1Min = 121
	CborTagAlternative1Max = 127
	CborTagAlternative2Min = 1280
	CborTagAlternative2Max = 1400
	CborTagAlternative3    = 101
)

// Tag represents a tagged item as its tag number and decoded content
type Tag struct {
	Number  uint64
	Content any
}

// RawTag represents a tagged item as its tag number and raw content bytes
type RawTag struct {
	Number  uint64
	Content RawMessage
}

func (t *RawTag) UnmarshalCBOR(data []byte) error {
	major, _, num, n, err := readHead(data, 0)
	if err != nil {
		return err
	}
	if major != CborTypeTag {
		return TypeMismatchError{
			CborType: majorTypeName(major),
			GoType:   "cbor.RawTag",
		}
	}
	decMode, err := getDecMode()
	if err != nil {
		return err
	}
	end, err := skipItem(data, n, 0, decMode.opts.MaxNestedLevels)
	if err != nil {
		return err
	}
	t.Number = num
	t.Content = append(RawMessage{}, data[n:end]...)
	return nil
}

func (t RawTag) MarshalCBOR() ([]byte, error) {
	buf := appendHead(nil, CborTypeTag, t.Number)
	if len(t.Content) == 0 {
		return append(buf, cborNull), nil
	}
	return append(buf, t.Content...), nil
}

// customTagSet maps Go types onto the tag numbers they encode with
var customTagSet = map[reflect.Type]uint64{}

func init() {
	// Build custom tagset
	// Wrapped CBOR
	customTagSet[reflect.TypeOf(WrappedCbor{})] = CborTagCbor
	// Rational numbers
	customTagSet[reflect.TypeOf(Rat{})] = CborTagRational
	// Sets
	customTagSet[reflect.TypeOf(Set{})] = CborTagSet
	// Maps
	customTagSet[reflect.TypeOf(Map{})] = CborTagMap
}

func tagNumberForType(t reflect.Type) (uint64, bool) {
	num, ok := customTagSet[t]
	return num, ok
}

// WrappedCbor corresponds to CBOR tag 24 and is used to encode nested CBOR data
type WrappedCbor []byte

func (w WrappedCbor) Bytes() []byte {
	return w[:]
}

// Rat corresponds to CBOR tag 30 and is used to represent a rational number
type Rat struct {
	*big.Rat
}

func (r *Rat) UnmarshalCBOR(cborData []byte) error {
	var tmpList []any
	if _, err := Decode(cborData, &tmpList); err != nil {
		return err
	}
	if len(tmpList) != 2 {
		return fmt.Errorf(
			"invalid rational number: expected exactly 2 elements, got %d",
			len(tmpList),
		)
	}
	num, err := ratComponentToBigInt(tmpList[0])
	if err != nil {
		return err
	}
	denom, err := ratComponentToBigInt(tmpList[1])
	if err != nil {
		return err
	}
	if denom.Sign() == 0 {
		return errors.New(
			"invalid rational number: denominator cannot be zero",
		)
	}
	r.Rat = new(big.Rat).SetFrac(num, denom)
	return nil
}

func ratComponentToBigInt(val any) (*big.Int, error) {
	switch v := val.(type) {
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	case big.Int:
		return &v, nil
	default:
		return nil, fmt.Errorf(
			"invalid rational number component type: %T",
			val,
		)
	}
}

func (r *Rat) MarshalCBOR() ([]byte, error) {
	tmpData := Tag{
		Number: CborTagRational,
		Content: []any{
			r.Num(),
			r.Denom(),
		},
	}
	return Encode(&tmpData)
}

func (r *Rat) ToBigRat() *big.Rat {
	return r.Rat
}

// Set corresponds to CBOR tag 258 and is used to represent a mathematical finite set
type Set []any

// Map corresponds to CBOR tag 259 and is used to represent a map with key/value operations
type Map map[any]any

// SetType is a generic wrapper for a list of items that may be encoded with
// or without the set tag
type SetType[T any] struct {
	DecodeStoreCbor
	useTag bool
	items  []T
}

func NewSetType[T any](items []T, useTag bool) SetType[T] {
	return SetType[T]{
		items:  items,
		useTag: useTag,
	}
}

func (s *SetType[T]) UnmarshalCBOR(data []byte) error {
	var tmpItems []T
	if len(data) > 0 && data[0]&CborTypeMask == CborTypeTag {
		var tmpTag RawTag
		if _, err := Decode(data, &tmpTag); err != nil {
			return err
		}
		if tmpTag.Number != CborTagSet {
			return fmt.Errorf("unexpected tag number: %d", tmpTag.Number)
		}
		if _, err := Decode(tmpTag.Content, &tmpItems); err != nil {
			return err
		}
		s.useTag = true
	} else {
		if _, err := Decode(data, &tmpItems); err != nil {
			return err
		}
		s.useTag = false
	}
	s.items = tmpItems
	s.SetCbor(data)
	return nil
}

func (s *SetType[T]) MarshalCBOR() ([]byte, error) {
	if s.useTag {
		return Encode(
			Tag{
				Number:  CborTagSet,
				Content: s.items,
			},
		)
	}
	return Encode(s.items)
}

// Items returns the list of items in the set
func (s SetType[T]) Items() []T {
	return s.items
}
