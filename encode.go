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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"reflect"
	"sort"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/x448/float16"
)

var (
	typeTag       = reflect.TypeOf(Tag{})
	typeRawTag    = reflect.TypeOf(RawTag{})
	typeBigInt    = reflect.TypeOf(big.Int{})
	typeMarshaler = reflect.TypeOf((*Marshaler)(nil)).Elem()
)

// SortMode controls the ordering of map keys in encoded output.
type SortMode int

const (
	// SortNone emits map entries in Go iteration order
	SortNone SortMode = iota
	// SortBytewiseLexical orders map entries bytewise by their encoded keys
	SortBytewiseLexical
)

// SortCoreDeterministic is the RFC 8949 core deterministic key order
const SortCoreDeterministic = SortBytewiseLexical

// ShortestFloatMode controls whether floats may be encoded at reduced
// precision when no information is lost.
type ShortestFloatMode int

const (
	// ShortestFloatNone always encodes floats at their native precision
	ShortestFloatNone ShortestFloatMode = iota
	// ShortestFloat16 encodes each float as the shortest of half/single/double
	// precision that represents the value exactly
	ShortestFloat16
)

// EncOptions specifies encoding behavior.
type EncOptions struct {
	Sort          SortMode
	ShortestFloat ShortestFloatMode
}

// EncMode returns an EncMode with immutable options.
func (opts EncOptions) EncMode() (EncMode, error) {
	if opts.Sort < SortNone || opts.Sort > SortBytewiseLexical {
		return EncMode{}, fmt.Errorf("cbor: invalid SortMode %d", opts.Sort)
	}
	if opts.ShortestFloat < ShortestFloatNone ||
		opts.ShortestFloat > ShortestFloat16 {
		return EncMode{}, fmt.Errorf(
			"cbor: invalid ShortestFloatMode %d",
			opts.ShortestFloat,
		)
	}
	return EncMode{opts: opts}, nil
}

// EncMode is a configured encoder mode. The zero value behaves like
// EncOptions{} (no sorting, full float precision).
type EncMode struct {
	opts EncOptions
}

// Marshal encodes data into a new byte slice owned by the caller.
func (em EncMode) Marshal(data any) ([]byte, error) {
	es := &encodeState{opts: em.opts}
	if err := es.encodeValue(reflect.ValueOf(data)); err != nil {
		return nil, err
	}
	return es.buf, nil
}

// NewEncoder returns an Encoder that writes encoded items to w.
func (em EncMode) NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, em: em}
}

// Encoder writes CBOR items to an output stream.
type Encoder struct {
	w  io.Writer
	em EncMode
}

func (e *Encoder) Encode(data any) error {
	enc, err := e.em.Marshal(data)
	if err != nil {
		return err
	}
	_, err = e.w.Write(enc)
	return err
}

func Encode(data interface{}) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	opts := EncOptions{
		// Make sure that maps have ordered keys
		Sort: SortCoreDeterministic,
	}
	em, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	enc := em.NewEncoder(buf)
	err = enc.Encode(data)
	return buf.Bytes(), err
}

type encodeState struct {
	buf  []byte
	opts EncOptions
}

func (es *encodeState) encodeValue(rv reflect.Value) error {
	if !rv.IsValid() {
		es.buf = append(es.buf, cborNull)
		return nil
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		if rv.IsNil() {
			es.buf = append(es.buf, cborNull)
			return nil
		}
	}
	t := rv.Type()
	switch t {
	case typeTag:
		tag := rv.Interface().(Tag)
		es.buf = appendHead(es.buf, CborTypeTag, tag.Number)
		return es.encodeValue(reflect.ValueOf(tag.Content))
	case typeRawTag:
		rawTag := rv.Interface().(RawTag)
		es.buf = appendHead(es.buf, CborTypeTag, rawTag.Number)
		if len(rawTag.Content) == 0 {
			es.buf = append(es.buf, cborNull)
			return nil
		}
		es.buf = append(es.buf, rawTag.Content...)
		return nil
	case typeBigInt:
		tmpInt := rv.Interface().(big.Int)
		es.encodeBigInt(&tmpInt)
		return nil
	}
	if m, ok := marshalerFor(rv); ok {
		data, err := m.MarshalCBOR()
		if err != nil {
			return err
		}
		es.buf = append(es.buf, data...)
		return nil
	}
	if tagNum, ok := tagNumberForType(t); ok {
		es.buf = appendHead(es.buf, CborTypeTag, tagNum)
	}
	return es.encodeKind(rv)
}

// marshalerFor returns the Marshaler for rv, taking its address (or a copy)
// when MarshalCBOR has a pointer receiver.
func marshalerFor(rv reflect.Value) (Marshaler, bool) {
	t := rv.Type()
	if t.Implements(typeMarshaler) {
		return rv.Interface().(Marshaler), true
	}
	if reflect.PointerTo(t).Implements(typeMarshaler) {
		if rv.CanAddr() {
			return rv.Addr().Interface().(Marshaler), true
		}
		tmp := reflect.New(t)
		tmp.Elem().Set(rv)
		return tmp.Interface().(Marshaler), true
	}
	return nil, false
}

func (es *encodeState) encodeKind(rv reflect.Value) error {
	t := rv.Type()
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return es.encodeValue(rv.Elem())
	case reflect.Bool:
		if rv.Bool() {
			es.buf = append(es.buf, cborTrue)
		} else {
			es.buf = append(es.buf, cborFalse)
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Int64:
		v := rv.Int()
		if v >= 0 {
			es.buf = appendHead(es.buf, CborTypeUint, uint64(v))
		} else {
			es.buf = appendHead(es.buf, CborTypeNint, uint64(-(v + 1)))
		}
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:
		es.buf = appendHead(es.buf, CborTypeUint, rv.Uint())
		return nil
	case reflect.Float32:
		es.encodeFloat(rv.Float(), 32)
		return nil
	case reflect.Float64:
		es.encodeFloat(rv.Float(), 64)
		return nil
	case reflect.String:
		s := rv.String()
		es.buf = appendHead(es.buf, CborTypeTextString, uint64(len(s)))
		es.buf = append(es.buf, s...)
		return nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			var b []byte
			if rv.Kind() == reflect.Slice {
				b = rv.Bytes()
			} else {
				b = make([]byte, rv.Len())
				reflect.Copy(reflect.ValueOf(b), rv)
			}
			es.buf = appendHead(es.buf, CborTypeByteString, uint64(len(b)))
			es.buf = append(es.buf, b...)
			return nil
		}
		es.buf = appendHead(es.buf, CborTypeArray, uint64(rv.Len()))
		for i := 0; i < rv.Len(); i++ {
			if err := es.encodeValue(rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		return es.encodeMap(rv)
	case reflect.Struct:
		return es.encodeStruct(rv)
	default:
		return fmt.Errorf("cbor: unsupported type: %s", t)
	}
}

type encodedMapPair struct {
	key   []byte
	value []byte
}

func (es *encodeState) encodeMap(rv reflect.Value) error {
	es.buf = appendHead(es.buf, CborTypeMap, uint64(rv.Len()))
	if es.opts.Sort == SortNone {
		iter := rv.MapRange()
		for iter.Next() {
			if err := es.encodeValue(iter.Key()); err != nil {
				return err
			}
			if err := es.encodeValue(iter.Value()); err != nil {
				return err
			}
		}
		return nil
	}
	// Encode each pair separately so the entries can be ordered bytewise by
	// encoded key
	pairs := make([]encodedMapPair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		keyState := &encodeState{opts: es.opts}
		if err := keyState.encodeValue(iter.Key()); err != nil {
			return err
		}
		valueState := &encodeState{opts: es.opts}
		if err := valueState.encodeValue(iter.Value()); err != nil {
			return err
		}
		pairs = append(
			pairs,
			encodedMapPair{key: keyState.buf, value: valueState.buf},
		)
	}
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].key, pairs[j].key) < 0
	})
	for _, pair := range pairs {
		es.buf = append(es.buf, pair.key...)
		es.buf = append(es.buf, pair.value...)
	}
	return nil
}

func (es *encodeState) encodeStruct(rv reflect.Value) error {
	sf := cachedStructFields(rv.Type())
	if sf.asArray {
		es.buf = appendHead(es.buf, CborTypeArray, uint64(len(sf.fields)))
		for _, field := range sf.fields {
			if err := es.encodeValue(rv.FieldByIndex(field.idx)); err != nil {
				return err
			}
		}
		return nil
	}
	// Fields are emitted as text-string keys in declaration order
	include := make([]structField, 0, len(sf.fields))
	for _, field := range sf.fields {
		if field.omitEmpty && rv.FieldByIndex(field.idx).IsZero() {
			continue
		}
		include = append(include, field)
	}
	es.buf = appendHead(es.buf, CborTypeMap, uint64(len(include)))
	for _, field := range include {
		es.buf = appendHead(
			es.buf,
			CborTypeTextString,
			uint64(len(field.name)),
		)
		es.buf = append(es.buf, field.name...)
		if err := es.encodeValue(rv.FieldByIndex(field.idx)); err != nil {
			return err
		}
	}
	return nil
}

var bigIntOne = big.NewInt(1)

func (es *encodeState) encodeBigInt(v *big.Int) {
	if v.Sign() >= 0 {
		if v.IsUint64() {
			es.buf = appendHead(es.buf, CborTypeUint, v.Uint64())
			return
		}
		b := v.Bytes()
		es.buf = appendHead(es.buf, CborTypeTag, CborTagPositiveBignum)
		es.buf = appendHead(es.buf, CborTypeByteString, uint64(len(b)))
		es.buf = append(es.buf, b...)
		return
	}
	// Wire value for a negative integer is -(magnitude + 1)
	magnitude := new(big.Int).Neg(v)
	magnitude.Sub(magnitude, bigIntOne)
	if magnitude.IsUint64() {
		es.buf = appendHead(es.buf, CborTypeNint, magnitude.Uint64())
		return
	}
	b := magnitude.Bytes()
	es.buf = appendHead(es.buf, CborTypeTag, CborTagNegativeBignum)
	es.buf = appendHead(es.buf, CborTypeByteString, uint64(len(b)))
	es.buf = append(es.buf, b...)
}

func (es *encodeState) encodeFloat(f float64, bits int) {
	if es.opts.ShortestFloat == ShortestFloat16 {
		if math.IsNaN(f) {
			es.buf = append(es.buf, cborHalfFloat, 0x7e, 0x00)
			return
		}
		f32 := float32(f)
		if float64(f32) == f {
			if float16.PrecisionFromfloat32(f32) == float16.PrecisionExact {
				es.buf = append(es.buf, cborHalfFloat)
				es.buf = binary.BigEndian.AppendUint16(
					es.buf,
					float16.Fromfloat32(f32).Bits(),
				)
				return
			}
			es.buf = append(es.buf, cborSingleFloat)
			es.buf = binary.BigEndian.AppendUint32(
				es.buf,
				math.Float32bits(f32),
			)
			return
		}
	}
	if bits == 32 {
		es.buf = append(es.buf, cborSingleFloat)
		es.buf = binary.BigEndian.AppendUint32(
			es.buf,
			math.Float32bits(float32(f)),
		)
		return
	}
	es.buf = append(es.buf, cborDoubleFloat)
	es.buf = binary.BigEndian.AppendUint64(es.buf, math.Float64bits(f))
}

var encodeGenericTypeCache = map[reflect.Type]reflect.Type{}
var encodeGenericTypeCacheMutex sync.RWMutex

// EncodeGeneric encodes the specified object to CBOR without using the source object's
// MarshalCBOR() function
func EncodeGeneric(src interface{}) ([]byte, error) {
	// Get source type
	valueSrc := reflect.ValueOf(src)
	typeSrc := valueSrc.Elem().Type()
	// Check type cache
	encodeGenericTypeCacheMutex.RLock()
	tmpTypeSrc, ok := encodeGenericTypeCache[typeSrc]
	encodeGenericTypeCacheMutex.RUnlock()
	if !ok {
		// Create a duplicate(-ish) struct from the destination
		// We do this so that we can bypass any custom MarshalCBOR() function on the
		// source object
		if valueSrc.Kind() != reflect.Pointer ||
			valueSrc.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("source must be a pointer to a struct")
		}
		srcTypeFields := []reflect.StructField{}
		for i := 0; i < typeSrc.NumField(); i++ {
			tmpField := typeSrc.Field(i)
			if tmpField.IsExported() && tmpField.Name != "DecodeStoreCbor" {
				srcTypeFields = append(srcTypeFields, tmpField)
			}
		}
		tmpTypeSrc = reflect.StructOf(srcTypeFields)
		// Populate cache
		encodeGenericTypeCacheMutex.Lock()
		encodeGenericTypeCache[typeSrc] = tmpTypeSrc
		encodeGenericTypeCacheMutex.Unlock()
	}
	// Create temporary object with the type created above
	tmpSrc := reflect.New(tmpTypeSrc)
	// Copy values from source object into temporary object
	if err := copier.Copy(tmpSrc.Interface(), src); err != nil {
		return nil, err
	}
	// Encode temporary object into CBOR
	cborData, err := Encode(tmpSrc.Interface())
	if err != nil {
		return nil, err
	}
	return cborData, nil
}

type IndefLengthList []any

func (i IndefLengthList) MarshalCBOR() ([]byte, error) {
	ret := []byte{
		// Start indefinite-length list
		0x9f,
	}
	for _, item := range []any(i) {
		data, err := Encode(&item)
		if err != nil {
			return nil, err
		}
		ret = append(ret, data...)
	}
	ret = append(
		ret,
		// End indefinite length array
		byte(0xff),
	)
	return ret, nil
}

type IndefLengthByteString []any

func (i IndefLengthByteString) MarshalCBOR() ([]byte, error) {
	ret := []byte{
		// Start indefinite-length bytestring
		0x5f,
	}
	for _, item := range []any(i) {
		data, err := Encode(&item)
		if err != nil {
			return nil, err
		}
		ret = append(ret, data...)
	}
	ret = append(
		ret,
		// End indefinite length bytestring
		byte(0xff),
	)
	return ret, nil
}
