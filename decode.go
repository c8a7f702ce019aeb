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
	"math/big"
	"reflect"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/jinzhu/copier"
	"github.com/x448/float16"
)

var typeSimpleValue = reflect.TypeOf(SimpleValue(0))

// DecOptions specifies decoding behavior.
type DecOptions struct {
	// DisallowUnknownFields causes decoding to return an error when a map key
	// has no matching field in the destination struct instead of skipping it
	DisallowUnknownFields bool
	// MaxNestedLevels limits container nesting depth. Zero means the default
	// of 32.
	MaxNestedLevels int
}

// DecMode returns a DecMode with immutable options.
func (opts DecOptions) DecMode() (DecMode, error) {
	if opts.MaxNestedLevels == 0 {
		opts.MaxNestedLevels = 32
	}
	if opts.MaxNestedLevels < 4 || opts.MaxNestedLevels > 65535 {
		return DecMode{}, fmt.Errorf(
			"cbor: invalid MaxNestedLevels %d",
			opts.MaxNestedLevels,
		)
	}
	return DecMode{opts: opts}, nil
}

// DecMode is a configured decoder mode.
type DecMode struct {
	opts DecOptions
}

// Decode decodes a single item from data into dest, which must be a non-nil
// pointer. It returns the number of bytes consumed; trailing bytes after the
// first item are not an error.
func (dm DecMode) Decode(data []byte, dest any) (int, error) {
	opts := dm.opts
	if opts.MaxNestedLevels == 0 {
		opts.MaxNestedLevels = 32
	}
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, errors.New("cbor: destination must be a non-nil pointer")
	}
	ds := &decodeState{data: data, opts: opts}
	if err := ds.decodeValue(rv); err != nil {
		return ds.off, err
	}
	return ds.off, nil
}

var (
	cachedDecMode     DecMode
	cachedDecModeErr  error
	cachedDecModeOnce sync.Once
)

// getDecMode returns a cached DecMode, initializing it on first use.
// Uses sync.Once for thread-safe lazy initialization.
// Returns the cached error if initialization failed.
func getDecMode() (DecMode, error) {
	cachedDecModeOnce.Do(func() {
		decOptions := DecOptions{
			// This defaults to 32, but there is data in the wild using >64
			// nested levels
			MaxNestedLevels: 256,
		}
		cachedDecMode, cachedDecModeErr = decOptions.DecMode()
	})
	return cachedDecMode, cachedDecModeErr
}

func Decode(dataBytes []byte, dest any) (int, error) {
	decMode, err := getDecMode()
	if err != nil {
		return 0, err
	}
	return decMode.Decode(dataBytes, dest)
}

// Extract the first item from a CBOR list. This will return the first item from the
// provided list if it's numeric and an error otherwise
func DecodeIdFromList(cborData []byte) (int, error) {
	// If the list length is <= the max simple uint and the first list value
	// is <= the max simple uint, then we can extract the value straight from
	// the byte slice
	listLen, err := ListLength(cborData)
	if err != nil {
		return 0, err
	}
	if listLen == 0 {
		return 0, errors.New("cannot return first item from empty list")
	}
	if listLen < int(CborMaxUintSimple) {
		if cborData[1] <= CborMaxUintSimple {
			return int(cborData[1]), nil
		}
	}
	// If we couldn't use the shortcut above, actually decode the list
	var tmp Value
	if _, err := Decode(cborData, &tmp); err != nil {
		return 0, err
	}
	// Make sure that the value is actually a slice
	val := tmp.Value()
	list, ok := val.([]any)
	if !ok {
		return 0, fmt.Errorf("decoded value was not a list, found: %T", val)
	}
	if len(list) == 0 {
		return 0, errors.New("cannot return first item from empty list")
	}
	// Make sure that the first item is actually numeric
	switch v := list[0].(type) {
	// Small numeric values decode as uint64
	case uint64:
		if v > uint64(math.MaxInt) {
			return 0, errors.New(
				"decoded numeric value too large: uint64 > int",
			)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("first list item was not numeric, found: %v", v)
	}
}

// Determine the length of a CBOR list
func ListLength(cborData []byte) (int, error) {
	if len(cborData) == 0 {
		return 0, UnexpectedEofError{Offset: 0}
	}
	// If the list length is <= the max simple uint, then we can extract the length
	// value straight from the byte slice (with a little math)
	if cborData[0] >= CborTypeArray &&
		cborData[0] <= (CborTypeArray+CborMaxUintSimple) {
		return int(cborData[0]) - int(CborTypeArray), nil
	}
	// If we couldn't use the shortcut above, actually decode the list
	var tmp []RawMessage
	if _, err := Decode(cborData, &tmp); err != nil {
		return 0, err
	}
	return len(tmp), nil
}

// Decode CBOR list data by the leading value of each list item. It expects CBOR data and
// a map of numbers to object pointers to decode into
func DecodeById(
	cborData []byte,
	idMap map[int]any,
) (any, error) {
	id, err := DecodeIdFromList(cborData)
	if err != nil {
		return nil, err
	}
	ret, ok := idMap[id]
	if !ok || ret == nil {
		return nil, fmt.Errorf("found unknown ID: %x", id)
	}
	if _, err := Decode(cborData, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

var (
	decodeGenericTypeCache      = map[reflect.Type]reflect.Type{}
	decodeGenericTypeCacheMutex sync.RWMutex
)

// DecodeGeneric decodes the specified CBOR into the destination object without using the
// destination object's UnmarshalCBOR() function
func DecodeGeneric(cborData []byte, dest any) error {
	// Get destination type
	valueDest := reflect.ValueOf(dest)
	typeDest := valueDest.Elem().Type()
	// Check type cache
	decodeGenericTypeCacheMutex.RLock()
	tmpTypeDest, ok := decodeGenericTypeCache[typeDest]
	decodeGenericTypeCacheMutex.RUnlock()
	if !ok {
		// Create a duplicate(-ish) struct from the destination
		// We do this so that we can bypass any custom UnmarshalCBOR() function on the
		// destination object
		if valueDest.Kind() != reflect.Pointer ||
			valueDest.Elem().Kind() != reflect.Struct {
			return errors.New("destination must be a pointer to a struct")
		}
		destTypeFields := []reflect.StructField{}
		for i := 0; i < typeDest.NumField(); i++ {
			tmpField := typeDest.Field(i)
			if tmpField.IsExported() && tmpField.Name != "DecodeStoreCbor" {
				destTypeFields = append(destTypeFields, tmpField)
			}
		}
		tmpTypeDest = reflect.StructOf(destTypeFields)
		// Populate cache
		decodeGenericTypeCacheMutex.Lock()
		decodeGenericTypeCache[typeDest] = tmpTypeDest
		decodeGenericTypeCacheMutex.Unlock()
	}
	// Create temporary object with the type created above
	tmpDest := reflect.New(tmpTypeDest)
	// Decode CBOR into temporary object
	if _, err := Decode(cborData, tmpDest.Interface()); err != nil {
		return err
	}
	// Copy values from temporary object into destination object
	if err := copier.Copy(dest, tmpDest.Interface()); err != nil {
		return err
	}
	return nil
}

type decodeState struct {
	data  []byte
	off   int
	depth int
	opts  DecOptions
}

// decodeValue decodes the next item into rv, resolving pointers and checking
// for custom unmarshalers along the way.
func (ds *decodeState) decodeValue(rv reflect.Value) error {
	if ds.depth > ds.opts.MaxNestedLevels {
		return MaxNestedLevelsError{Limit: ds.opts.MaxNestedLevels}
	}
	if ds.off >= len(ds.data) {
		return UnexpectedEofError{Offset: ds.off}
	}
	isNull := ds.data[ds.off] == cborNull || ds.data[ds.off] == cborUndefined

	v := rv
	for {
		if v.Kind() == reflect.Interface && !v.IsNil() {
			elem := v.Elem()
			if elem.Kind() == reflect.Pointer && !elem.IsNil() {
				v = elem
				continue
			}
		}
		if v.Kind() != reflect.Pointer {
			break
		}
		// null clears the pointer itself rather than the pointed-to value
		if isNull && v.CanSet() {
			v.SetZero()
			ds.off++
			return nil
		}
		if v.IsNil() {
			if !v.CanSet() {
				return fmt.Errorf(
					"cbor: cannot decode into nil %s",
					v.Type(),
				)
			}
			v.Set(reflect.New(v.Type().Elem()))
		}
		// Types registered against a tag number and types with custom
		// unmarshalers take over before the pointer is dereferenced
		if tagNum, ok := tagNumberForType(v.Type().Elem()); ok {
			return ds.decodeRegisteredTag(v.Elem(), tagNum)
		}
		if u, ok := v.Interface().(Unmarshaler); ok {
			return ds.decodeUnmarshaler(u)
		}
		v = v.Elem()
	}

	t := v.Type()
	if tagNum, ok := tagNumberForType(t); ok {
		return ds.decodeRegisteredTag(v, tagNum)
	}
	if v.CanAddr() {
		if u, ok := v.Addr().Interface().(Unmarshaler); ok {
			return ds.decodeUnmarshaler(u)
		}
	}
	if isNull {
		v.SetZero()
		ds.off++
		return nil
	}
	switch t {
	case typeTag:
		return ds.decodeTag(v)
	case typeBigInt:
		i, err := ds.decodeBigInt()
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(*i))
		return nil
	}
	return ds.decodeForKind(v)
}

// decodeUnmarshaler hands the complete encoding of the next item to a custom
// unmarshaler. The bytes are copied so the unmarshaler may retain them.
func (ds *decodeState) decodeUnmarshaler(u Unmarshaler) error {
	end, err := skipItem(ds.data, ds.off, ds.depth, ds.opts.MaxNestedLevels)
	if err != nil {
		return err
	}
	item := make([]byte, end-ds.off)
	copy(item, ds.data[ds.off:end])
	if err := u.UnmarshalCBOR(item); err != nil {
		return err
	}
	ds.off = end
	return nil
}

// decodeRegisteredTag decodes an item whose destination type is bound to a
// tag number. The tag head is optional on the wire; when present it must
// match the registered number. The tag content is then decoded into the
// destination, with any custom unmarshaler receiving the content bytes only.
func (ds *decodeState) decodeRegisteredTag(
	v reflect.Value,
	tagNum uint64,
) error {
	if ds.off < len(ds.data) &&
		ds.data[ds.off]&CborTypeMask == CborTypeTag {
		startOff := ds.off
		_, _, num, n, err := readHead(ds.data, ds.off)
		if err != nil {
			return err
		}
		if num != tagNum {
			return SyntaxError{
				Message: fmt.Sprintf(
					"wrong tag number %d for type %s, expected %d",
					num,
					v.Type(),
					tagNum,
				),
				Offset: startOff,
			}
		}
		ds.off += n
	}
	if v.CanAddr() {
		if u, ok := v.Addr().Interface().(Unmarshaler); ok {
			return ds.decodeUnmarshaler(u)
		}
	}
	return ds.decodeForKind(v)
}

func (ds *decodeState) decodeTag(v reflect.Value) error {
	major, _, num, n, err := readHead(ds.data, ds.off)
	if err != nil {
		return err
	}
	if major != CborTypeTag {
		return TypeMismatchError{
			CborType: majorTypeName(major),
			GoType:   v.Type().String(),
		}
	}
	ds.off += n
	var content any
	ds.depth++
	err = ds.decodeValue(reflect.ValueOf(&content))
	ds.depth--
	if err != nil {
		return err
	}
	v.Set(reflect.ValueOf(Tag{Number: num, Content: content}))
	return nil
}

// decodeBigInt reads an integer of any size as a big.Int. It accepts plain
// integers as well as the bignum tags.
func (ds *decodeState) decodeBigInt() (*big.Int, error) {
	major, _, val, n, err := readHead(ds.data, ds.off)
	if err != nil {
		return nil, err
	}
	switch major {
	case CborTypeUint:
		ds.off += n
		return new(big.Int).SetUint64(val), nil
	case CborTypeNint:
		ds.off += n
		i := new(big.Int).SetUint64(val)
		i.Add(i, bigIntOne)
		return i.Neg(i), nil
	case CborTypeTag:
		if val != CborTagPositiveBignum && val != CborTagNegativeBignum {
			return nil, TypeMismatchError{
				CborType: majorTypeName(major),
				GoType:   "big.Int",
			}
		}
		ds.off += n
		return ds.decodeBignumContent(val == CborTagNegativeBignum)
	default:
		return nil, TypeMismatchError{
			CborType: majorTypeName(major),
			GoType:   "big.Int",
		}
	}
}

// decodeBignumContent reads the byte-string content of a bignum tag. The
// bytes are an unsigned big-endian magnitude; negative bignums represent
// -(magnitude + 1).
func (ds *decodeState) decodeBignumContent(negative bool) (*big.Int, error) {
	major, ai, _, _, err := readHead(ds.data, ds.off)
	if err != nil {
		return nil, err
	}
	if major != CborTypeByteString {
		return nil, SyntaxError{
			Message: "bignum content must be a byte string",
			Offset:  ds.off,
		}
	}
	b, err := ds.readString(major, ai)
	if err != nil {
		return nil, err
	}
	i := new(big.Int).SetBytes(b)
	if negative {
		i.Add(i, bigIntOne)
		i.Neg(i)
	}
	return i, nil
}

// readString reads a definite or indefinite-length string item of the given
// major type, returning a copy of the content bytes.
func (ds *decodeState) readString(major byte, ai byte) ([]byte, error) {
	_, _, val, n, err := readHead(ds.data, ds.off)
	if err != nil {
		return nil, err
	}
	ds.off += n
	if ai == cborAiIndefinite {
		out := []byte{}
		for {
			if ds.off >= len(ds.data) {
				return nil, UnexpectedEofError{Offset: ds.off}
			}
			if ds.data[ds.off] == cborBreak {
				ds.off++
				return out, nil
			}
			chunkMajor, chunkAi, chunkLen, chunkN, err := readHead(
				ds.data,
				ds.off,
			)
			if err != nil {
				return nil, err
			}
			if chunkMajor != major || chunkAi == cborAiIndefinite {
				return nil, SyntaxError{
					Message: "invalid indefinite-length string chunk",
					Offset:  ds.off,
				}
			}
			ds.off += chunkN
			if chunkLen > uint64(len(ds.data)-ds.off) {
				return nil, UnexpectedEofError{Offset: len(ds.data)}
			}
			out = append(out, ds.data[ds.off:ds.off+int(chunkLen)]...)
			ds.off += int(chunkLen)
		}
	}
	if val > uint64(len(ds.data)-ds.off) {
		return nil, UnexpectedEofError{Offset: len(ds.data)}
	}
	out := make([]byte, val)
	copy(out, ds.data[ds.off:])
	ds.off += int(val)
	return out, nil
}

func (ds *decodeState) decodeForKind(v reflect.Value) error {
	if ds.off >= len(ds.data) {
		return UnexpectedEofError{Offset: ds.off}
	}
	if ds.data[ds.off] == cborNull || ds.data[ds.off] == cborUndefined {
		v.SetZero()
		ds.off++
		return nil
	}
	if v.Kind() == reflect.Interface && v.NumMethod() == 0 {
		item, err := ds.decodeAny()
		if err != nil {
			return err
		}
		if item == nil {
			v.SetZero()
			return nil
		}
		v.Set(reflect.ValueOf(item))
		return nil
	}
	t := v.Type()
	startOff := ds.off
	major, ai, headVal, n, err := readHead(ds.data, ds.off)
	if err != nil {
		return err
	}
	switch major {
	case CborTypeUint, CborTypeNint:
		ds.off += n
		return ds.setInt(v, major, headVal)
	case CborTypeByteString:
		b, err := ds.readString(major, ai)
		if err != nil {
			return err
		}
		switch {
		case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
			v.SetBytes(b)
			return nil
		case t.Kind() == reflect.Array && t.Elem().Kind() == reflect.Uint8:
			if len(b) != t.Len() {
				return TypeMismatchError{
					CborType: majorTypeName(major),
					GoType:   t.String(),
				}
			}
			reflect.Copy(v, reflect.ValueOf(b))
			return nil
		}
		return TypeMismatchError{
			CborType: majorTypeName(major),
			GoType:   t.String(),
		}
	case CborTypeTextString:
		b, err := ds.readString(major, ai)
		if err != nil {
			return err
		}
		if !utf8.Valid(b) {
			return InvalidUtf8Error{Offset: startOff}
		}
		if t.Kind() != reflect.String {
			return TypeMismatchError{
				CborType: majorTypeName(major),
				GoType:   t.String(),
			}
		}
		v.SetString(string(b))
		return nil
	case CborTypeArray:
		return ds.decodeArrayInto(v, ai, headVal, n)
	case CborTypeMap:
		return ds.decodeMapInto(v, ai, headVal, n)
	case CborTypeTag:
		ds.off += n
		// bignum tags can decode into integer destinations
		if headVal == CborTagPositiveBignum ||
			headVal == CborTagNegativeBignum {
			i, err := ds.decodeBignumContent(
				headVal == CborTagNegativeBignum,
			)
			if err != nil {
				return err
			}
			return ds.setBigInt(v, i)
		}
		// other tags are dropped and the content decoded directly
		ds.depth++
		err := ds.decodeValue(v)
		ds.depth--
		return err
	default:
		ds.off += n
		return ds.decodeSimpleInto(v, ai, headVal, startOff)
	}
}

func (ds *decodeState) decodeSimpleInto(
	v reflect.Value,
	ai byte,
	headVal uint64,
	startOff int,
) error {
	t := v.Type()
	switch ai {
	case cborAiIndefinite:
		return SyntaxError{
			Message: "unexpected break code",
			Offset:  startOff,
		}
	case cborAiTwoBytes:
		return ds.setFloat(
			v,
			float64(float16.Frombits(uint16(headVal)).Float32()),
		)
	case cborAiFourBytes:
		return ds.setFloat(v, float64(math.Float32frombits(uint32(headVal))))
	case cborAiEightBytes:
		return ds.setFloat(v, math.Float64frombits(headVal))
	}
	switch headVal {
	case uint64(cborSimpleFalse), uint64(cborSimpleTrue):
		if t.Kind() != reflect.Bool {
			return TypeMismatchError{
				CborType: majorTypeName(CborTypeSimple),
				GoType:   t.String(),
			}
		}
		v.SetBool(headVal == uint64(cborSimpleTrue))
		return nil
	default:
		if t == typeSimpleValue {
			v.Set(reflect.ValueOf(SimpleValue(headVal)))
			return nil
		}
		return TypeMismatchError{
			CborType: majorTypeName(CborTypeSimple),
			GoType:   t.String(),
		}
	}
}

func (ds *decodeState) setInt(v reflect.Value, major byte, wireVal uint64) error {
	t := v.Type()
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Int64:
		if wireVal > math.MaxInt64 {
			return OverflowError{
				Value:  intValueString(major, wireVal),
				GoType: t.String(),
			}
		}
		iv := int64(wireVal)
		if major == CborTypeNint {
			iv = -1 - iv
		}
		if v.OverflowInt(iv) {
			return OverflowError{
				Value:  intValueString(major, wireVal),
				GoType: t.String(),
			}
		}
		v.SetInt(iv)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:
		if major == CborTypeNint {
			return TypeMismatchError{
				CborType: majorTypeName(major),
				GoType:   t.String(),
			}
		}
		if v.OverflowUint(wireVal) {
			return OverflowError{
				Value:  intValueString(major, wireVal),
				GoType: t.String(),
			}
		}
		v.SetUint(wireVal)
		return nil
	default:
		return TypeMismatchError{
			CborType: majorTypeName(major),
			GoType:   t.String(),
		}
	}
}

func (ds *decodeState) setBigInt(v reflect.Value, i *big.Int) error {
	t := v.Type()
	if t == typeBigInt {
		v.Set(reflect.ValueOf(*i))
		return nil
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Int64:
		if !i.IsInt64() || v.OverflowInt(i.Int64()) {
			return OverflowError{Value: i.String(), GoType: t.String()}
		}
		v.SetInt(i.Int64())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:
		if i.Sign() < 0 {
			return TypeMismatchError{
				CborType: majorTypeName(CborTypeNint),
				GoType:   t.String(),
			}
		}
		if !i.IsUint64() || v.OverflowUint(i.Uint64()) {
			return OverflowError{Value: i.String(), GoType: t.String()}
		}
		v.SetUint(i.Uint64())
		return nil
	case reflect.Interface:
		if v.NumMethod() == 0 {
			v.Set(reflect.ValueOf(*i))
			return nil
		}
	}
	return TypeMismatchError{
		CborType: majorTypeName(CborTypeTag),
		GoType:   t.String(),
	}
}

func (ds *decodeState) setFloat(v reflect.Value, f float64) error {
	t := v.Type()
	switch v.Kind() {
	case reflect.Float64:
		v.SetFloat(f)
		return nil
	case reflect.Float32:
		// Narrowing is only allowed when no precision is lost
		f32 := float32(f)
		if float64(f32) != f && !math.IsNaN(f) {
			return OverflowError{
				Value:  strconv.FormatFloat(f, 'g', -1, 64),
				GoType: t.String(),
			}
		}
		v.SetFloat(f)
		return nil
	default:
		return TypeMismatchError{
			CborType: majorTypeName(CborTypeSimple),
			GoType:   t.String(),
		}
	}
}

func (ds *decodeState) decodeArrayInto(
	v reflect.Value,
	ai byte,
	count uint64,
	headLen int,
) error {
	t := v.Type()
	indefinite := ai == cborAiIndefinite
	switch t.Kind() {
	case reflect.Slice:
		ds.off += headLen
		if indefinite {
			newSlice := reflect.MakeSlice(t, 0, 8)
			for {
				if ds.off >= len(ds.data) {
					return UnexpectedEofError{Offset: ds.off}
				}
				if ds.data[ds.off] == cborBreak {
					ds.off++
					break
				}
				elem := reflect.New(t.Elem()).Elem()
				ds.depth++
				err := ds.decodeValue(elem)
				ds.depth--
				if err != nil {
					return err
				}
				newSlice = reflect.Append(newSlice, elem)
			}
			v.Set(newSlice)
			return nil
		}
		if count > uint64(len(ds.data)-ds.off) {
			return UnexpectedEofError{Offset: len(ds.data)}
		}
		newSlice := reflect.MakeSlice(t, int(count), int(count))
		for i := 0; i < int(count); i++ {
			ds.depth++
			err := ds.decodeValue(newSlice.Index(i))
			ds.depth--
			if err != nil {
				return err
			}
		}
		v.Set(newSlice)
		return nil
	case reflect.Array:
		ds.off += headLen
		if indefinite || count != uint64(t.Len()) {
			return TypeMismatchError{
				CborType: majorTypeName(CborTypeArray),
				GoType:   t.String(),
			}
		}
		for i := 0; i < t.Len(); i++ {
			ds.depth++
			err := ds.decodeValue(v.Index(i))
			ds.depth--
			if err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		sf := cachedStructFields(t)
		if !sf.asArray {
			return TypeMismatchError{
				CborType: majorTypeName(CborTypeArray),
				GoType:   t.String(),
			}
		}
		ds.off += headLen
		fieldIdx := 0
		for {
			if indefinite {
				if ds.off >= len(ds.data) {
					return UnexpectedEofError{Offset: ds.off}
				}
				if ds.data[ds.off] == cborBreak {
					ds.off++
					break
				}
			} else if uint64(fieldIdx) >= count {
				break
			}
			if fieldIdx >= len(sf.fields) {
				return fmt.Errorf(
					"cbor: cannot decode array into %s: too many elements",
					t,
				)
			}
			field := v.FieldByIndex(sf.fields[fieldIdx].idx)
			ds.depth++
			err := ds.decodeValue(field)
			ds.depth--
			if err != nil {
				return err
			}
			fieldIdx++
		}
		if fieldIdx != len(sf.fields) {
			return fmt.Errorf(
				"cbor: cannot decode array of %d elements into %s with %d fields",
				fieldIdx,
				t,
				len(sf.fields),
			)
		}
		return nil
	default:
		return TypeMismatchError{
			CborType: majorTypeName(CborTypeArray),
			GoType:   t.String(),
		}
	}
}

func (ds *decodeState) decodeMapInto(
	v reflect.Value,
	ai byte,
	count uint64,
	headLen int,
) error {
	t := v.Type()
	indefinite := ai == cborAiIndefinite
	switch t.Kind() {
	case reflect.Map:
		ds.off += headLen
		if !indefinite && count > uint64(len(ds.data)-ds.off) {
			return UnexpectedEofError{Offset: len(ds.data)}
		}
		size := 0
		if !indefinite {
			size = int(count)
		}
		newMap := reflect.MakeMapWithSize(t, size)
		keyIsAny := t.Key().Kind() == reflect.Interface &&
			t.Key().NumMethod() == 0
		entries := uint64(0)
		for {
			if indefinite {
				if ds.off >= len(ds.data) {
					return UnexpectedEofError{Offset: ds.off}
				}
				if ds.data[ds.off] == cborBreak {
					ds.off++
					break
				}
			} else if entries >= count {
				break
			}
			key := reflect.New(t.Key()).Elem()
			if keyIsAny {
				keyVal, err := ds.decodeMapKeyAny()
				if err != nil {
					return err
				}
				if keyVal != nil {
					key.Set(reflect.ValueOf(keyVal))
				}
			} else {
				ds.depth++
				err := ds.decodeValue(key)
				ds.depth--
				if err != nil {
					return err
				}
			}
			value := reflect.New(t.Elem()).Elem()
			ds.depth++
			err := ds.decodeValue(value)
			ds.depth--
			if err != nil {
				return err
			}
			newMap.SetMapIndex(key, value)
			entries++
		}
		v.Set(newMap)
		return nil
	case reflect.Struct:
		return ds.decodeStructFromMap(v, ai, count)
	default:
		return TypeMismatchError{
			CborType: majorTypeName(CborTypeMap),
			GoType:   t.String(),
		}
	}
}

func (ds *decodeState) decodeStructFromMap(
	v reflect.Value,
	ai byte,
	count uint64,
) error {
	t := v.Type()
	sf := cachedStructFields(t)
	if sf.asArray {
		return TypeMismatchError{
			CborType: majorTypeName(CborTypeMap),
			GoType:   t.String(),
		}
	}
	_, _, _, headLen, err := readHead(ds.data, ds.off)
	if err != nil {
		return err
	}
	ds.off += headLen
	indefinite := ai == cborAiIndefinite
	byName := make(map[string]structField, len(sf.fields))
	for _, field := range sf.fields {
		byName[field.name] = field
	}
	entries := uint64(0)
	for {
		if indefinite {
			if ds.off >= len(ds.data) {
				return UnexpectedEofError{Offset: ds.off}
			}
			if ds.data[ds.off] == cborBreak {
				ds.off++
				break
			}
		} else if entries >= count {
			break
		}
		keyVal, err := ds.decodeMapKeyAny()
		if err != nil {
			return err
		}
		entries++
		keyName, keyIsString := keyVal.(string)
		if keyIsString {
			if field, ok := byName[keyName]; ok {
				fv := v.FieldByIndex(field.idx)
				ds.depth++
				err := ds.decodeValue(fv)
				ds.depth--
				if err != nil {
					return err
				}
				continue
			}
		}
		if ds.opts.DisallowUnknownFields {
			if !keyIsString {
				keyName = fmt.Sprintf("%v", keyVal)
			}
			return UnknownFieldError{Field: keyName}
		}
		// skip the value for an unknown key
		end, err := skipItem(ds.data, ds.off, ds.depth, ds.opts.MaxNestedLevels)
		if err != nil {
			return err
		}
		ds.off = end
	}
	return nil
}

// decodeMapKeyAny decodes a map key into an empty interface. Byte strings are
// wrapped so they can be used as Go map keys, and non-comparable keys are
// rejected rather than left to panic on map insert.
func (ds *decodeState) decodeMapKeyAny() (any, error) {
	ds.depth++
	key, err := ds.decodeAny()
	ds.depth--
	if err != nil {
		return nil, err
	}
	if b, ok := key.([]byte); ok {
		return NewByteString(b), nil
	}
	if key != nil && !isComparableKey(key) {
		return nil, fmt.Errorf("cbor: invalid map key type: %T", key)
	}
	return key, nil
}

// isComparableKey reports whether a decoded value can be used as a Go map key
// without panicking on insert. Tag is comparable as a type but carries an
// interface, so its content has to be checked as well.
func isComparableKey(key any) bool {
	if tag, ok := key.(Tag); ok {
		return tag.Content == nil || isComparableKey(tag.Content)
	}
	return reflect.TypeOf(key).Comparable()
}

// decodeAny decodes the next item into the natural Go representation for its
// wire type: uint64/int64 for integers, big.Int where they don't fit,
// []byte and string for strings, []any and map[any]any for containers,
// float64 for all float widths, and Tag for unregistered tags.
func (ds *decodeState) decodeAny() (any, error) {
	if ds.depth > ds.opts.MaxNestedLevels {
		return nil, MaxNestedLevelsError{Limit: ds.opts.MaxNestedLevels}
	}
	startOff := ds.off
	major, ai, val, n, err := readHead(ds.data, ds.off)
	if err != nil {
		return nil, err
	}
	switch major {
	case CborTypeUint:
		ds.off += n
		return val, nil
	case CborTypeNint:
		ds.off += n
		if val > math.MaxInt64 {
			i := new(big.Int).SetUint64(val)
			i.Add(i, bigIntOne)
			return *i.Neg(i), nil
		}
		return -1 - int64(val), nil
	case CborTypeByteString:
		return ds.readString(major, ai)
	case CborTypeTextString:
		b, err := ds.readString(major, ai)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, InvalidUtf8Error{Offset: startOff}
		}
		return string(b), nil
	case CborTypeArray:
		ds.off += n
		return ds.decodeAnyArray(ai, val)
	case CborTypeMap:
		ds.off += n
		return ds.decodeAnyMap(ai, val)
	case CborTypeTag:
		ds.off += n
		return ds.decodeAnyTag(val)
	default:
		ds.off += n
		switch ai {
		case cborAiIndefinite:
			return nil, SyntaxError{
				Message: "unexpected break code",
				Offset:  startOff,
			}
		case cborAiTwoBytes:
			return float64(float16.Frombits(uint16(val)).Float32()), nil
		case cborAiFourBytes:
			return float64(math.Float32frombits(uint32(val))), nil
		case cborAiEightBytes:
			return math.Float64frombits(val), nil
		}
		switch val {
		case uint64(cborSimpleFalse):
			return false, nil
		case uint64(cborSimpleTrue):
			return true, nil
		case uint64(cborSimpleNull), uint64(cborSimpleUndefined):
			return nil, nil
		default:
			return SimpleValue(val), nil
		}
	}
}

func (ds *decodeState) decodeAnyArray(ai byte, count uint64) ([]any, error) {
	indefinite := ai == cborAiIndefinite
	out := []any{}
	entries := uint64(0)
	if !indefinite && count > uint64(len(ds.data)-ds.off) {
		return nil, UnexpectedEofError{Offset: len(ds.data)}
	}
	for {
		if indefinite {
			if ds.off >= len(ds.data) {
				return nil, UnexpectedEofError{Offset: ds.off}
			}
			if ds.data[ds.off] == cborBreak {
				ds.off++
				break
			}
		} else if entries >= count {
			break
		}
		ds.depth++
		item, err := ds.decodeAny()
		ds.depth--
		if err != nil {
			return nil, err
		}
		out = append(out, item)
		entries++
	}
	return out, nil
}

func (ds *decodeState) decodeAnyMap(ai byte, count uint64) (map[any]any, error) {
	indefinite := ai == cborAiIndefinite
	size := 0
	if !indefinite {
		if count > uint64(len(ds.data)-ds.off) {
			return nil, UnexpectedEofError{Offset: len(ds.data)}
		}
		size = int(count)
	}
	out := make(map[any]any, size)
	entries := uint64(0)
	for {
		if indefinite {
			if ds.off >= len(ds.data) {
				return nil, UnexpectedEofError{Offset: ds.off}
			}
			if ds.data[ds.off] == cborBreak {
				ds.off++
				break
			}
		} else if entries >= count {
			break
		}
		key, err := ds.decodeMapKeyAny()
		if err != nil {
			return nil, err
		}
		ds.depth++
		value, err := ds.decodeAny()
		ds.depth--
		if err != nil {
			return nil, err
		}
		out[key] = value
		entries++
	}
	return out, nil
}

func (ds *decodeState) decodeAnyTag(tagNum uint64) (any, error) {
	switch tagNum {
	case CborTagPositiveBignum, CborTagNegativeBignum:
		i, err := ds.decodeBignumContent(tagNum == CborTagNegativeBignum)
		if err != nil {
			return nil, err
		}
		return *i, nil
	case CborTagCbor:
		major, ai, _, _, err := readHead(ds.data, ds.off)
		if err != nil {
			return nil, err
		}
		if major != CborTypeByteString {
			return nil, SyntaxError{
				Message: "wrapped CBOR content must be a byte string",
				Offset:  ds.off,
			}
		}
		b, err := ds.readString(major, ai)
		if err != nil {
			return nil, err
		}
		return WrappedCbor(b), nil
	case CborTagRational:
		var tmpRat Rat
		if err := ds.decodeUnmarshaler(&tmpRat); err != nil {
			return nil, err
		}
		return tmpRat, nil
	case CborTagSet:
		ds.depth++
		item, err := ds.decodeAny()
		ds.depth--
		if err != nil {
			return nil, err
		}
		list, ok := item.([]any)
		if !ok {
			return nil, SyntaxError{
				Message: "set content must be an array",
				Offset:  ds.off,
			}
		}
		return Set(list), nil
	case CborTagMap:
		ds.depth++
		item, err := ds.decodeAny()
		ds.depth--
		if err != nil {
			return nil, err
		}
		m, ok := item.(map[any]any)
		if !ok {
			return nil, SyntaxError{
				Message: "map tag content must be a map",
				Offset:  ds.off,
			}
		}
		return Map(m), nil
	default:
		ds.depth++
		content, err := ds.decodeAny()
		ds.depth--
		if err != nil {
			return nil, err
		}
		return Tag{Number: tagNum, Content: content}, nil
	}
}

func intValueString(major byte, wireVal uint64) string {
	if major == CborTypeNint {
		i := new(big.Int).SetUint64(wireVal)
		i.Add(i, bigIntOne)
		return i.Neg(i).String()
	}
	return strconv.FormatUint(wireVal, 10)
}
