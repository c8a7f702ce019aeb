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
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Helpful wrapper for parsing arbitrary CBOR data which may contain types that
// cannot be easily represented in Go (such as maps with bytestring keys)
type Value struct {
	value any
	// We store this as a string so that the type is still hashable for use as map keys
	cborData string
}

func (v *Value) UnmarshalCBOR(data []byte) (err error) {
	// Save the original CBOR
	v.cborData = string(data[:])
	cborType := data[0] & CborTypeMask
	switch cborType {
	case CborTypeMap:
		// There are certain types that cannot be used as map keys in Go but are valid in CBOR. Trying to
		// parse CBOR containing a map with keys of one of those types will cause a panic. We setup this
		// deferred function to recover from a possible panic and return an error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf(
					"decode failure, probably due to type unsupported by Go: %v",
					r,
				)
			}
		}()
		tmpValue := map[Value]Value{}
		if _, err := Decode(data, &tmpValue); err != nil {
			return err
		}
		// Extract actual value from each child value
		newValue := map[any]any{}
		for key, value := range tmpValue {
			newValue[key.value] = value.value
		}
		v.value = newValue
	case CborTypeArray:
		tmpValue := []Value{}
		if _, err := Decode(data, &tmpValue); err != nil {
			return err
		}
		// Extract actual value from each child value
		newValue := []any{}
		for _, value := range tmpValue {
			newValue = append(newValue, value.value)
		}
		v.value = newValue
	case CborTypeTextString:
		var tmpValue string
		if _, err := Decode(data, &tmpValue); err != nil {
			return err
		}
		v.value = tmpValue
	case CborTypeByteString:
		// Use our custom type which stores the bytestring in a way that allows it to be used as a map key
		var tmpValue ByteString
		if _, err := Decode(data, &tmpValue); err != nil {
			return err
		}
		v.value = tmpValue
	case CborTypeTag:
		_, _, tagNum, _, err := readHead(data, 0)
		if err != nil {
			return err
		}
		if IsAlternativeTag(tagNum) {
			// Constructors/alternatives get their own type
			var tmpConstr Constructor
			if _, err := Decode(data, &tmpConstr); err != nil {
				return err
			}
			v.value = tmpConstr
		} else {
			var tmpValue any
			if _, err := Decode(data, &tmpValue); err != nil {
				return err
			}
			v.value = tmpValue
		}
	default:
		var tmpValue any
		if _, err := Decode(data, &tmpValue); err != nil {
			return err
		}
		v.value = tmpValue
	}
	return nil
}

// Value returns the parsed value
func (v Value) Value() any {
	return v.value
}

// Cbor returns the original CBOR for the parsed value
func (v Value) Cbor() []byte {
	return []byte(v.cborData)
}

func (v Value) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(`{"cbor":"`)
	sb.WriteString(hex.EncodeToString([]byte(v.cborData)))
	sb.WriteString(`"`)
	if v.value != nil {
		astJson, err := generateAstJson(v.value)
		if err != nil {
			return nil, err
		}
		sb.WriteString(`,"json":`)
		sb.Write(astJson)
	}
	sb.WriteString(`}`)
	return []byte(sb.String()), nil
}

func generateAstJson(obj any) ([]byte, error) {
	tmpJsonObj := map[string]any{}
	switch v := obj.(type) {
	case ByteString:
		tmpJsonObj["bytes"] = v.String()
	case WrappedCbor:
		tmpJsonObj["bytes"] = hex.EncodeToString(v.Bytes())
	case []byte:
		tmpJsonObj["bytes"] = hex.EncodeToString(v)
	case string:
		tmpJsonObj["string"] = v
	case uint64:
		tmpJsonObj["int"] = v
	case int64:
		tmpJsonObj["int"] = v
	case big.Int:
		return fmt.Appendf(nil, `{"int":%s}`, v.String()), nil
	case bool:
		tmpJsonObj["bool"] = v
	case float64:
		tmpJsonObj["float"] = v
	case Rat:
		return generateAstJson([]any{*v.Num(), *v.Denom()})
	case Set:
		return generateAstJson([]any(v))
	case Map:
		return generateAstJson(map[any]any(v))
	case Tag:
		return generateAstJson(v.Content)
	case Constructor:
		return v.MarshalJSON()
	case []any:
		var sb strings.Builder
		sb.WriteString(`{"list":[`)
		for idx, val := range v {
			tmpVal, err := generateAstJson(val)
			if err != nil {
				return nil, err
			}
			sb.Write(tmpVal)
			if idx != len(v)-1 {
				sb.WriteString(`,`)
			}
		}
		sb.WriteString(`]}`)
		return []byte(sb.String()), nil
	case map[any]any:
		// Entries are ordered by their encoded keys so the output is
		// deterministic
		type mapEntry struct {
			encKey []byte
			key    any
			value  any
		}
		entries := make([]mapEntry, 0, len(v))
		for key, value := range v {
			encKey, err := Encode(key)
			if err != nil {
				return nil, err
			}
			entries = append(
				entries,
				mapEntry{encKey: encKey, key: key, value: value},
			)
		}
		sort.Slice(entries, func(i, j int) bool {
			return bytes.Compare(entries[i].encKey, entries[j].encKey) < 0
		})
		var sb strings.Builder
		sb.WriteString(`{"map":[`)
		for idx, entry := range entries {
			keyJson, err := generateAstJson(entry.key)
			if err != nil {
				return nil, err
			}
			valueJson, err := generateAstJson(entry.value)
			if err != nil {
				return nil, err
			}
			sb.WriteString(`{"k":`)
			sb.Write(keyJson)
			sb.WriteString(`,"v":`)
			sb.Write(valueJson)
			sb.WriteString(`}`)
			if idx != len(entries)-1 {
				sb.WriteString(`,`)
			}
		}
		sb.WriteString(`]}`)
		return []byte(sb.String()), nil
	default:
		return nil, fmt.Errorf("unknown data type (%T) for JSON conversion", obj)
	}
	return json.Marshal(tmpJsonObj)
}

type LazyValue struct {
	*Value
}

func (l *LazyValue) UnmarshalCBOR(data []byte) error {
	if l.Value == nil {
		l.Value = &Value{}
	}
	l.cborData = string(data[:])
	return nil
}

func (l *LazyValue) MarshalJSON() ([]byte, error) {
	if l.value == nil && len(l.cborData) > 0 {
		if _, err := l.Decode(); err != nil {
			return nil, err
		}
	}
	return l.Value.MarshalJSON()
}

// Decode decodes the stored CBOR and returns the parsed value
func (l *LazyValue) Decode() (any, error) {
	if l.Value == nil {
		l.Value = &Value{}
	}
	if l.value == nil {
		if err := l.Value.UnmarshalCBOR([]byte(l.cborData)); err != nil {
			return nil, err
		}
	}
	return l.Value.Value(), nil
}

// Constructor represents a Plutus-style constructor/alternative with its
// number and field values
type Constructor struct {
	DecodeStoreCbor
	constructor uint
	value       *Value
}

func NewConstructor(constructor uint, value any) Constructor {
	return Constructor{
		constructor: constructor,
		value:       &Value{value: value},
	}
}

// Constructor returns the constructor/alternative number
func (c Constructor) Constructor() uint {
	return c.constructor
}

// Fields returns the field values
func (c Constructor) Fields() []any {
	return c.value.Value().([]any)
}

func (c *Constructor) UnmarshalCBOR(data []byte) error {
	c.SetCbor(data)
	tmpTag := RawTag{}
	if _, err := Decode(data, &tmpTag); err != nil {
		return err
	}
	var fieldsCbor RawMessage
	switch {
	case tmpTag.Number >= CborTagAlternative1Min &&
		tmpTag.Number <= CborTagAlternative1Max:
		// Alternatives 0-6
		c.constructor = uint(tmpTag.Number - CborTagAlternative1Min)
		fieldsCbor = tmpTag.Content
	case tmpTag.Number >= CborTagAlternative2Min &&
		tmpTag.Number <= CborTagAlternative2Max:
		// Alternatives 7-127
		c.constructor = uint(tmpTag.Number - CborTagAlternative2Min + 7)
		fieldsCbor = tmpTag.Content
	case tmpTag.Number == CborTagAlternative3:
		// Alternatives 128+: content is [constructor_number, fields]
		var outerArray []RawMessage
		if _, err := Decode(tmpTag.Content, &outerArray); err != nil {
			return fmt.Errorf("decode alternative 128+ content: %w", err)
		}
		if len(outerArray) != 2 {
			return fmt.Errorf(
				"expected 2 elements for alternative 128+, got %d",
				len(outerArray),
			)
		}
		var altNum uint64
		if _, err := Decode(outerArray[0], &altNum); err != nil {
			return fmt.Errorf("decode alternative number: %w", err)
		}
		c.constructor = uint(altNum)
		fieldsCbor = outerArray[1]
	default:
		return fmt.Errorf("unsupported constructor tag: %d", tmpTag.Number)
	}
	tmpValue := &Value{}
	if err := tmpValue.UnmarshalCBOR(fieldsCbor); err != nil {
		return err
	}
	c.value = tmpValue
	return nil
}

func (c Constructor) MarshalCBOR() ([]byte, error) {
	tagNum, wrap := alternativeToTag(c.constructor)
	var content any
	if wrap {
		content = []any{uint64(c.constructor), c.value.Value()}
	} else {
		content = c.value.Value()
	}
	tmpTag := Tag{Number: tagNum, Content: content}
	return Encode(&tmpTag)
}

func (c Constructor) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `{"constructor":%d,"fields":[`, c.constructor)
	fields := c.Fields()
	for idx, val := range fields {
		tmpVal, err := generateAstJson(val)
		if err != nil {
			return nil, err
		}
		sb.Write(tmpVal)
		if idx != len(fields)-1 {
			sb.WriteString(`,`)
		}
	}
	sb.WriteString(`]}`)
	return []byte(sb.String()), nil
}
