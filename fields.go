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
	"reflect"
	"strings"
	"sync"
)

// structField describes one encodable/decodable field of a struct.
type structField struct {
	name      string
	idx       []int
	omitEmpty bool
}

// structFields is the parsed field layout for a struct type. When asArray is
// set (via an embedded StructAsArray or a `cbor:",toarray"` tag), the struct
// maps to a CBOR array of its fields in declaration order instead of a map
// keyed by field name.
type structFields struct {
	fields  []structField
	asArray bool
}

var (
	structFieldsCache      = map[reflect.Type]*structFields{}
	structFieldsCacheMutex sync.RWMutex
)

func cachedStructFields(t reflect.Type) *structFields {
	structFieldsCacheMutex.RLock()
	sf, ok := structFieldsCache[t]
	structFieldsCacheMutex.RUnlock()
	if ok {
		return sf
	}
	sf = &structFields{}
	appendTypeFields(t, nil, sf)
	structFieldsCacheMutex.Lock()
	structFieldsCache[t] = sf
	structFieldsCacheMutex.Unlock()
	return sf
}

func appendTypeFields(t reflect.Type, parentIdx []int, sf *structFields) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, opts := parseFieldTag(field.Tag.Get("cbor"))
		if hasTagOption(opts, "toarray") {
			sf.asArray = true
			continue
		}
		if field.Anonymous && field.Type == reflect.TypeOf(StructAsArray{}) {
			sf.asArray = true
			continue
		}
		if !field.IsExported() {
			continue
		}
		if name == "-" {
			continue
		}
		idx := make([]int, 0, len(parentIdx)+1)
		idx = append(idx, parentIdx...)
		idx = append(idx, i)
		// Flatten embedded structs without an explicit field name
		if field.Anonymous && name == "" &&
			field.Type.Kind() == reflect.Struct {
			appendTypeFields(field.Type, idx, sf)
			continue
		}
		if name == "" {
			name = field.Name
		}
		sf.fields = append(sf.fields, structField{
			name:      name,
			idx:       idx,
			omitEmpty: hasTagOption(opts, "omitempty"),
		})
	}
}

func parseFieldTag(tag string) (string, []string) {
	if tag == "" {
		return "", nil
	}
	parts := strings.Split(tag, ",")
	return parts[0], parts[1:]
}

func hasTagOption(opts []string, name string) bool {
	for _, opt := range opts {
		if opt == name {
			return true
		}
	}
	return false
}
