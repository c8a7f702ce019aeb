// Copyright 2023 Blink Labs Software
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

package cbor_test

import (
	"encoding/hex"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/blinklabs-io/cbor"
)

type encodeTestDefinition struct {
	CborHex string
	Object  interface{}
}

var encodeTests = []encodeTestDefinition{
	// Simple list of numbers
	{
		CborHex: "83010203",
		Object:  []interface{}{1, 2, 3},
	},
	// Unsigned integers at each head-width boundary
	{
		CborHex: "00",
		Object:  uint64(0),
	},
	{
		CborHex: "17",
		Object:  uint64(23),
	},
	{
		CborHex: "1818",
		Object:  uint64(24),
	},
	{
		CborHex: "18ff",
		Object:  uint64(255),
	},
	{
		CborHex: "190100",
		Object:  uint64(256),
	},
	{
		CborHex: "19ffff",
		Object:  uint64(65535),
	},
	{
		CborHex: "1a00010000",
		Object:  uint64(65536),
	},
	{
		CborHex: "1affffffff",
		Object:  uint64(4294967295),
	},
	{
		CborHex: "1b0000000100000000",
		Object:  uint64(4294967296),
	},
	// Negative integers
	{
		CborHex: "20",
		Object:  int64(-1),
	},
	{
		CborHex: "3863",
		Object:  int64(-100),
	},
	{
		CborHex: "3b7fffffffffffffff",
		Object:  int64(math.MinInt64),
	},
	// Strings
	{
		CborHex: "60",
		Object:  "",
	},
	{
		CborHex: "6568656c6c6f",
		Object:  "hello",
	},
	{
		CborHex: "44deadbeef",
		Object:  []byte{0xde, 0xad, 0xbe, 0xef},
	},
	// Booleans and null
	{
		CborHex: "f4",
		Object:  false,
	},
	{
		CborHex: "f5",
		Object:  true,
	},
	{
		CborHex: "f6",
		Object:  nil,
	},
	// Float64 at native precision
	{
		CborHex: "fb3ff199999999999a",
		Object:  float64(1.1),
	},
	// Map with deterministic key order
	{
		CborHex: "a2616101616202",
		Object:  map[string]int{"b": 2, "a": 1},
	},
	// Bignum beyond uint64 range
	{
		CborHex: "c249010000000000000000",
		Object:  new(big.Int).Add(new(big.Int).SetUint64(math.MaxUint64), big.NewInt(1)),
	},
	// Tagged value
	{
		CborHex: "c11a514b67b0",
		Object:  cbor.Tag{Number: 1, Content: uint64(1363896240)},
	},
}

func TestEncode(t *testing.T) {
	for _, test := range encodeTests {
		cborData, err := cbor.Encode(test.Object)
		if err != nil {
			t.Fatalf("failed to encode object to CBOR: %s", err)
		}
		cborHex := hex.EncodeToString(cborData)
		if cborHex != test.CborHex {
			t.Fatalf(
				"object did not encode to expected CBOR\n  got: %s\n  wanted: %s",
				cborHex,
				test.CborHex,
			)
		}
	}
}

var encodeStringLengthTests = []struct {
	length    int
	headerHex string
}{
	{length: 1, headerHex: "61"},
	{length: 23, headerHex: "77"},
	{length: 24, headerHex: "7818"},
	{length: 25, headerHex: "7819"},
	{length: 255, headerHex: "78ff"},
	{length: 256, headerHex: "790100"},
	{length: 65536, headerHex: "7a00010000"},
}

func TestEncodeStringLengths(t *testing.T) {
	for _, test := range encodeStringLengthTests {
		value := strings.Repeat("x", test.length)
		cborData, err := cbor.Encode(value)
		if err != nil {
			t.Fatalf("failed to encode string to CBOR: %s", err)
		}
		header := test.headerHex
		headerLen := len(header) / 2
		if len(cborData) != headerLen+test.length {
			t.Fatalf(
				"unexpected encoded length for %d-char string: got %d, wanted %d",
				test.length,
				len(cborData),
				headerLen+test.length,
			)
		}
		if hex.EncodeToString(cborData[:headerLen]) != header {
			t.Fatalf(
				"unexpected string header: got %x, wanted %s",
				cborData[:headerLen],
				header,
			)
		}
		if string(cborData[headerLen:]) != value {
			t.Fatalf("string payload did not match input")
		}
		var decoded string
		if _, err := cbor.Decode(cborData, &decoded); err != nil {
			t.Fatalf("failed to decode string from CBOR: %s", err)
		}
		if decoded != value {
			t.Fatalf("string did not survive round trip at length %d", test.length)
		}
	}
}

type encodeStructObject struct {
	Id    uint64 `cbor:"id"`
	Name  string `cbor:"name"`
	Notes string `cbor:"notes,omitempty"`
}

type encodeStructArrayObject struct {
	cbor.StructAsArray
	Id   uint64
	Name string
}

var encodeStructTests = []encodeTestDefinition{
	// Struct encoded as map with tag-renamed keys, empty field omitted
	{
		CborHex: "a262696407646e616d656474657374",
		Object: encodeStructObject{
			Id:   7,
			Name: "test",
		},
	},
	// Struct encoded as map including the optional field
	{
		CborHex: "a362696407646e616d656474657374656e6f7465736178",
		Object: encodeStructObject{
			Id:    7,
			Name:  "test",
			Notes: "x",
		},
	},
	// Struct encoded as array
	{
		CborHex: "82076474657374",
		Object: encodeStructArrayObject{
			Id:   7,
			Name: "test",
		},
	},
}

func TestEncodeStruct(t *testing.T) {
	for _, test := range encodeStructTests {
		cborData, err := cbor.Encode(test.Object)
		if err != nil {
			t.Fatalf("failed to encode object to CBOR: %s", err)
		}
		cborHex := hex.EncodeToString(cborData)
		if cborHex != test.CborHex {
			t.Fatalf(
				"object did not encode to expected CBOR\n  got: %s\n  wanted: %s",
				cborHex,
				test.CborHex,
			)
		}
	}
}

var shortestFloatTests = []encodeTestDefinition{
	// Exactly representable as half-precision
	{
		CborHex: "f93e00",
		Object:  float64(1.5),
	},
	{
		CborHex: "f90000",
		Object:  float64(0.0),
	},
	{
		CborHex: "f97e00",
		Object:  math.NaN(),
	},
	{
		CborHex: "f97c00",
		Object:  math.Inf(1),
	},
	{
		CborHex: "f9fc00",
		Object:  math.Inf(-1),
	},
	// Exactly representable as single but not half
	{
		CborHex: "fa47c35000",
		Object:  float64(100000.0),
	},
	// Requires full double precision
	{
		CborHex: "fb3fb999999999999a",
		Object:  float64(0.1),
	},
}

func TestEncodeShortestFloat(t *testing.T) {
	em, err := cbor.EncOptions{ShortestFloat: cbor.ShortestFloat16}.EncMode()
	if err != nil {
		t.Fatalf("unexpected error creating encode mode: %s", err)
	}
	for _, test := range shortestFloatTests {
		cborData, err := em.Marshal(test.Object)
		if err != nil {
			t.Fatalf("failed to encode object to CBOR: %s", err)
		}
		cborHex := hex.EncodeToString(cborData)
		if cborHex != test.CborHex {
			t.Fatalf(
				"object did not encode to expected CBOR\n  got: %s\n  wanted: %s",
				cborHex,
				test.CborHex,
			)
		}
	}
}

func TestEncodeIndefLengthList(t *testing.T) {
	cborData, err := cbor.Encode(cbor.IndefLengthList{1, 2, 3})
	if err != nil {
		t.Fatalf("failed to encode object to CBOR: %s", err)
	}
	cborHex := hex.EncodeToString(cborData)
	expectedHex := "9f010203ff"
	if cborHex != expectedHex {
		t.Fatalf(
			"object did not encode to expected CBOR\n  got: %s\n  wanted: %s",
			cborHex,
			expectedHex,
		)
	}
}

func TestEncodeIndefLengthByteString(t *testing.T) {
	cborData, err := cbor.Encode(
		cbor.IndefLengthByteString{
			[]byte{0x01, 0x02},
			[]byte{0x03},
		},
	)
	if err != nil {
		t.Fatalf("failed to encode object to CBOR: %s", err)
	}
	cborHex := hex.EncodeToString(cborData)
	expectedHex := "5f4201024103ff"
	if cborHex != expectedHex {
		t.Fatalf(
			"object did not encode to expected CBOR\n  got: %s\n  wanted: %s",
			cborHex,
			expectedHex,
		)
	}
}
