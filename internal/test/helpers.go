package test

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// DecodeHexString is a helper function for tests that decodes hex strings. It doesn't return
// an error value, which makes it usable inline.
func DecodeHexString(hexData string) []byte {
	// Strip off any leading/trailing whitespace in hex string
	hexData = strings.TrimSpace(hexData)
	decoded, err := hex.DecodeString(hexData)
	if err != nil {
		panic(fmt.Sprintf("error decoding hex: %s", err))
	}
	return decoded
}

// JsonStringsEqual compares two JSON documents for semantic equality, ignoring
// formatting and object key ordering differences.
func JsonStringsEqual(jsonA []byte, jsonB []byte) bool {
	var parsedA any
	if err := json.Unmarshal(jsonA, &parsedA); err != nil {
		return false
	}
	var parsedB any
	if err := json.Unmarshal(jsonB, &parsedB); err != nil {
		return false
	}
	return reflect.DeepEqual(parsedA, parsedB)
}
