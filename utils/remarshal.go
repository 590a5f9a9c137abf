package utils

import (
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Remarshal converts input into output through its json form, so typed
// values become plain maps, strings and float64 numbers.
func Remarshal(input any, output any) error {
	b, err := json.Marshal(input, jsontext.AllowInvalidUTF8(true))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, output, jsontext.AllowInvalidUTF8(true))
}
