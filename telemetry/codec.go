package telemetry

import (
	"math"
	"strconv"
	"strings"
)

// DefaultDelimiters separates KEY:VALUE pairs when a deployment does not say otherwise.
// Both observed firmware builds are covered: space separated and comma separated.
const DefaultDelimiters = " ,"

// Codec decodes the compact telemetry string relayed by the status endpoint,
// e.g. "TOF1:123.4,TOF2:88.0,DRIVE:1".
type Codec struct {
	// Delimiters lists every rune that separates pairs. Empty means DefaultDelimiters.
	Delimiters string
}

// Decode splits raw into pairs and each pair on its first ':'.
//
// Pairs with an empty key or a value that is not a finite float are dropped;
// a bad pair never aborts the rest of the decode. Keys are case-sensitive.
// When a key repeats, the last occurrence wins.
func (c Codec) Decode(raw string) map[string]float64 {
	delims := c.Delimiters
	if delims == "" {
		delims = DefaultDelimiters
	}

	pairs := strings.FieldsFunc(raw, func(r rune) bool {
		return strings.ContainsRune(delims, r)
	})

	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[key] = v
	}
	return out
}

// Decode decodes raw with the default delimiters
func Decode(raw string) map[string]float64 {
	return Codec{}.Decode(raw)
}
