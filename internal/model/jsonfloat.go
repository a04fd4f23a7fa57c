package model

import (
	"encoding/json"
	"math"
)

// nullable maps NaN and ±Inf to nil so encoding/json accepts the value.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ratio encodes +Inf as the string "Infinity" and NaN as null.
type ratio float64

func (r ratio) MarshalJSON() ([]byte, error) {
	v := float64(r)
	switch {
	case math.IsNaN(v):
		return []byte("null"), nil
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	}
	return json.Marshal(v)
}

func (r *ratio) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null":
		*r = ratio(math.NaN())
		return nil
	case `"Infinity"`:
		*r = ratio(math.Inf(1))
		return nil
	case `"-Infinity"`:
		*r = ratio(math.Inf(-1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = ratio(v)
	return nil
}
