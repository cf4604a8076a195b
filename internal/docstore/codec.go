package docstore

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

// Encode converts a model struct into document data using its mapstructure
// tags. Named string and integer types are reduced to string, int64 and
// float64 so every adapter sees the same value kinds.
func Encode(v any) (map[string]any, error) {
	out := map[string]any{}
	if err := mapstructure.Decode(v, &out); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	for k, val := range out {
		out[k] = Normalize(val)
	}
	return out, nil
}

// Decode fills out from document data. Numbers are converted weakly since
// JSON-backed adapters hand back float64.
func Decode(doc Document, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(doc.Data); err != nil {
		return fmt.Errorf("decode %s: %w", doc.Path, err)
	}
	return nil
}

// DecodeAll decodes every document into a fresh T and passes it to setID so
// the caller can copy the document id into the struct.
func DecodeAll[T any](docs []Document, setID func(*T, string)) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := Decode(d, &v); err != nil {
			return nil, err
		}
		if setID != nil {
			setID(&v, d.ID)
		}
		out = append(out, v)
	}
	return out, nil
}

// Normalize reduces a scalar to string, bool, int64 or float64.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}
