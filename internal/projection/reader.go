package projection

import (
	"encoding/json"
	"time"

	"github.com/spf13/cast"
	"gorm.io/datatypes"
)

// reader reads allow-listed keys from a Record with explicit coercion.
// A present value that cannot be coerced is dropped and remembered.
type reader struct {
	rec     Record
	allowed map[string]struct{}
	dropped []string
}

func newReader(rec Record, allowed map[string]struct{}) *reader {
	return &reader{rec: rec, allowed: allowed}
}

func (r *reader) raw(key string) (interface{}, bool) {
	if _, ok := r.allowed[key]; !ok {
		return nil, false
	}
	v, ok := r.rec[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r *reader) drop(key string) {
	r.dropped = append(r.dropped, key)
}

func (r *reader) str(key string) *string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		r.drop(key)
		return nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		r.drop(key)
		return nil
	}
	return &s
}

func (r *reader) float(key string) *float64 {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		r.drop(key)
		return nil
	}
	return &f
}

func (r *reader) integer(key string) *int64 {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		r.drop(key)
		return nil
	}
	return &i
}

func (r *reader) boolean(key string) *bool {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		r.drop(key)
		return nil
	}
	return &b
}

// timestamp accepts RFC3339-style strings and epoch milliseconds; results are UTC
// so stored values compare correctly as text on SQLite.
func (r *reader) timestamp(key string) *time.Time {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	if n, isNum := v.(json.Number); isNum {
		ms, err := n.Int64()
		if err != nil {
			r.drop(key)
			return nil
		}
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		r.drop(key)
		return nil
	}
	t = t.UTC()
	return &t
}

func (r *reader) stringSlice(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	s, err := cast.ToStringSliceE(v)
	if err != nil {
		r.drop(key)
		return nil
	}
	return s
}

func (r *reader) blob(key string) datatypes.JSON {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		r.drop(key)
		return nil
	}
	return datatypes.JSON(b)
}

func keySet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}
