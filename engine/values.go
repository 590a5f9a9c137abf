package engine

import (
	"math"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/schema"
)

// Coerce converts v into the canonical representation of the property:
// int64, bool, string, float32, float64, time.Time, []byte, int64 for links
// and []int64 for lists.
func Coerce(p *schema.Property, v any) (any, error) {

	if v == nil {
		if p.Nullable || p.Type == schema.TypeObject {
			return nil, nil
		}
		return nil, failure.New(failure.InvalidArgument, "property '%s' is not nullable", p.Name)
	}

	switch p.Type {
	case schema.TypeInt, schema.TypeObject:
		if i, ok := toInt64(v); ok {
			return i, nil
		}
	case schema.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.TypeFloat:
		if f, ok := toFloat64(v); ok {
			return float32(f), nil
		}
	case schema.TypeDouble:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}
	case schema.TypeDate:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, x)
			if err == nil {
				return t, nil
			}
		}
	case schema.TypeData:
		switch x := v.(type) {
		case []byte:
			return append([]byte{}, x...), nil
		case string:
			return []byte(x), nil
		}
	case schema.TypeList:
		switch x := v.(type) {
		case []int64:
			return append([]int64{}, x...), nil
		case []any:
			keys := make([]int64, 0, len(x))
			for _, item := range x {
				k, ok := toInt64(item)
				if !ok {
					return nil, failure.New(failure.InvalidArgument, "property '%s' expects a list of object keys", p.Name)
				}
				keys = append(keys, k)
			}
			return keys, nil
		}
	}

	return nil, failure.New(failure.InvalidArgument, "value of type %T is not valid for property '%s' of type '%s'", v, p.Name, p.Type)
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x), true
		}
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), true
		}
	case float64:
		if x == math.Trunc(x) && x >= math.MinInt64 && x <= math.MaxInt64 {
			return int64(x), true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func decodeValue(p *schema.Property, raw jsontext.Value) (any, error) {

	if raw.Kind() == 'n' {
		return Coerce(p, nil)
	}

	var target any
	switch p.Type {
	case schema.TypeInt, schema.TypeObject:
		target = new(int64)
	case schema.TypeBool:
		target = new(bool)
	case schema.TypeString:
		target = new(string)
	case schema.TypeFloat:
		target = new(float32)
	case schema.TypeDouble:
		target = new(float64)
	case schema.TypeDate:
		target = new(time.Time)
	case schema.TypeData:
		target = new([]byte)
	case schema.TypeList:
		target = new([]int64)
	default:
		return nil, failure.New(failure.InvalidArgument, "unknown type '%s'", p.Type)
	}

	err := json.Unmarshal(raw, target)
	if err != nil {
		return nil, err
	}

	switch x := target.(type) {
	case *int64:
		return *x, nil
	case *bool:
		return *x, nil
	case *string:
		return *x, nil
	case *float32:
		return *x, nil
	case *float64:
		return *x, nil
	case *time.Time:
		return *x, nil
	case *[]byte:
		if *x == nil {
			return []byte{}, nil
		}
		return *x, nil
	case *[]int64:
		if *x == nil {
			return []int64{}, nil
		}
		return *x, nil
	}
	return nil, nil
}

func decodeValues(o *schema.ObjectSchema, raw map[string]jsontext.Value) (map[string]any, error) {
	values := make(map[string]any, len(raw))
	for name, r := range raw {
		p, ok := o.Property(name)
		if !ok {
			continue
		}
		v, err := decodeValue(p, r)
		if err != nil {
			return nil, err
		}
		values[name] = v
	}
	return values, nil
}

// ComparePrimaryKeys orders null before integers before strings.
func ComparePrimaryKeys(a, b any) int {
	rank := func(v any) int {
		switch v.(type) {
		case nil:
			return 0
		case int64:
			return 1
		}
		return 2
	}

	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}

	switch x := a.(type) {
	case int64:
		y := b.(int64)
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
	case string:
		y := b.(string)
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
	}
	return 0
}
