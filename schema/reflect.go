package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

// FromStruct builds an object schema from the exported fields of T, in
// declaration order and named after their json tags. Fields can be tagged
// with `realm:"primary_key"` and `realm:"indexed"`. Pointers to scalars are
// nullable, pointers to structs are links and slices of structs are lists.
func FromStruct[T any]() (ObjectSchema, error) {

	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return ObjectSchema{}, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}

	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	js := r.ReflectFromType(t)

	o := ObjectSchema{
		Name:       t.Name(),
		Properties: []Property{},
	}

	for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
		field, ok := fieldByJSONName(t, pair.Key)
		if !ok {
			continue
		}

		p, err := propertyFromType(field.Type)
		if err != nil {
			return ObjectSchema{}, fmt.Errorf("field '%s': %w", field.Name, err)
		}
		p.Name = pair.Key

		for _, option := range strings.Split(field.Tag.Get("realm"), ",") {
			switch strings.TrimSpace(option) {
			case "primary_key":
				o.PrimaryKey = p.Name
				p.Indexed = true
			case "indexed":
				p.Indexed = true
			}
		}

		o.Properties = append(o.Properties, p)
	}

	return o, nil
}

var timeType = reflect.TypeFor[time.Time]()

func propertyFromType(t reflect.Type) (Property, error) {

	p := Property{}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
		p.Nullable = true
	}

	if t == timeType {
		p.Type = TypeDate
		return p, nil
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		p.Type = TypeInt
	case reflect.Bool:
		p.Type = TypeBool
	case reflect.String:
		p.Type = TypeString
	case reflect.Float32:
		p.Type = TypeFloat
	case reflect.Float64:
		p.Type = TypeDouble
	case reflect.Struct:
		if !p.Nullable {
			return p, fmt.Errorf("links to '%s' must be pointers", t.Name())
		}
		p.Type = TypeObject
		p.ObjectType = t.Name()
	case reflect.Slice:
		elem := t.Elem()
		if elem.Kind() == reflect.Uint8 {
			p.Type = TypeData
			return p, nil
		}
		if elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct || elem == timeType {
			return p, fmt.Errorf("lists of '%s' are not supported", elem)
		}
		if p.Nullable {
			return p, fmt.Errorf("lists cannot be nullable")
		}
		p.Type = TypeList
		p.ObjectType = elem.Name()
	default:
		return p, fmt.Errorf("unsupported type '%s'", t)
	}

	return p, nil
}

func fieldByJSONName(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if jsonFieldName(&field) == name {
			return field, true
		}
	}
	return reflect.StructField{}, false
}

func jsonFieldName(field *reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return field.Name
	}
	if i := strings.Index(tag, ","); i >= 0 {
		if i == 0 {
			return field.Name
		}
		return tag[:i]
	}
	return tag
}
