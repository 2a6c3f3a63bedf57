package query

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/joe-ervin05/litetable/tools"
)

// Binder allocates named placeholders ($p1, $p2, ...) for one statement and
// records the converted value bound to each. Numbering starts at 1 per Binder.
type Binder struct {
	names  []string
	values map[string]any
}

// NewBinder returns an empty Binder.
func NewBinder() *Binder {
	return &Binder{values: map[string]any{}}
}

// Add converts value, stores it under the next placeholder and returns the
// placeholder text.
func (b *Binder) Add(value any) (string, error) {
	converted, err := ConvertValue(value)
	if err != nil {
		return "", err
	}
	name := "$p" + strconv.Itoa(len(b.names)+1)
	b.names = append(b.names, name)
	b.values[name] = converted
	return name, nil
}

// Len returns the number of placeholders allocated so far.
func (b *Binder) Len() int {
	return len(b.names)
}

// Params returns the placeholder to value mapping.
func (b *Binder) Params() map[string]any {
	out := make(map[string]any, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

// Args returns the bound values as named arguments in allocation order.
func (b *Binder) Args() []any {
	args := make([]any, len(b.names))
	for i, name := range b.names {
		args[i] = sql.Named(name[1:], b.values[name])
	}
	return args
}

// ConvertValue maps a Go value to what gets stored:
// booleans become 1 or 0, times become UTC Unix milliseconds, nil stays nil,
// strings, numbers and byte slices pass through. Maps, slices, structs and
// other composite values fail with ErrInvalidParameterType.
func ConvertValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case time.Time:
		return v.UTC().UnixMilli(), nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return v.UTC().UnixMilli(), nil
	case string, []byte, int64, float64:
		return v, nil
	case driver.Valuer:
		return v, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Bool:
		return ConvertValue(rv.Bool())
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > 1<<63-1 {
			return nil, fmt.Errorf("%w: %d overflows INTEGER", tools.ErrInvalidParameterType, u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes(), nil
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return ConvertValue(rv.Elem().Interface())
	}

	return nil, fmt.Errorf("%w: %T", tools.ErrInvalidParameterType, value)
}
