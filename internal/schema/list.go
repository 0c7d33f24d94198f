package schema

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"time"
)

// Query keys understood by the API server's list endpoints
const (
	QueryStart  = "start"
	QueryCount  = "count"
	QuerySearch = "search"
	QueryQ      = "q"
)

// List is a page of items plus the list metadata returned by list endpoints
type List[T any] struct {
	Total uint `json:"total"`
	Start uint `json:"start"`
	Count uint `json:"count"`
	Items []T  `json:"items"`
}

// ListQuery maps query parameter names to primitive or slice values.
// It is passed verbatim to the API as URL query parameters.
type ListQuery map[string]any

// NewListQuery returns a query carrying the start/count pagination keys
func NewListQuery(start, count uint) ListQuery {
	return ListQuery{
		QueryStart: start,
		QueryCount: count,
	}
}

// WithSearch sets the free text search parameter
func (q ListQuery) WithSearch(search string) ListQuery {
	q[QuerySearch] = search
	return q
}

// WithQ sets the structured query expression (e.g. "creator:me sort:created_at-desc")
func (q ListQuery) WithQ(expr string) ListQuery {
	q[QueryQ] = expr
	return q
}

// Values encodes the query as url.Values.
// Slices become repeated keys, times are sent as UTC ISO-8601 and nil values
// (including typed nil pointers) are skipped.
func (q ListQuery) Values() (url.Values, error) {
	values := url.Values{}
	for key, value := range q {
		if value == nil {
			continue
		}
		encoded, err := encodeQueryValue(value)
		if err != nil {
			return nil, fmt.Errorf("query parameter %q: %w", key, err)
		}
		for _, v := range encoded {
			values.Add(key, v)
		}
	}
	return values, nil
}

func encodeQueryValue(value any) ([]string, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		if s, ok := value.(fmt.Stringer); ok && rv.Elem().Type() != reflect.TypeOf(time.Time{}) {
			return []string{s.String()}, nil
		}
		return encodeQueryValue(rv.Elem().Interface())
	}

	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case time.Time:
		return []string{formatTime(v)}, nil
	case fmt.Stringer:
		return []string{v.String()}, nil
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := encodeScalar(rv.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	default:
		item, err := encodeScalar(rv)
		if err != nil {
			return nil, err
		}
		return []string{item}, nil
	}
}

// formatTime renders t as UTC ISO-8601 with millisecond precision
func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

const isoMillis = "2006-01-02T15:04:05.000Z"

func encodeScalar(rv reflect.Value) (string, error) {
	if rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return "", errors.New("nil element")
	}
	if t, ok := rv.Interface().(time.Time); ok {
		return formatTime(t), nil
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value kind %s", rv.Kind())
	}
}
