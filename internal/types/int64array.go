package types

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Int64Array maps a Go []int64 onto a Postgres bigint[] column.
type Int64Array []int64

func (a Int64Array) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

func (a *Int64Array) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("int64array: unsupported scan type %T", src)
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")
	if raw == "" {
		*a = Int64Array{}
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make(Int64Array, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return fmt.Errorf("int64array: bad element %q: %w", p, err)
		}
		out = append(out, n)
	}
	*a = out
	return nil
}

func (Int64Array) GormDataType() string { return "bigint[]" }
