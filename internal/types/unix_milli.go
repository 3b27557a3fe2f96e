package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// UnixMilli is a time.Time that encodes as milliseconds since the Unix epoch,
// both in JSON and in the database. The zero value encodes as JSON null and
// SQL NULL.
type UnixMilli time.Time

func (t UnixMilli) Time() time.Time {
	return time.Time(t)
}

func (t UnixMilli) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte("null"), nil
	}

	return []byte(strconv.FormatInt(time.Time(t).UnixMilli(), 10)), nil
}

func (t *UnixMilli) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = UnixMilli{}
		return nil
	}

	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*t = UnixMilli(time.UnixMilli(ms))

	return nil
}

// Value implements driver.Valuer.
func (t UnixMilli) Value() (driver.Value, error) {
	if time.Time(t).IsZero() {
		return nil, nil
	}

	return time.Time(t).UnixMilli(), nil
}

// Scan implements sql.Scanner.
func (t *UnixMilli) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = UnixMilli{}
	case int64:
		*t = UnixMilli(time.UnixMilli(v))
	default:
		return fmt.Errorf("cannot scan %T into UnixMilli", src)
	}

	return nil
}

func (t UnixMilli) String() string {
	return time.Time(t).Format(time.RFC3339)
}

var (
	_ json.Marshaler   = UnixMilli{}
	_ json.Unmarshaler = (*UnixMilli)(nil)
	_ driver.Valuer    = UnixMilli{}
	_ sql.Scanner      = (*UnixMilli)(nil)
)
