package transfer

import (
	"bytes"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kadirbelkuyu/dbxfer/internal/sqltype"
)

// accessor pairs the typed scan destination for a column class with the
// conversion of a scanned value into an insert argument.
type accessor struct {
	read  func() any
	write func(dest any) (any, error)
}

func valuer(dest any) (any, error) {
	return dest.(driver.Valuer).Value()
}

var passThrough = accessor{
	read:  func() any { return new(any) },
	write: func(dest any) (any, error) { return *dest.(*any), nil },
}

func typed[T any, P interface {
	*T
	sql.Scanner
	driver.Valuer
}]() accessor {
	return accessor{
		read:  func() any { return P(new(T)) },
		write: valuer,
	}
}

// Every integer class reads into 64 bits: SQLite does not enforce declared
// widths, and the target rejects values that do not fit its column.
var accessors = map[sqltype.Class]accessor{
	sqltype.BigInt:                typed[sql.NullInt64](),
	sqltype.Integer:               typed[sql.NullInt64](),
	sqltype.SmallInt:              typed[sql.NullInt64](),
	sqltype.TinyInt:               typed[sql.NullInt64](),
	sqltype.Boolean:               typed[sql.NullBool](),
	sqltype.Bit:                   typed[bitValue](),
	sqltype.Double:                typed[sql.NullFloat64](),
	sqltype.Float:                 typed[sql.NullFloat64](),
	sqltype.Real:                  typed[sql.NullFloat64](),
	sqltype.Decimal:               typed[decimal.NullDecimal](),
	sqltype.Numeric:               typed[decimal.NullDecimal](),
	sqltype.Char:                  typed[sql.NullString](),
	sqltype.Varchar:               typed[sql.NullString](),
	sqltype.Clob:                  typed[sql.NullString](),
	sqltype.LongVarchar:           typed[sql.NullString](),
	sqltype.Binary:                typed[bytesValue](),
	sqltype.Blob:                  typed[bytesValue](),
	sqltype.Varbinary:             typed[bytesValue](),
	sqltype.LongVarbinary:         typed[bytesValue](),
	sqltype.Date:                  typed[timeValue](),
	sqltype.Timestamp:             typed[timeValue](),
	sqltype.TimestampWithTimezone: typed[timeValue](),
	sqltype.Time:                  typed[clockValue](),
	sqltype.TimeWithTimezone:      typed[zonedClockValue](),
	sqltype.Array:                 passThrough,
	sqltype.Other:                 passThrough,
}

func accessorFor(c sqltype.Class) accessor {
	if a, ok := accessors[c]; ok {
		return a
	}
	return passThrough
}

// bytesValue keeps binary data byte-exact and owns its buffer, since drivers
// may reuse the slice they hand to Scan.
type bytesValue struct {
	Bytes []byte
	Valid bool
}

func (b *bytesValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		b.Bytes, b.Valid = nil, false
	case []byte:
		b.Bytes, b.Valid = bytes.Clone(v), true
		if b.Bytes == nil {
			b.Bytes = []byte{}
		}
	case string:
		b.Bytes, b.Valid = []byte(v), true
	default:
		return fmt.Errorf("cannot scan %T into binary column", src)
	}
	return nil
}

func (b bytesValue) Value() (driver.Value, error) {
	if !b.Valid {
		return nil, nil
	}
	return b.Bytes, nil
}

// bitValue accepts the BIT(1) encodings drivers produce: booleans, integers,
// a single raw byte or the text forms "0"/"1"/"t"/"f".
type bitValue struct {
	Bool  bool
	Valid bool
}

func (b *bitValue) Scan(src any) error {
	b.Valid = true
	switch v := src.(type) {
	case nil:
		b.Bool, b.Valid = false, false
	case bool:
		b.Bool = v
	case int64:
		b.Bool = v != 0
	case []byte:
		if len(v) == 1 && v[0] <= 1 {
			b.Bool = v[0] == 1
			return nil
		}
		return b.Scan(string(v))
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("cannot scan %q into bit column", v)
		}
		b.Bool = parsed
	default:
		return fmt.Errorf("cannot scan %T into bit column", src)
	}
	return nil
}

func (b bitValue) Value() (driver.Value, error) {
	if !b.Valid {
		return nil, nil
	}
	return b.Bool, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// timeValue scans dates and timestamps, including the text forms returned by
// drivers that do not parse temporal columns. The offset is kept as read.
type timeValue struct {
	Time  time.Time
	Valid bool
}

func (t *timeValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v, true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into temporal column", src)
	}
}

func (t *timeValue) parse(s string) error {
	parsed, err := parseLayouts(strings.TrimSpace(s), timestampLayouts)
	if err != nil {
		return err
	}
	t.Time, t.Valid = parsed, true
	return nil
}

func (t timeValue) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time, nil
}

const (
	clockLayout      = "15:04:05.999999"
	zonedClockLayout = "15:04:05.999999-07:00"
)

var clockLayouts = []string{
	"15:04:05.999999999Z07:00",
	"15:04:05.999999999-07",
	"15:04:05.999999999",
}

// clockValue carries a time of day as text, the only representation every
// driver accepts for TIME parameters.
type clockValue struct {
	Clock string
	Valid bool
}

func (c *clockValue) Scan(src any) error {
	clock, valid, err := scanClock(src, clockLayout)
	c.Clock, c.Valid = clock, valid
	return err
}

func (c clockValue) Value() (driver.Value, error) {
	if !c.Valid {
		return nil, nil
	}
	return c.Clock, nil
}

type zonedClockValue struct {
	Clock string
	Valid bool
}

func (c *zonedClockValue) Scan(src any) error {
	clock, valid, err := scanClock(src, zonedClockLayout)
	c.Clock, c.Valid = clock, valid
	return err
}

func (c zonedClockValue) Value() (driver.Value, error) {
	if !c.Valid {
		return nil, nil
	}
	return c.Clock, nil
}

func scanClock(src any, layout string) (string, bool, error) {
	var t time.Time
	switch v := src.(type) {
	case nil:
		return "", false, nil
	case time.Time:
		t = v
	case []byte, string:
		var s string
		if b, ok := v.([]byte); ok {
			s = string(b)
		} else {
			s = v.(string)
		}
		parsed, err := parseLayouts(strings.TrimSpace(s), append(clockLayouts, timestampLayouts...))
		if err != nil {
			return "", false, err
		}
		t = parsed
	default:
		return "", false, fmt.Errorf("cannot scan %T into time column", src)
	}
	return t.Format(layout), true, nil
}

func parseLayouts(s string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized temporal value %q", s)
}
