package sqltype

import (
	"fmt"
	"strings"
)

// Class is a driver-independent column type classification.
type Class int

const (
	Other Class = iota
	Array
	BigInt
	Binary
	Bit
	Blob
	Boolean
	Char
	Clob
	Date
	Decimal
	Double
	Float
	Integer
	LongVarchar
	LongVarbinary
	Numeric
	Real
	SmallInt
	Time
	TimeWithTimezone
	Timestamp
	TimestampWithTimezone
	TinyInt
	Varbinary
	Varchar
)

var classNames = map[Class]string{
	Other:                 "OTHER",
	Array:                 "ARRAY",
	BigInt:                "BIGINT",
	Binary:                "BINARY",
	Bit:                   "BIT",
	Blob:                  "BLOB",
	Boolean:               "BOOLEAN",
	Char:                  "CHAR",
	Clob:                  "CLOB",
	Date:                  "DATE",
	Decimal:               "DECIMAL",
	Double:                "DOUBLE",
	Float:                 "FLOAT",
	Integer:               "INTEGER",
	LongVarchar:           "LONG-VARCHAR",
	LongVarbinary:         "LONG-VARBINARY",
	Numeric:               "NUMERIC",
	Real:                  "REAL",
	SmallInt:              "SMALLINT",
	Time:                  "TIME",
	TimeWithTimezone:      "TIME-WITH-TIMEZONE",
	Timestamp:             "TIMESTAMP",
	TimestampWithTimezone: "TIMESTAMP-WITH-TIMEZONE",
	TinyInt:               "TINYINT",
	Varbinary:             "VARBINARY",
	Varchar:               "VARCHAR",
}

var classByName = func() map[string]Class {
	out := make(map[string]Class, len(classNames))
	for c, name := range classNames {
		out[name] = c
	}
	return out
}()

// All returns every class in declaration order.
func All() []Class {
	out := make([]Class, 0, len(classNames))
	for c := Other; c <= Varchar; c++ {
		out = append(out, c)
	}
	return out
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Parse accepts the canonical spelling as well as underscore or space separated variants.
func Parse(s string) (Class, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	if c, ok := classByName[key]; ok {
		return c, nil
	}
	return Other, fmt.Errorf("unknown sql type class %q", s)
}

func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Class) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Class) IsTemporal() bool {
	switch c {
	case Date, Time, TimeWithTimezone, Timestamp, TimestampWithTimezone:
		return true
	}
	return false
}

func (c Class) IsBinary() bool {
	switch c {
	case Binary, Blob, LongVarbinary, Varbinary:
		return true
	}
	return false
}

func (c Class) IsCharacter() bool {
	switch c {
	case Char, Clob, LongVarchar, Varchar:
		return true
	}
	return false
}

func (c Class) IsExactNumeric() bool {
	switch c {
	case Decimal, Numeric:
		return true
	}
	return false
}

func (c Class) IsInteger() bool {
	switch c {
	case BigInt, Integer, SmallInt, TinyInt:
		return true
	}
	return false
}
