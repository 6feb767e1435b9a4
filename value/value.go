package value

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danthegoodman1/adaptree/utils"
)

type (
	AttributeType int

	// Value is a tagged union over AttributeType. The zero Value is an INT 0.
	Value struct {
		typ AttributeType
		i   int64
		f   float64
		t   time.Time
		s   string
	}

	// Tuple is one row, one Value per declared schema attribute.
	Tuple []Value
)

const (
	Int AttributeType = iota
	Long
	Float
	Date
	String
	// Varchar attributes are carried but never split on.
	Varchar
)

// DateLayout is the persisted date format (yyyy-MM-dd-HH-mm-ss).
const DateLayout = "2006-01-02-15-04-05"

var (
	ErrUnknownType = utils.PermError("unknown attribute type")
	ErrBadValue    = utils.PermError("bad value for attribute type")

	typeNames = map[AttributeType]string{
		Int:     "INT",
		Long:    "LONG",
		Float:   "FLOAT",
		Date:    "DATE",
		String:  "STRING",
		Varchar: "VARCHAR",
	}

	dateLayouts = []string{DateLayout, "2006-01-02", time.RFC3339Nano, "2006-01-02T15:04:05.000Z"}

	// the line formats reserve `|`, `\n` and `\r`, so they are escaped on the way out
	fieldEscaper   = strings.NewReplacer(`\`, `\\`, "|", `\p`, "\n", `\n`, "\r", `\r`)
	fieldUnescaper = strings.NewReplacer(`\\`, `\`, `\p`, "|", `\n`, "\n", `\r`, "\r")
)

func (t AttributeType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("AttributeType(%d)", int(t))
}

// Splittable reports whether the tree may split on an attribute of this type.
func (t AttributeType) Splittable() bool {
	return t >= Int && t <= String
}

func ParseType(s string) (AttributeType, error) {
	for t, name := range typeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// MustParseTypes parses a list of type names, panicking on an unknown one.
func MustParseTypes(names ...string) []AttributeType {
	types := make([]AttributeType, len(names))
	for i, name := range names {
		t, err := ParseType(name)
		if err != nil {
			panic(err)
		}
		types[i] = t
	}
	return types
}

func NewInt(v int32) Value     { return Value{typ: Int, i: int64(v)} }
func NewLong(v int64) Value    { return Value{typ: Long, i: v} }
func NewFloat(v float64) Value { return Value{typ: Float, f: v} }
func NewString(v string) Value { return Value{typ: String, s: v} }

func NewVarchar(v string) Value { return Value{typ: Varchar, s: v} }

// NewDate keeps second precision, the granularity of the persisted format.
func NewDate(v time.Time) Value {
	return Value{typ: Date, t: v.UTC().Truncate(time.Second)}
}

func (v Value) Type() AttributeType {
	return v.typ
}

func (v Value) Int() int64 {
	return v.i
}

func (v Value) Float() float64 {
	return v.f
}

func (v Value) Time() time.Time {
	return v.t
}

func (v Value) Str() string {
	return v.s
}

// Compare returns -1, 0 or 1. Both values must carry the same type; comparing
// mismatched variants or varchars is a programming error and panics. NaN
// floats sort before every other float and equal each other.
func Compare(a, b Value) int {
	if a.typ != b.typ {
		panic(fmt.Sprintf("value: comparing %s with %s", a.typ, b.typ))
	}
	switch a.typ {
	case Int, Long:
		return cmp.Compare(a.i, b.i)
	case Float:
		return cmp.Compare(a.f, b.f)
	case Date:
		return a.t.Compare(b.t)
	case String:
		return strings.Compare(a.s, b.s)
	default:
		panic(fmt.Sprintf("value: %s is not comparable", a.typ))
	}
}

func Less(a, b Value) bool {
	return Compare(a, b) < 0
}

func Equal(a, b Value) bool {
	return a.typ == b.typ && Compare(a, b) == 0
}

// Parse reads s as a value of type t.
func Parse(t AttributeType, s string) (Value, error) {
	switch t {
	case Int:
		i, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("%w %s: %s", ErrBadValue, t, err.Error())
		}
		return NewInt(int32(i)), nil
	case Long:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w %s: %s", ErrBadValue, t, err.Error())
		}
		return NewLong(i), nil
	case Float:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w %s: %s", ErrBadValue, t, err.Error())
		}
		return NewFloat(f), nil
	case Date:
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return NewDate(d), nil
			}
		}
		return Value{}, fmt.Errorf("%w %s: %q", ErrBadValue, t, s)
	case String:
		return NewString(s), nil
	case Varchar:
		return NewVarchar(s), nil
	default:
		return Value{}, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
}

// Format renders v in the form Parse reads back.
func (v Value) Format() string {
	switch v.typ {
	case Int, Long:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Date:
		return v.t.Format(DateLayout)
	default:
		return v.s
	}
}

// EncodeField is Format escaped for the `|` and line delimited formats.
func (v Value) EncodeField() string {
	return fieldEscaper.Replace(v.Format())
}

// DecodeField reverses EncodeField.
func DecodeField(t AttributeType, s string) (Value, error) {
	return Parse(t, fieldUnescaper.Replace(s))
}

func (v Value) String() string {
	return v.Format()
}
