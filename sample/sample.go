package sample

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/danthegoodman1/adaptree/utils"
	"github.com/danthegoodman1/adaptree/value"
)

const Delimiter = "|"

var (
	ErrMalformedSample = utils.PermError("malformed sample")
	ErrSchemaMismatch  = utils.PermError("tuple does not match sample schema")
)

// Set is an ordered collection of sampled rows projected onto a fixed schema.
//
// Splits return views over the same backing rows. Once a Set has been split the
// two halves own those rows and the parent must not be sorted or inserted into.
type Set struct {
	types []value.AttributeType
	rows  []value.Tuple
}

func New(types []value.AttributeType) *Set {
	return &Set{types: types}
}

func newView(types []value.AttributeType, rows []value.Tuple) *Set {
	// capacity is clipped so appends to one half never write into the other
	return &Set{types: types, rows: rows[:len(rows):len(rows)]}
}

func (s *Set) Types() []value.AttributeType {
	return s.types
}

func (s *Set) Size() int {
	return len(s.rows)
}

func (s *Set) Rows() []value.Tuple {
	return s.rows
}

func (s *Set) Row(i int) value.Tuple {
	return s.rows[i]
}

// Insert projects tuple onto the declared types and appends it. Varchar
// attributes are not materialized.
func (s *Set) Insert(tuple value.Tuple) error {
	if len(tuple) != len(s.types) {
		return fmt.Errorf("%w: got %d attributes, want %d", ErrSchemaMismatch, len(tuple), len(s.types))
	}
	row := make(value.Tuple, len(s.types))
	for i, t := range s.types {
		switch {
		case t == value.Varchar:
			row[i] = value.NewVarchar("")
		case !t.Splittable():
			panic(fmt.Sprintf("sample: unknown attribute type %s", t))
		case tuple[i].Type() != t:
			return fmt.Errorf("%w: attribute %d is %s, want %s", ErrSchemaMismatch, i, tuple[i].Type(), t)
		default:
			row[i] = tuple[i]
		}
	}
	s.rows = append(s.rows, row)
	return nil
}

// Append adds already projected rows without copying them.
func (s *Set) Append(rows ...value.Tuple) {
	s.rows = append(s.rows, rows...)
}

// Sort stable sorts the rows on attr.
func (s *Set) Sort(attr int) {
	if !s.types[attr].Splittable() {
		panic(fmt.Sprintf("sample: sorting over %s attribute %d is not supported", s.types[attr], attr))
	}
	sort.SliceStable(s.rows, func(i, j int) bool {
		return value.Less(s.rows[i][attr], s.rows[j][attr])
	})
}

// SplitInTwo splits sorted rows into two halves by position; the odd row goes
// to the second half.
func (s *Set) SplitInTwo() (*Set, *Set) {
	mid := len(s.rows) / 2
	return newView(s.types, s.rows[:mid]), newView(s.types, s.rows[mid:])
}

// SplitByMedian splits sorted rows at the first row holding the median value
// of attr, so every row equal to the median lands in the second half.
func (s *Set) SplitByMedian(attr int) (*Set, *Set) {
	if len(s.rows) == 0 {
		return newView(s.types, s.rows), newView(s.types, s.rows)
	}
	median := s.rows[len(s.rows)/2][attr]
	first := firstIndexOf(s.rows, attr, median, 0)
	return newView(s.types, s.rows[:first]), newView(s.types, s.rows[first:])
}

// SortAndSplit sorts on attr then splits by its median.
func (s *Set) SortAndSplit(attr int) (*Set, *Set) {
	s.Sort(attr)
	return s.SplitByMedian(attr)
}

// firstIndexOf halves the sorted run until it finds the first row equal to val,
// returning -1 when val is absent.
func firstIndexOf(rows []value.Tuple, attr int, val value.Value, start int) int {
	if len(rows) == 0 {
		return -1
	}
	mid := len(rows) / 2
	switch c := value.Compare(rows[mid][attr], val); {
	case c == 0:
		if first := firstIndexOf(rows[:mid], attr, val, start); first != -1 {
			return first
		}
		return start + mid
	case c > 0:
		return firstIndexOf(rows[:mid], attr, val, start)
	default:
		return firstIndexOf(rows[mid+1:], attr, val, start+mid+1)
	}
}

// SplitAt splits sorted rows into those with attr < v and those with attr >= v.
func (s *Set) SplitAt(attr int, v value.Value) (*Set, *Set) {
	i := sort.Search(len(s.rows), func(i int) bool {
		return value.Compare(s.rows[i][attr], v) >= 0
	})
	return newView(s.types, s.rows[:i]), newView(s.types, s.rows[i:])
}

// First is undefined (panics) on an empty set.
func (s *Set) First(attr int) value.Value {
	return s.rows[0][attr]
}

// Last is undefined (panics) on an empty set.
func (s *Set) Last(attr int) value.Value {
	return s.rows[len(s.rows)-1][attr]
}

// Pool copies the rows of every set into one freshly allocated Set.
func Pool(types []value.AttributeType, sets ...*Set) *Set {
	n := 0
	for _, set := range sets {
		n += set.Size()
	}
	pooled := &Set{types: types, rows: make([]value.Tuple, 0, n)}
	for _, set := range sets {
		pooled.rows = append(pooled.rows, set.rows...)
	}
	return pooled
}

// Marshal writes the `|`-joined type names followed by one `|`-joined line per row.
// Values are escaped so strings may hold the delimiters.
func (s *Set) Marshal() []byte {
	var b bytes.Buffer
	names := make([]string, len(s.types))
	for i, t := range s.types {
		names[i] = t.String()
	}
	b.WriteString(strings.Join(names, Delimiter))
	b.WriteByte('\n')

	fields := make([]string, len(s.types))
	for _, row := range s.rows {
		for i, v := range row {
			fields[i] = v.EncodeField()
		}
		b.WriteString(strings.Join(fields, Delimiter))
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// Unmarshal parses the format written by Marshal.
func Unmarshal(b []byte) (*Set, error) {
	lines := utils.SplitLines(b)
	if len(lines) == 0 {
		return nil, fmt.Errorf("line 1: %w: missing header", ErrMalformedSample)
	}
	var types []value.AttributeType
	for _, name := range strings.Split(lines[0], Delimiter) {
		t, err := value.ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("line 1: %w: %s", ErrMalformedSample, err.Error())
		}
		types = append(types, t)
	}

	s := New(types)
	for i, line := range lines[1:] {
		tuple, err := ParseLine(types, line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		if err := s.Insert(tuple); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
	}
	return s, nil
}

// ParseLine reads one `|`-joined row.
func ParseLine(types []value.AttributeType, line string) (value.Tuple, error) {
	fields := strings.Split(line, Delimiter)
	if len(fields) != len(types) {
		return nil, fmt.Errorf("%w: got %d fields, want %d", ErrMalformedSample, len(fields), len(types))
	}
	tuple := make(value.Tuple, len(types))
	for i, t := range types {
		v, err := value.DecodeField(t, fields[i])
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %d: %s", ErrMalformedSample, i, err.Error())
		}
		tuple[i] = v
	}
	return tuple, nil
}
