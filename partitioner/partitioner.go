package partitioner

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/danthegoodman1/adaptree/tree"
	"github.com/danthegoodman1/adaptree/value"
)

type (
	// Column maps one schema attribute onto a flattened JSON row. When Func is
	// set the value is derived from the row with Args instead of read from Name.
	Column struct {
		Name string
		Type value.AttributeType
		Func string
		Args []string
	}

	DeriveFunc func(row map[string]any, args []string) (value.Value, error)
)

var (
	Functions = make(map[string]DeriveFunc)

	ErrFuncNotFound = errors.New("derive function not found")

	ErrMissingArgs       = errors.New("missing args")
	ErrMissingColumns    = errors.New("missing one or more columns specified in args")
	ErrInvalidColumnType = errors.New("invalid column type")
)

func timePart(part func(t time.Time) int) DeriveFunc {
	return func(row map[string]any, args []string) (value.Value, error) {
		t, err := parseTimeFunc(row, args)
		if err != nil {
			return value.Value{}, fmt.Errorf("error in parseTimeFunc: %w", err)
		}
		return value.NewInt(int32(part(t))), nil
	}
}

func RegisterFunctions() {
	Functions["toDay"] = timePart(time.Time.Day)
	Functions["toMonth"] = timePart(func(t time.Time) int {
		return int(t.Month())
	})
	Functions["toYear"] = timePart(time.Time.Year)
	Functions["toYearDay"] = timePart(time.Time.YearDay)
	Functions["toYearWeek"] = timePart(func(t time.Time) int {
		_, week := t.ISOWeek()
		return week
	})
	Functions["toWeekDay"] = timePart(func(t time.Time) int {
		return int(t.Weekday())
	})
	Functions["toDate"] = func(row map[string]any, args []string) (value.Value, error) {
		t, err := parseTimeFunc(row, args)
		if err != nil {
			return value.Value{}, fmt.Errorf("error in parseTimeFunc: %w", err)
		}
		return value.NewDate(t), nil
	}
}

// TupleFromRow builds the tuple of a row, one value per column.
func TupleFromRow(row map[string]any, columns []Column) (value.Tuple, error) {
	tuple := make(value.Tuple, len(columns))
	for i, col := range columns {
		v, err := columnValue(row, col)
		if err != nil {
			return nil, fmt.Errorf("error in column %s: %w", col.Name, err)
		}
		if v.Type() != col.Type {
			return nil, fmt.Errorf("column %s: %w: got %s, want %s", col.Name, ErrInvalidColumnType, v.Type(), col.Type)
		}
		tuple[i] = v
	}
	return tuple, nil
}

// GetRowPartition routes a row through the tree and returns its bucket id and
// partition path.
func GetRowPartition(t *tree.Tree, row map[string]any, columns []Column) (int, string, error) {
	tuple, err := TupleFromRow(row, columns)
	if err != nil {
		return 0, "", fmt.Errorf("error in TupleFromRow: %w", err)
	}
	id, err := t.LocateBucket(tuple)
	if err != nil {
		return 0, "", fmt.Errorf("error in LocateBucket: %w", err)
	}
	return id, BucketPartition(id), nil
}

func BucketPartition(bucketID int) string {
	return fmt.Sprintf("bucket=%d", bucketID)
}

func columnValue(row map[string]any, col Column) (value.Value, error) {
	if col.Func != "" {
		f, ok := Functions[col.Func]
		if !ok {
			return value.Value{}, fmt.Errorf("%w: %s", ErrFuncNotFound, col.Func)
		}
		v, err := f(row, col.Args)
		if err != nil {
			return value.Value{}, fmt.Errorf("error processing derive function %s: %w", col.Func, err)
		}
		return v, nil
	}

	raw, exists := row[col.Name]
	if col.Type == value.Varchar {
		// never split on, so missing is fine
		if !exists || raw == nil {
			return value.NewVarchar(""), nil
		}
		return value.NewVarchar(fmt.Sprint(raw)), nil
	}
	if !exists {
		return value.Value{}, ErrMissingColumns
	}

	switch v := raw.(type) {
	case string:
		return value.Parse(col.Type, v)
	case float64:
		return fromNumber(col.Type, v)
	case int:
		return fromNumber(col.Type, float64(v))
	case int64:
		if col.Type == value.Long {
			return value.NewLong(v), nil
		}
		return fromNumber(col.Type, float64(v))
	default:
		return value.Value{}, ErrInvalidColumnType
	}
}

// fromNumber converts a JSON number. Dates are unix milliseconds.
func fromNumber(t value.AttributeType, f float64) (value.Value, error) {
	switch t {
	case value.Int:
		if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return value.Value{}, fmt.Errorf("%w: %g is not an INT", ErrInvalidColumnType, f)
		}
		return value.NewInt(int32(f)), nil
	case value.Long:
		if f != math.Trunc(f) {
			return value.Value{}, fmt.Errorf("%w: %g is not a LONG", ErrInvalidColumnType, f)
		}
		return value.NewLong(int64(f)), nil
	case value.Float:
		return value.NewFloat(f), nil
	case value.Date:
		return value.NewDate(time.UnixMilli(int64(f))), nil
	default:
		return value.Value{}, ErrInvalidColumnType
	}
}

func parseTimeFunc(row map[string]any, args []string) (t time.Time, err error) {
	if len(args) == 0 {
		err = ErrMissingArgs
		return
	}

	key := args[0]

	if key == "now()" {
		t = time.Now()
		return
	}

	val, exists := row[key]
	if !exists {
		err = ErrMissingColumns
		return
	}

	if valString, isStr := val.(string); isStr {
		// We have a datetime like YYYY-MM-DDTHH:mm:ss.sssZ
		t, err = time.Parse("2006-01-02T15:04:05.000Z", valString)
		if err != nil {
			err = fmt.Errorf("error in time.Parse for string: %w", err)
		}
	} else if valFloat, isFloat := val.(float64); isFloat {
		// We have a float as an int
		t = time.UnixMilli(int64(valFloat)).UTC()
	} else {
		err = ErrInvalidColumnType
	}
	return
}
