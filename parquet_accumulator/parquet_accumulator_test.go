package parquet_accumulator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danthegoodman1/adaptree/value"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func TestGetSchemaString(t *testing.T) {
	a, err := ForAttributes([]string{"colA", "colB", "colC"}, value.MustParseTypes("STRING", "FLOAT", "DATE"))
	if err != nil {
		t.Fatal(err)
	}

	schemaString, err := a.GetSchemaString()
	if err != nil {
		t.Fatal(err)
	}
	if schemaString != `{"Tag":"name=parquet_go_root, repetitiontype=REQUIRED","Fields":[{"Tag":"type=INT32, name=Bucket, repetitiontype=REQUIRED"},{"Tag":"type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN, name=ColA, repetitiontype=OPTIONAL"},{"Tag":"type=DOUBLE, name=ColB, repetitiontype=OPTIONAL"},{"Tag":"type=INT64, convertedtype=TIMESTAMP_MILLIS, name=ColC, repetitiontype=OPTIONAL"}]}` {
		t.Log(schemaString)
		t.Fatal("got incorrect schema string")
	}

	types := a.GetColumnTypes()
	if len(types) != 4 || types[0] != "int" || types[3] != "timestamp" {
		t.Fatal("bad column types", types)
	}
}

func TestDuplicateColumn(t *testing.T) {
	_, err := ForAttributes([]string{"a", "A"}, value.MustParseTypes("INT", "INT"))
	if err == nil {
		t.Fatal("expected a duplicate column error")
	}
	_, err = ForAttributes([]string{"a"}, value.MustParseTypes("INT", "INT"))
	if err == nil {
		t.Fatal("expected a column count error")
	}
}

func TestFullCycle(t *testing.T) {
	types := value.MustParseTypes("INT", "LONG", "DATE", "VARCHAR")
	psa, err := ForAttributes([]string{"user", "events", "ts", "note"}, types)
	if err != nil {
		t.Fatal(err)
	}

	var rows []Row
	for i := 0; i < 10; i++ {
		rows = append(rows, Row{
			Bucket: i % 3,
			Tuple: value.Tuple{
				value.NewInt(int32(i)),
				value.NewLong(int64(i) * 1000),
				value.NewDate(time.Unix(int64(i), 0)),
				value.NewVarchar(""),
			},
		})
	}

	fileName := filepath.Join(t.TempDir(), "temp.parquet")
	f, err := os.Create(fileName)
	if err != nil {
		t.Fatal(err)
	}

	n, err := psa.WriteParquet(f, rows)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(rows) {
		t.Fatal("wrote", n, "rows")
	}
	f.Close()

	parquetSchema, err := psa.GetSchemaString()
	if err != nil {
		t.Fatal(err)
	}

	fr, err := local.NewLocalFileReader(fileName)
	if err != nil {
		t.Fatal("Can't open file", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, parquetSchema, 4)
	if err != nil {
		t.Fatal("Can't create parquet reader", err)
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	t.Log("rows", num)
	if num != len(rows) {
		t.Fatal("expected", len(rows), "rows, got", num)
	}
}

func TestRowJSONArity(t *testing.T) {
	psa, err := ForAttributes([]string{"a"}, value.MustParseTypes("INT"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := psa.RowJSON(Row{Tuple: value.Tuple{}}); err == nil {
		t.Fatal("expected an arity error")
	}
}
