package parquet_accumulator

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/danthegoodman1/adaptree/value"
	"github.com/xitongsys/parquet-go/writer"
)

type (
	// ParquetSchemaAccumulator collects the parquet schema of an attribute
	// schema, one optional column per attribute.
	ParquetSchemaAccumulator struct {
		schema ParquetSchema
		types  []value.AttributeType
	}

	ParquetSchema struct {
		TagStructs SchemaTag        `json:"-,omitempty"`
		Fields     []*ParquetSchema `json:",omitempty"`
	}

	ParquetJSONSchema struct {
		Tag    string               `json:",omitempty"`
		Fields []*ParquetJSONSchema `json:",omitempty"`
	}

	SchemaTag struct {
		Name           string         `json:"name,omitempty"`
		Type           string         `json:"type,omitempty"`
		ConvertedType  string         `json:"convertedtype,omitempty"`
		RepetitionType RepetitionType `json:"repetitiontype,omitempty"`
		Encoding       string         `json:"encoding,omitempty"`
	}

	RepetitionType string

	// Row is one retained sample row and the bucket holding it.
	Row struct {
		Bucket int
		Tuple  value.Tuple
	}
)

var (
	Optional RepetitionType = "OPTIONAL"
	Required RepetitionType = "REQUIRED"
)

// BucketColumn is prepended to every schema.
const BucketColumn = "Bucket"

func NewParquetAccumulator() ParquetSchemaAccumulator {
	pa := ParquetSchemaAccumulator{
		schema: ParquetSchema{
			TagStructs: SchemaTag{
				Name:           "parquet_go_root",
				RepetitionType: Required,
			},
		},
	}
	pa.schema.Fields = append(pa.schema.Fields, &ParquetSchema{
		TagStructs: SchemaTag{
			Name:           BucketColumn,
			Type:           "INT32",
			RepetitionType: Required,
		},
	})
	return pa
}

// ForAttributes builds the schema of a table's attributes, named in order.
func ForAttributes(names []string, types []value.AttributeType) (ParquetSchemaAccumulator, error) {
	if len(names) != len(types) {
		return ParquetSchemaAccumulator{}, fmt.Errorf("got %d column names for %d attributes", len(names), len(types))
	}
	pa := NewParquetAccumulator()
	for i, name := range names {
		if err := pa.AddColumn(name, types[i]); err != nil {
			return ParquetSchemaAccumulator{}, err
		}
	}
	return pa, nil
}

func (pa *ParquetSchemaAccumulator) AddColumn(name string, t value.AttributeType) error {
	if name == "" {
		return fmt.Errorf("empty column name")
	}
	schema := &ParquetSchema{
		TagStructs: SchemaTag{
			Name:           columnName(name),
			RepetitionType: Optional,
		},
	}
	if pa.fieldExists(schema.TagStructs.Name) {
		return fmt.Errorf("duplicate column %s", name)
	}
	switch t {
	case value.Int:
		schema.TagStructs.Type = "INT32"
	case value.Long:
		schema.TagStructs.Type = "INT64"
	case value.Float:
		schema.TagStructs.Type = "DOUBLE"
	case value.Date:
		schema.TagStructs.Type = "INT64"
		schema.TagStructs.ConvertedType = "TIMESTAMP_MILLIS"
	case value.String, value.Varchar:
		schema.TagStructs.Type = "BYTE_ARRAY"
		schema.TagStructs.ConvertedType = "UTF8"
		schema.TagStructs.Encoding = "PLAIN"
	default:
		return fmt.Errorf("%w: %s", value.ErrUnknownType, t)
	}
	pa.schema.Fields = append(pa.schema.Fields, schema)
	pa.types = append(pa.types, t)
	return nil
}

// columnName capitalizes the first letter so parquet-go can map the field.
func columnName(key string) string {
	return strings.ToUpper(key[:1]) + key[1:]
}

func (pa *ParquetSchemaAccumulator) fieldExists(fieldName string) (exists bool) {
	for _, field := range pa.schema.Fields {
		if field.TagStructs.Name == fieldName {
			return true
		}
	}
	return
}

func (pa *ParquetSchemaAccumulator) GetColumnNames() []string {
	var cols []string
	for _, field := range pa.schema.Fields {
		cols = append(cols, field.TagStructs.Name)
	}
	return cols
}

func (ps *ParquetSchema) GetType() string {
	switch ps.TagStructs.Type {
	case "BYTE_ARRAY":
		return "string"
	case "DOUBLE":
		return "float"
	case "INT32":
		return "int"
	case "INT64":
		if ps.TagStructs.ConvertedType == "TIMESTAMP_MILLIS" {
			return "timestamp"
		}
		return "long"
	default:
		return "unknown"
	}
}

// GetColumnTypes returns the types of columns in the same order as GetColumnNames
func (pa *ParquetSchemaAccumulator) GetColumnTypes() []string {
	var cols []string
	for _, field := range pa.schema.Fields {
		cols = append(cols, field.GetType())
	}
	return cols
}

// ToParquetJSONSchema recursively converts
func (ps *ParquetSchema) ToParquetJSONSchema() *ParquetJSONSchema {
	var tagArr []string
	if ps.TagStructs.Type != "" {
		tagArr = append(tagArr, "type="+ps.TagStructs.Type)
	}
	if ps.TagStructs.ConvertedType != "" {
		tagArr = append(tagArr, "convertedtype="+ps.TagStructs.ConvertedType)
	}
	if ps.TagStructs.Encoding != "" {
		tagArr = append(tagArr, "encoding="+ps.TagStructs.Encoding)
	}
	if ps.TagStructs.Name != "" {
		tagArr = append(tagArr, "name="+ps.TagStructs.Name)
	}
	if string(ps.TagStructs.RepetitionType) != "" {
		tagArr = append(tagArr, "repetitiontype="+string(ps.TagStructs.RepetitionType))
	}
	var fields []*ParquetJSONSchema
	for _, field := range ps.Fields {
		fields = append(fields, field.ToParquetJSONSchema())
	}
	return &ParquetJSONSchema{
		Tag:    strings.Join(tagArr, ", "),
		Fields: fields,
	}
}

// GetSchemaString returns the JSON formatted schema string
func (pa *ParquetSchemaAccumulator) GetSchemaString() (string, error) {
	var fields []*ParquetJSONSchema
	for _, field := range pa.schema.Fields {
		fields = append(fields, field.ToParquetJSONSchema())
	}
	pjs := ParquetJSONSchema{
		Tag:    "name=parquet_go_root, repetitiontype=REQUIRED",
		Fields: fields,
	}

	b, err := json.Marshal(pjs)
	if err != nil {
		return "", fmt.Errorf("error in json.Marshal: %w", err)
	}
	return string(b), nil
}

// RowJSON renders a row as the JSON object the parquet JSON writer expects.
func (pa *ParquetSchemaAccumulator) RowJSON(row Row) ([]byte, error) {
	if len(row.Tuple) != len(pa.types) {
		return nil, fmt.Errorf("got %d values for %d columns", len(row.Tuple), len(pa.types))
	}
	obj := make(map[string]any, len(row.Tuple)+1)
	obj[BucketColumn] = row.Bucket
	for i, v := range row.Tuple {
		name := pa.schema.Fields[i+1].TagStructs.Name
		switch pa.types[i] {
		case value.Int, value.Long:
			obj[name] = v.Int()
		case value.Float:
			obj[name] = v.Float()
		case value.Date:
			obj[name] = v.Time().UnixMilli()
		default:
			obj[name] = v.Str()
		}
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("error in json.Marshal: %w", err)
	}
	return b, nil
}

// WriteParquet writes rows to w as a parquet file and returns how many were
// written.
func (pa *ParquetSchemaAccumulator) WriteParquet(w io.Writer, rows []Row) (int, error) {
	schema, err := pa.GetSchemaString()
	if err != nil {
		return 0, fmt.Errorf("error in GetSchemaString: %w", err)
	}
	pw, err := writer.NewJSONWriterFromWriter(schema, w, 4)
	if err != nil {
		return 0, fmt.Errorf("error in NewJSONWriterFromWriter: %w", err)
	}
	for i, row := range rows {
		b, err := pa.RowJSON(row)
		if err != nil {
			return i, fmt.Errorf("error in RowJSON for row %d: %w", i, err)
		}
		if err := pw.Write(string(b)); err != nil {
			return i, fmt.Errorf("error writing row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return len(rows), fmt.Errorf("error in WriteStop: %w", err)
	}
	return len(rows), nil
}
