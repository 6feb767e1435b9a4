package http_server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danthegoodman1/gojsonutils"
)

type (
	LocateReqBody struct {
		// Line-delimited JSON (NDJSON)
		RowsString *string
		// Array of JSON
		Rows []*map[string]any
	}

	LocateResponse struct {
		// Buckets holds the bucket of each row in request order
		Buckets []int
		// Partitions counts rows per partition path
		Partitions map[string]int
	}
)

var (
	ErrNotFlatMap = errors.New("not a flat map")
)

func flattenRow(row map[string]any) (map[string]any, error) {
	flat, err := gojsonutils.Flatten(row, nil)
	if err != nil {
		return nil, fmt.Errorf("error flattening JSON map: %w", err)
	}
	flatMap, ok := flat.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %+v", ErrNotFlatMap, flat)
	}
	return flatMap, nil
}

// LocateHandler routes rows to the buckets they belong in under the table's
// current tree. Nested objects are flattened so columns can name `a.b` keys.
func (s *HTTPServer) LocateHandler(c *CustomContext) error {
	tbl, err := s.getTable(c)
	if tbl == nil {
		return err
	}

	var reqBody LocateReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	var rows []map[string]any
	if reqBody.RowsString != nil {
		ndJSONScanner := bufio.NewScanner(strings.NewReader(*reqBody.RowsString))
		for ndJSONScanner.Scan() {
			var raw any
			if err := json.Unmarshal([]byte(ndJSONScanner.Text()), &raw); err != nil {
				return c.String(http.StatusBadRequest, "line was not JSON")
			}
			jsonMap, ok := raw.(map[string]any)
			if !ok {
				return c.String(http.StatusBadRequest, "line was not a JSON object")
			}
			rows = append(rows, jsonMap)
		}
	} else {
		for _, row := range reqBody.Rows {
			if row != nil {
				rows = append(rows, *row)
			}
		}
	}
	if len(rows) == 0 {
		return c.String(http.StatusBadRequest, "no rows found")
	}

	res := LocateResponse{
		Buckets:    make([]int, 0, len(rows)),
		Partitions: map[string]int{},
	}
	for i, row := range rows {
		flatMap, err := flattenRow(row)
		if err != nil {
			return c.InternalError(err, "error flattening row")
		}
		bucket, part, err := tbl.Locate(flatMap)
		if err != nil {
			// missing or mistyped columns are the caller's fault
			return c.String(http.StatusBadRequest, fmt.Sprintf("row %d: %s", i, err.Error()))
		}
		res.Buckets = append(res.Buckets, bucket)
		res.Partitions[part]++
	}

	return c.JSON(http.StatusOK, res)
}
