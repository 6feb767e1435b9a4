package http_server

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/danthegoodman1/adaptree/table"
	"github.com/labstack/echo/v4"
)

type (
	bucketRange struct {
		Bucket int
		// Low and High are formatted values, nil when unbounded
		Low  *string
		High *string
	}
)

// getTable resolves the :table param, writing a 404 when it is unknown.
func (s *HTTPServer) getTable(c *CustomContext) (*table.Table, error) {
	tbl, err := s.Tables.Get(c.Param("table"))
	if errors.Is(err, table.ErrTableNotFound) {
		return nil, c.String(http.StatusNotFound, err.Error())
	}
	return tbl, err
}

func (s *HTTPServer) ListTables(c *CustomContext) error {
	return c.JSON(http.StatusOK, s.Tables.Names())
}

func (s *HTTPServer) GetTree(c *CustomContext) error {
	tbl, err := s.getTable(c)
	if tbl == nil {
		return err
	}
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, tbl.Marshal())
}

func (s *HTTPServer) GetAllocations(c *CustomContext) error {
	tbl, err := s.getTable(c)
	if tbl == nil {
		return err
	}
	return c.JSON(http.StatusOK, tbl.Allocations())
}

func (s *HTTPServer) GetBucketRanges(c *CustomContext) error {
	tbl, err := s.getTable(c)
	if tbl == nil {
		return err
	}
	attr, err := strconv.Atoi(c.Param("attr"))
	if err != nil {
		return c.String(http.StatusBadRequest, "attr must be an integer")
	}
	ranges, err := tbl.BucketRanges(attr)
	if errors.Is(err, table.ErrNoAttribute) {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return c.InternalError(err, "error getting bucket ranges")
	}

	ids := make([]int, 0, len(ranges))
	for id := range ranges {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	res := make([]bucketRange, 0, len(ranges))
	for _, id := range ids {
		r := ranges[id]
		br := bucketRange{Bucket: id}
		if r.Low != nil {
			low := r.Low.Format()
			br.Low = &low
		}
		if r.High != nil {
			high := r.High.Format()
			br.High = &high
		}
		res = append(res, br)
	}
	return c.JSON(http.StatusOK, res)
}
