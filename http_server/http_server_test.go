package http_server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danthegoodman1/adaptree/optimizer"
	"github.com/danthegoodman1/adaptree/partitioner"
	"github.com/danthegoodman1/adaptree/sample"
	"github.com/danthegoodman1/adaptree/table"
	"github.com/danthegoodman1/adaptree/tree"
	"github.com/danthegoodman1/adaptree/value"
)

func testServer(t *testing.T) *HTTPServer {
	t.Helper()
	tr, err := tree.Unmarshal([]byte("4 2\nINT INT\nn 0 INT 50\nb 0 0\nb 1 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	s := sample.New(tr.Types)
	for i := 0; i < 100; i++ {
		if err := s.Insert(value.Tuple{value.NewInt(int32(i)), value.NewInt(int32((i * 37) % 100))}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.LoadSample(s, 1000); err != nil {
		t.Fatal(err)
	}
	tbl, err := table.New(tr, table.Options{
		Name: "events",
		Columns: []partitioner.Column{
			{Name: "a", Type: value.Int},
			{Name: "b", Type: value.Int},
		},
		Costs:      optimizer.DefaultCostModel(),
		WindowSize: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	reg := table.NewRegistry()
	if err := reg.Add(tbl); err != nil {
		t.Fatal(err)
	}
	return newHTTPServer(reg)
}

func do(s *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	rec := do(testServer(t), http.MethodGet, "/hc", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("bad health check %d %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownTable(t *testing.T) {
	rec := do(testServer(t), http.MethodGet, "/tables/nope/tree", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdaptThenSearch(t *testing.T) {
	s := testServer(t)
	body := `{"Predicates":[{"Attribute":1,"Op":"LT","Value":"20"}]}`

	rec := do(s, http.MethodPost, "/tables/events/adapt", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("adapt failed %d %s", rec.Code, rec.Body.String())
	}
	rec = do(s, http.MethodPost, "/tables/events/adapt", body)
	var adapted AdaptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &adapted); err != nil {
		t.Fatal(err)
	}
	if len(adapted.Changes) != 1 || adapted.Changes[0].Path != "" || adapted.Changes[0].Value != "20" {
		t.Fatalf("expected a root replace, got %+v", adapted)
	}

	rec = do(s, http.MethodPost, "/tables/events/search", body)
	var searched SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &searched); err != nil {
		t.Fatal(err)
	}
	if len(searched.Buckets) != 1 {
		t.Fatalf("expected one bucket, got %+v", searched)
	}

	rec = do(s, http.MethodGet, "/tables/events/tree", "")
	if !strings.Contains(rec.Body.String(), "n 1 INT 20\n") {
		t.Fatalf("tree should split on attribute 1 now:\n%s", rec.Body.String())
	}
}

func TestAdaptBadPredicate(t *testing.T) {
	s := testServer(t)
	for _, body := range []string{
		`{"Predicates":[]}`,
		`{"Predicates":[{"Attribute":1,"Op":"LIKE","Value":"20"}]}`,
		`{"Predicates":[{"Attribute":1,"Op":"LT","Value":"twenty"}]}`,
		`{"Predicates":[{"Attribute":7,"Op":"LT","Value":"20"}]}`,
	} {
		rec := do(s, http.MethodPost, "/tables/events/adapt", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, rec.Code)
		}
	}
}

func TestLocate(t *testing.T) {
	s := testServer(t)
	rec := do(s, http.MethodPost, "/tables/events/locate", `{"Rows":[{"a":10,"b":3},{"a":70,"b":3}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("locate failed %d %s", rec.Code, rec.Body.String())
	}
	var res LocateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Buckets) != 2 || res.Buckets[0] != 0 || res.Buckets[1] != 1 {
		t.Fatalf("bad buckets %+v", res)
	}
	if res.Partitions["bucket=0"] != 1 || res.Partitions["bucket=1"] != 1 {
		t.Fatalf("bad partitions %+v", res)
	}

	rows := "{\"a\":10,\"b\":3}\n{\"a\":60,\"b\":3}"
	b, _ := json.Marshal(map[string]string{"RowsString": rows})
	rec = do(s, http.MethodPost, "/tables/events/locate", string(b))
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Buckets) != 2 || res.Buckets[1] != 1 {
		t.Fatalf("bad ndjson buckets %+v", res)
	}

	rec = do(s, http.MethodPost, "/tables/events/locate", `{"Rows":[{"a":10}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing column should be a 400, got %d", rec.Code)
	}
}

func TestBucketRangesHandler(t *testing.T) {
	s := testServer(t)
	rec := do(s, http.MethodGet, "/tables/events/ranges/0", "")
	var res []bucketRange
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || res[0].High == nil || *res[0].High != "50" || res[1].Low == nil || *res[1].Low != "50" {
		t.Fatalf("bad ranges %s", rec.Body.String())
	}
	if rec := do(s, http.MethodGet, "/tables/events/ranges/x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
