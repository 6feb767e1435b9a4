package http_server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danthegoodman1/adaptree/part"
	"github.com/danthegoodman1/adaptree/query"
	"github.com/danthegoodman1/adaptree/table"
	"github.com/danthegoodman1/adaptree/tree"
	"github.com/danthegoodman1/adaptree/utils"
	"github.com/danthegoodman1/adaptree/value"
	"github.com/rs/zerolog"
)

type (
	PredicateBody struct {
		Attribute int    `validate:"gte=0"`
		Op        string `validate:"required"`
		// Value is parsed as the attribute's declared type
		Value string
	}

	QueryReqBody struct {
		Predicates []PredicateBody `validate:"required,min=1,dive"`
	}

	SearchResponse struct {
		Buckets []int
	}

	RoutingChangeResponse struct {
		ID        string
		Attribute int
		Type      string
		Value     string
		// Path is the L/R walk from the root to the replaced node
		Path      string
		Buckets   []int
		CreatedAt time.Time
	}

	AdaptResponse struct {
		Plan    string
		Cost    float64
		Benefit float64
		Changes []RoutingChangeResponse
		TimeMS  int64
	}

	CheckpointReqBody struct {
		// How many seconds before the checkpoint will time out.
		//
		// Default `60`.
		MaxRuntimeSec *int64
	}
)

var ErrBadPredicate = errors.New("bad predicate")

func parsePredicates(tbl *table.Table, bodies []PredicateBody) ([]query.Predicate, error) {
	types := tbl.Types()
	preds := make([]query.Predicate, len(bodies))
	for i, pb := range bodies {
		if pb.Attribute >= len(types) {
			return nil, fmt.Errorf("%w %d: no attribute %d", ErrBadPredicate, i, pb.Attribute)
		}
		op, err := query.ParseOp(pb.Op)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %s", ErrBadPredicate, i, err.Error())
		}
		v, err := value.Parse(types[pb.Attribute], pb.Value)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %s", ErrBadPredicate, i, err.Error())
		}
		preds[i] = query.NewPredicate(pb.Attribute, op, v)
	}
	return preds, nil
}

func routingChangeResponse(rc part.RoutingChange) RoutingChangeResponse {
	return RoutingChangeResponse{
		ID:        rc.ID,
		Attribute: rc.Rule.Attribute,
		Type:      rc.Rule.Type.String(),
		Value:     rc.Rule.Value.Format(),
		Path:      rc.Rule.Path,
		Buckets:   rc.BucketIDs(),
		CreatedAt: rc.CreatedAt,
	}
}

func (s *HTTPServer) bindQuery(c *CustomContext, tbl *table.Table) ([]query.Predicate, error) {
	var reqBody QueryReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return nil, err
	}
	return parsePredicates(tbl, reqBody.Predicates)
}

func (s *HTTPServer) SearchHandler(c *CustomContext) error {
	tbl, err := s.getTable(c)
	if tbl == nil {
		return err
	}
	preds, err := s.bindQuery(c, tbl)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	ids, err := tbl.Search(preds)
	if errors.Is(err, tree.ErrPredicateMismatch) {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return c.InternalError(err, "error searching tree")
	}
	return c.JSON(http.StatusOK, SearchResponse{Buckets: utils.ArrayOrEmpty(ids)})
}

// AdaptHandler runs a query through the optimizer, restructuring the tree when
// a plan pays off, and returns the routing changes to apply to the data.
func (s *HTTPServer) AdaptHandler(c *CustomContext) error {
	tbl, err := s.getTable(c)
	if tbl == nil {
		return err
	}
	preds, err := s.bindQuery(c, tbl)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	start := time.Now()
	plan, changes, err := tbl.Adapt(c.Request().Context(), query.New(preds...))
	if errors.Is(err, tree.ErrPredicateMismatch) {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return c.InternalError(err, "error adapting table")
	}

	res := AdaptResponse{
		Plan:    plan.String(),
		Changes: make([]RoutingChangeResponse, 0, len(changes)),
		TimeMS:  time.Since(start).Milliseconds(),
	}
	if plan != nil && !plan.Empty() {
		res.Cost, res.Benefit = plan.Cost, plan.Benefit
	}
	for _, rc := range changes {
		res.Changes = append(res.Changes, routingChangeResponse(rc))
	}
	return c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) CheckpointHandler(c *CustomContext) error {
	tbl, err := s.getTable(c)
	if tbl == nil {
		return err
	}
	var reqBody CheckpointReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*time.Duration(utils.Deref(reqBody.MaxRuntimeSec, 60)))
	defer cancel()

	cp, err := tbl.Checkpoint(ctx)
	if err != nil {
		return c.InternalError(err, "error checkpointing table")
	}
	zerolog.Ctx(ctx).Debug().Interface("checkpoint", cp).Msg("checkpointed")
	return c.JSON(http.StatusOK, cp)
}
