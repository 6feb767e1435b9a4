package metastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/danthegoodman1/adaptree/gologger"
	"github.com/danthegoodman1/adaptree/part"
	"github.com/danthegoodman1/adaptree/value"
)

var (
	logger = gologger.NewLogger()

	ErrNoCheckpoint = errors.New("no checkpoint for table")
)

type (
	// MetaStore keeps the history of routing changes handed to the execution
	// layer and the catalog of tree checkpoints.
	MetaStore interface {
		// RecordRoutingChanges stores changes atomically
		RecordRoutingChanges(ctx context.Context, table string, changes []part.RoutingChange) error
		// ListRoutingChanges lists a table's routing changes oldest first
		ListRoutingChanges(ctx context.Context, table string) ([]part.RoutingChange, error)

		RecordCheckpoint(ctx context.Context, cp Checkpoint) error
		// LatestCheckpoint returns ErrNoCheckpoint when the table has none
		LatestCheckpoint(ctx context.Context, table string) (Checkpoint, error)

		Shutdown(ctx context.Context) error
	}

	// Checkpoint locates the blobs of one persisted tree in a DataStore.
	Checkpoint struct {
		ID          string
		Table       string
		TreeKey     string
		SampleKey   string
		ParquetKey  string
		NumBuckets  int
		TotalTuples float64
		CreatedAt   time.Time
	}

	routingChangeRow struct {
		ID            string
		Attribute     int64
		AttributeType string
		SplitValue    string
		NodePath      string
		Buckets       []byte
		CreatedAt     int64
	}
)

func toRow(rc part.RoutingChange) (routingChangeRow, error) {
	b, err := rc.Buckets.ToBytes()
	if err != nil {
		return routingChangeRow{}, fmt.Errorf("error in Buckets.ToBytes: %w", err)
	}
	return routingChangeRow{
		ID:            rc.ID,
		Attribute:     int64(rc.Rule.Attribute),
		AttributeType: rc.Rule.Type.String(),
		SplitValue:    rc.Rule.Value.Format(),
		NodePath:      rc.Rule.Path,
		Buckets:       b,
		CreatedAt:     rc.CreatedAt.UnixNano(),
	}, nil
}

func (r routingChangeRow) toRoutingChange() (part.RoutingChange, error) {
	typ, err := value.ParseType(r.AttributeType)
	if err != nil {
		return part.RoutingChange{}, fmt.Errorf("error in ParseType for %s: %w", r.ID, err)
	}
	v, err := value.Parse(typ, r.SplitValue)
	if err != nil {
		return part.RoutingChange{}, fmt.Errorf("error in Parse for %s: %w", r.ID, err)
	}
	buckets := roaring.New()
	if err := buckets.UnmarshalBinary(r.Buckets); err != nil {
		return part.RoutingChange{}, fmt.Errorf("error in UnmarshalBinary for %s: %w", r.ID, err)
	}
	return part.RoutingChange{
		ID:      r.ID,
		Buckets: buckets,
		Rule: part.Rule{
			Attribute: int(r.Attribute),
			Type:      typ,
			Value:     v,
			Path:      r.NodePath,
		},
		CreatedAt: time.Unix(0, r.CreatedAt),
	}, nil
}
