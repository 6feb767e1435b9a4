package part

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/danthegoodman1/adaptree/utils"
	"github.com/danthegoodman1/adaptree/value"
)

type (
	// Rule is the split a node routes on after a routing change.
	Rule struct {
		Attribute int
		Type      value.AttributeType
		Value     value.Value
		// Path locates the node from the root, one L or R per level.
		Path string
	}

	// RoutingChange tells the execution layer that the rows of Buckets must be
	// rerouted under Rule. It says nothing about how bytes move.
	RoutingChange struct {
		ID        string
		Buckets   *roaring.Bitmap
		Rule      Rule
		CreatedAt time.Time
	}
)

func NewRoutingChange(buckets *roaring.Bitmap, rule Rule) RoutingChange {
	return RoutingChange{
		ID:        utils.GenKSortedID("rc_"),
		Buckets:   buckets,
		Rule:      rule,
		CreatedAt: time.Now(),
	}
}

// BucketIDs lists the affected bucket ids in ascending order.
func (rc RoutingChange) BucketIDs() []int {
	raw := rc.Buckets.ToArray()
	ids := make([]int, len(raw))
	for i, id := range raw {
		ids[i] = int(id)
	}
	return ids
}
