package tree

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/danthegoodman1/adaptree/sample"
	"github.com/danthegoodman1/adaptree/utils"
	"github.com/danthegoodman1/adaptree/value"
)

const (
	tagNode   = "n"
	tagBucket = "b"
)

var ErrMalformedTree = utils.PermError("malformed tree")

// Marshal writes the tree as
//
//	<maxBuckets> <numAttributes>
//	<TYPE> <TYPE> ...
//
// followed by one line per node in pre-order: `n <attribute> <TYPE> <value>` for
// an internal node, `b <bucketId> <numTuples>` for a bucket. Split values are
// escaped the same way sample fields are.
func (t *Tree) Marshal() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%d %d\n", t.MaxBuckets, len(t.Types))
	names := make([]string, len(t.Types))
	for i, typ := range t.Types {
		names[i] = typ.String()
	}
	b.WriteString(strings.Join(names, " "))
	b.WriteByte('\n')

	stack := []NodeID{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nd := t.nodes[n]
		if nd.bucket != nil {
			fmt.Fprintf(&b, "%s %d %s\n", tagBucket, nd.bucket.ID, strconv.FormatFloat(nd.bucket.EstimatedTuples, 'g', -1, 64))
			continue
		}
		fmt.Fprintf(&b, "%s %d %s %s\n", tagNode, nd.attribute, nd.typ, nd.value.EncodeField())
		stack = append(stack, nd.right, nd.left)
	}
	return b.Bytes()
}

type parser struct {
	t     *Tree
	lines []string
	pos   int
}

func malformed(line int, format string, args ...any) error {
	return fmt.Errorf("line %d: %w: %s", line, ErrMalformedTree, fmt.Sprintf(format, args...))
}

// Unmarshal parses the format written by Marshal. Buckets come back with empty
// samples; use LoadSample to attach one.
func Unmarshal(b []byte) (*Tree, error) {
	lines := utils.SplitLines(b)
	if len(lines) < 3 {
		return nil, malformed(len(lines)+1, "expected a header, a type line and at least one node")
	}

	header := strings.Fields(lines[0])
	if len(header) != 2 {
		return nil, malformed(1, "expected `<maxBuckets> <numAttributes>`, got %q", lines[0])
	}
	maxBuckets, err := strconv.Atoi(header[0])
	if err != nil {
		return nil, malformed(1, "bad max buckets %q", header[0])
	}
	numAttributes, err := strconv.Atoi(header[1])
	if err != nil || numAttributes < 0 {
		return nil, malformed(1, "bad attribute count %q", header[1])
	}

	typeNames := strings.Fields(lines[1])
	if len(typeNames) != numAttributes {
		return nil, malformed(2, "got %d types, header declares %d", len(typeNames), numAttributes)
	}
	types := make([]value.AttributeType, numAttributes)
	for i, name := range typeNames {
		if types[i], err = value.ParseType(name); err != nil {
			return nil, malformed(2, "%s", err.Error())
		}
	}

	p := &parser{t: newTree(maxBuckets, types), lines: lines, pos: 2}
	root, err := p.parseNode(None)
	if err != nil {
		return nil, err
	}
	if p.pos != len(lines) {
		return nil, malformed(p.pos+1, "trailing data after the last node")
	}
	p.t.root = root
	return p.t, nil
}

func (p *parser) parseNode(parent NodeID) (NodeID, error) {
	if p.pos >= len(p.lines) {
		return None, malformed(p.pos+1, "unexpected end of tree")
	}
	lineNum := p.pos + 1
	line := p.lines[p.pos]
	p.pos++

	t := p.t
	n := t.addNode(parent)
	tag, rest, _ := strings.Cut(line, " ")
	switch tag {
	case tagNode:
		// the value is the remainder of the line so strings may hold spaces
		fields := strings.SplitN(rest, " ", 3)
		if len(fields) != 3 {
			return None, malformed(lineNum, "expected `n <attribute> <TYPE> <value>`, got %q", line)
		}
		attr, err := strconv.Atoi(fields[0])
		if err != nil || attr < 0 || attr >= len(t.Types) {
			return None, malformed(lineNum, "bad attribute %q", fields[0])
		}
		typ, err := value.ParseType(fields[1])
		if err != nil {
			return None, malformed(lineNum, "%s", err.Error())
		}
		if typ != t.Types[attr] || !typ.Splittable() {
			return None, malformed(lineNum, "cannot split attribute %d of type %s as %s", attr, t.Types[attr], typ)
		}
		v, err := value.DecodeField(typ, fields[2])
		if err != nil {
			return None, malformed(lineNum, "%s", err.Error())
		}
		t.setSplit(n, attr, typ, v)

		left, err := p.parseNode(n)
		if err != nil {
			return None, err
		}
		right, err := p.parseNode(n)
		if err != nil {
			return None, err
		}
		t.nodes[n].left, t.nodes[n].right = left, right
	case tagBucket:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return None, malformed(lineNum, "expected `b <bucketId> <numTuples>`, got %q", line)
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil || id < 0 {
			return None, malformed(lineNum, "bad bucket id %q", fields[0])
		}
		if _, exists := t.BucketByID(id); exists {
			return None, malformed(lineNum, "duplicate bucket id %d", id)
		}
		numTuples, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return None, malformed(lineNum, "bad tuple count %q", fields[1])
		}
		t.setLeaf(n, &Bucket{ID: id, EstimatedTuples: numTuples, Sample: sample.New(t.Types)})
	default:
		return None, malformed(lineNum, "unknown node tag %q", tag)
	}
	return n, nil
}
