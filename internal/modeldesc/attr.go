package modeldesc

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/kiln/internal/ir"
)

// Explicit kind markers for the tagged mapping form, e.g. {floats: [1, 2]}.
var taggedKinds = map[string]ir.AttrKind{
	"int":     ir.KindInt,
	"float":   ir.KindFloat,
	"bool":    ir.KindBool,
	"string":  ir.KindString,
	"ints":    ir.KindInts,
	"floats":  ir.KindFloats,
	"strings": ir.KindStrings,
}

// attrFromNode converts a YAML value into an attribute. Scalars take their
// kind from the resolved YAML tag; sequences from their first element.
func attrFromNode(n *yaml.Node) (ir.Attr, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return scalarAttr(n)
	case yaml.SequenceNode:
		return sequenceAttr(n, elemKind(n))
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return ir.Attr{}, fmt.Errorf("line %d: tagged form needs exactly one key", n.Line)
		}
		kind, ok := taggedKinds[n.Content[0].Value]
		if !ok {
			return ir.Attr{}, fmt.Errorf("line %d: unknown attribute kind %q", n.Line, n.Content[0].Value)
		}
		return taggedAttr(n.Content[1], kind)
	default:
		return ir.Attr{}, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

func scalarAttr(n *yaml.Node) (ir.Attr, error) {
	switch n.ShortTag() {
	case "!!int":
		v, err := parseInt(n)
		return ir.IntAttr(v), err
	case "!!float":
		v, err := parseFloat(n)
		return ir.FloatAttr(v), err
	case "!!bool":
		var v bool
		err := n.Decode(&v)
		return ir.BoolAttr(v), err
	case "!!str":
		return ir.StringAttr(n.Value), nil
	default:
		return ir.Attr{}, fmt.Errorf("line %d: unsupported scalar tag %s", n.Line, n.ShortTag())
	}
}

func elemKind(n *yaml.Node) ir.AttrKind {
	if len(n.Content) == 0 {
		return ir.KindInts
	}
	switch n.Content[0].ShortTag() {
	case "!!float":
		return ir.KindFloats
	case "!!str":
		return ir.KindStrings
	default:
		return ir.KindInts
	}
}

func sequenceAttr(n *yaml.Node, kind ir.AttrKind) (ir.Attr, error) {
	if n.Kind != yaml.SequenceNode {
		return ir.Attr{}, fmt.Errorf("line %d: %s needs a sequence", n.Line, kind)
	}
	switch kind {
	case ir.KindInts:
		vs := make([]int, len(n.Content))
		for i, c := range n.Content {
			if c.ShortTag() != "!!int" {
				return ir.Attr{}, fmt.Errorf("line %d: element %d of an int list is %s", c.Line, i, c.ShortTag())
			}
			v, err := parseInt(c)
			if err != nil {
				return ir.Attr{}, err
			}
			vs[i] = v
		}
		return ir.IntsAttr(vs), nil
	case ir.KindFloats:
		vs := make([]float64, len(n.Content))
		for i, c := range n.Content {
			v, err := parseFloat(c)
			if err != nil {
				return ir.Attr{}, err
			}
			vs[i] = v
		}
		return ir.FloatsAttr(vs), nil
	case ir.KindStrings:
		vs := make([]string, len(n.Content))
		for i, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				return ir.Attr{}, fmt.Errorf("line %d: element %d of a string list is not a scalar", c.Line, i)
			}
			vs[i] = c.Value
		}
		return ir.StringsAttr(vs), nil
	}
	return ir.Attr{}, fmt.Errorf("line %d: %s is not a sequence kind", n.Line, kind)
}

func taggedAttr(n *yaml.Node, kind ir.AttrKind) (ir.Attr, error) {
	switch kind {
	case ir.KindInts, ir.KindFloats, ir.KindStrings:
		return sequenceAttr(n, kind)
	case ir.KindInt:
		v, err := parseInt(n)
		return ir.IntAttr(v), err
	case ir.KindFloat:
		v, err := parseFloat(n)
		return ir.FloatAttr(v), err
	case ir.KindBool:
		v, err := strconv.ParseBool(n.Value)
		if err != nil {
			return ir.Attr{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return ir.BoolAttr(v), nil
	default:
		return ir.StringAttr(n.Value), nil
	}
}

func parseInt(n *yaml.Node) (int, error) {
	var v int
	if err := n.Decode(&v); err != nil {
		return 0, fmt.Errorf("line %d: %w", n.Line, err)
	}
	return v, nil
}

// parseFloat accepts ints too, so a tagged {floats: [1, 2]} needs no decimal points.
func parseFloat(n *yaml.Node) (float64, error) {
	var v float64
	if err := n.Decode(&v); err != nil {
		return 0, fmt.Errorf("line %d: %w", n.Line, err)
	}
	return v, nil
}
