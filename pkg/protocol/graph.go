package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"

	"graphscape/domain/core/aggregates"
	"graphscape/domain/core/entities"
	"graphscape/domain/core/valueobjects"
)

// Property is the wire form of a typed key/value pair. Value is nil when
// the sender populated no member of the value oneof.
type Property struct {
	Key   string
	Value valueobjects.PropertyValue
}

// Position is the wire form of a node position
type Position struct {
	X, Y, Z float64
}

// GraphNode is the wire form of a node
type GraphNode struct {
	ID         string
	Label      string
	Kind       valueobjects.NodeKind
	Properties []Property
	Position   *Position
}

// GraphEdge is the wire form of an edge
type GraphEdge struct {
	ID         string
	SourceID   string
	TargetID   string
	Kind       valueobjects.EdgeKind
	Weight     float64
	Properties []Property
}

// Graph is the wire form of a whole graph
type Graph struct {
	ID    string
	Nodes []*GraphNode
	Edges []*GraphEdge
	Meta  []Property
}

// Property

func (p *Property) encode(e *encoder) {
	e.stringField(1, p.Key, false)
	switch v := p.Value.(type) {
	case valueobjects.StringValue:
		e.stringField(2, string(v), true)
	case valueobjects.IntValue:
		e.int64Field(3, int64(v), true)
	case valueobjects.FloatValue:
		e.doubleField(4, float64(v), true)
	case valueobjects.BoolValue:
		e.boolField(5, bool(v), true)
	case valueobjects.BytesValue:
		e.bytesField(6, v, true)
	case valueobjects.JSONValue:
		e.stringField(7, string(v), true)
	}
}

func (p *Property) decode(b []byte) error {
	value := oneof{name: "property.value"}
	return readFields(b, func(f field) error {
		if f.num >= 2 && f.num <= 7 {
			if err := value.claim(f.num); err != nil {
				return err
			}
		}
		var err error
		switch f.num {
		case 1:
			p.Key, err = f.asString()
		case 2:
			var s string
			s, err = f.asString()
			p.Value = valueobjects.StringValue(s)
		case 3:
			var i int64
			i, err = f.asInt64()
			p.Value = valueobjects.IntValue(i)
		case 4:
			var d float64
			d, err = f.asDouble()
			p.Value = valueobjects.FloatValue(d)
		case 5:
			var v bool
			v, err = f.asBool()
			p.Value = valueobjects.BoolValue(v)
		case 6:
			var raw []byte
			raw, err = f.asBytes()
			p.Value = valueobjects.BytesValue(raw)
		case 7:
			var s string
			s, err = f.asString()
			p.Value = valueobjects.JSONValue(s)
		}
		return err
	})
}

func encodeProperties(e *encoder, num protowire.Number, props []Property) {
	for i := range props {
		e.messageField(num, props[i].encode)
	}
}

func decodeProperty(f field) (Property, error) {
	var p Property
	b, err := f.asMessage()
	if err != nil {
		return p, err
	}
	err = p.decode(b)
	return p, err
}

// Position

func (p *Position) encode(e *encoder) {
	e.doubleField(1, p.X, false)
	e.doubleField(2, p.Y, false)
	e.doubleField(3, p.Z, false)
}

func (p *Position) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			p.X, err = f.asDouble()
		case 2:
			p.Y, err = f.asDouble()
		case 3:
			p.Z, err = f.asDouble()
		}
		return err
	})
}

// GraphNode

func (n *GraphNode) encode(e *encoder) {
	e.stringField(1, n.ID, false)
	e.stringField(2, n.Label, false)
	e.enumField(3, int32(n.Kind))
	encodeProperties(e, 4, n.Properties)
	if n.Position != nil {
		e.messageField(5, n.Position.encode)
	}
}

func (n *GraphNode) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			n.ID, err = f.asString()
		case 2:
			n.Label, err = f.asString()
		case 3:
			var k int32
			k, err = f.asEnum()
			n.Kind = valueobjects.NodeKind(k)
		case 4:
			var p Property
			p, err = decodeProperty(f)
			n.Properties = append(n.Properties, p)
		case 5:
			var raw []byte
			if raw, err = f.asMessage(); err == nil {
				n.Position = &Position{}
				err = n.Position.decode(raw)
			}
		}
		return err
	})
}

// GraphEdge

func (ed *GraphEdge) encode(e *encoder) {
	e.stringField(1, ed.ID, false)
	e.stringField(2, ed.SourceID, false)
	e.stringField(3, ed.TargetID, false)
	e.enumField(4, int32(ed.Kind))
	e.doubleField(5, ed.Weight, false)
	encodeProperties(e, 6, ed.Properties)
}

func (ed *GraphEdge) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			ed.ID, err = f.asString()
		case 2:
			ed.SourceID, err = f.asString()
		case 3:
			ed.TargetID, err = f.asString()
		case 4:
			var k int32
			k, err = f.asEnum()
			ed.Kind = valueobjects.EdgeKind(k)
		case 5:
			ed.Weight, err = f.asDouble()
		case 6:
			var p Property
			p, err = decodeProperty(f)
			ed.Properties = append(ed.Properties, p)
		}
		return err
	})
}

// Graph

func (g *Graph) encode(e *encoder) {
	e.stringField(1, g.ID, false)
	for _, n := range g.Nodes {
		e.messageField(2, n.encode)
	}
	for _, ed := range g.Edges {
		e.messageField(3, ed.encode)
	}
	encodeProperties(e, 4, g.Meta)
}

func (g *Graph) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			g.ID, err = f.asString()
		case 2:
			var raw []byte
			if raw, err = f.asMessage(); err == nil {
				n := &GraphNode{}
				err = n.decode(raw)
				g.Nodes = append(g.Nodes, n)
			}
		case 3:
			var raw []byte
			if raw, err = f.asMessage(); err == nil {
				ed := &GraphEdge{}
				err = ed.decode(raw)
				g.Edges = append(g.Edges, ed)
			}
		case 4:
			var p Property
			p, err = decodeProperty(f)
			g.Meta = append(g.Meta, p)
		}
		return err
	})
}

// Conversions between wire and domain forms

// PropertiesToDomain validates wire properties into domain properties
func PropertiesToDomain(props []Property) ([]valueobjects.Property, error) {
	if len(props) == 0 {
		return nil, nil
	}
	out := make([]valueobjects.Property, 0, len(props))
	for _, p := range props {
		prop, err := valueobjects.NewProperty(p.Key, p.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, prop)
	}
	return out, nil
}

// PropertiesFromDomain converts domain properties to their wire form
func PropertiesFromDomain(props []valueobjects.Property) []Property {
	if len(props) == 0 {
		return nil
	}
	out := make([]Property, len(props))
	for i, p := range props {
		out[i] = Property{Key: p.Key(), Value: p.Clone().Value()}
	}
	return out
}

// ToEntity validates the wire node into a domain node
func (n *GraphNode) ToEntity() (*entities.GraphNode, error) {
	props, err := PropertiesToDomain(n.Properties)
	if err != nil {
		return nil, err
	}
	node, err := entities.NewGraphNode(valueobjects.NodeID(n.ID), n.Label, n.Kind, props)
	if err != nil {
		return nil, err
	}
	if n.Position != nil {
		pos, err := valueobjects.NewPosition3D(n.Position.X, n.Position.Y, n.Position.Z)
		if err != nil {
			return nil, err
		}
		node = node.WithPosition(pos)
	}
	return node, nil
}

// NodeFromEntity converts a domain node to its wire form
func NodeFromEntity(node *entities.GraphNode) *GraphNode {
	out := &GraphNode{
		ID:         node.ID().String(),
		Label:      node.Label(),
		Kind:       node.Kind(),
		Properties: PropertiesFromDomain(node.Properties()),
	}
	if pos, ok := node.Position(); ok {
		out.Position = &Position{X: pos.X(), Y: pos.Y(), Z: pos.Z()}
	}
	return out
}

// ToEntity validates the wire edge into a domain edge
func (ed *GraphEdge) ToEntity() (*entities.GraphEdge, error) {
	props, err := PropertiesToDomain(ed.Properties)
	if err != nil {
		return nil, err
	}
	return entities.NewGraphEdge(
		valueobjects.EdgeID(ed.ID),
		valueobjects.NodeID(ed.SourceID),
		valueobjects.NodeID(ed.TargetID),
		ed.Kind,
		ed.Weight,
		props,
	)
}

// EdgeFromEntity converts a domain edge to its wire form
func EdgeFromEntity(edge *entities.GraphEdge) *GraphEdge {
	return &GraphEdge{
		ID:         edge.ID().String(),
		SourceID:   edge.SourceID().String(),
		TargetID:   edge.TargetID().String(),
		Kind:       edge.Kind(),
		Weight:     edge.Weight(),
		Properties: PropertiesFromDomain(edge.Properties()),
	}
}

// GraphFromSnapshot converts a snapshot to its wire form
func GraphFromSnapshot(s *aggregates.Snapshot) *Graph {
	g := &Graph{ID: s.ID().String(), Meta: PropertiesFromDomain(s.Meta())}
	for _, n := range s.Nodes() {
		g.Nodes = append(g.Nodes, NodeFromEntity(n))
	}
	for _, e := range s.Edges() {
		g.Edges = append(g.Edges, EdgeFromEntity(e))
	}
	return g
}
