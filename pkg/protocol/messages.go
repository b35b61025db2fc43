package protocol

import (
	"graphscape/domain/core/valueobjects"
	pkgerrors "graphscape/pkg/errors"
	"graphscape/pkg/utils"
)

// ResponseMeta correlates a response with its request and session
type ResponseMeta struct {
	RequestUID  string `json:"requestUid"`
	TimestampMs int64  `json:"timestampMs"`
	SessionID   string `json:"sessionId"`
}

func (m *ResponseMeta) encode(e *encoder) {
	e.stringField(1, m.RequestUID, false)
	e.int64Field(2, m.TimestampMs, false)
	e.stringField(3, m.SessionID, false)
}

func (m *ResponseMeta) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.RequestUID, err = f.asString()
		case 2:
			m.TimestampMs, err = f.asInt64()
		case 3:
			m.SessionID, err = f.asString()
		}
		return err
	})
}

func decodeMeta(f field) (*ResponseMeta, error) {
	raw, err := f.asMessage()
	if err != nil {
		return nil, err
	}
	m := &ResponseMeta{}
	return m, m.decode(raw)
}

// StructureRequest asks the backend to extract a graph from raw input
type StructureRequest struct {
	RawInput  string                       `validate:"required,max=65536"`
	Target    valueobjects.StructureTarget `validate:"gte=0,lte=4"`
	SessionID string                       `validate:"max=128"`
	Hints     []string                     `validate:"max=32"`
}

// Validate checks the request before it is sent
func (r *StructureRequest) Validate() error {
	return utils.ValidateStruct(r)
}

// MarshalWire encodes the request
func (r *StructureRequest) MarshalWire() ([]byte, error) {
	var e encoder
	e.stringField(1, r.RawInput, false)
	e.enumField(2, int32(r.Target))
	e.stringField(3, r.SessionID, false)
	for _, h := range r.Hints {
		e.stringField(4, h, true)
	}
	return e.buf, nil
}

// UnmarshalWire decodes the request
func (r *StructureRequest) UnmarshalWire(b []byte) error {
	*r = StructureRequest{}
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			r.RawInput, err = f.asString()
		case 2:
			var t int32
			t, err = f.asEnum()
			r.Target = valueobjects.StructureTarget(t)
		case 3:
			r.SessionID, err = f.asString()
		case 4:
			var h string
			h, err = f.asString()
			r.Hints = append(r.Hints, h)
		}
		return err
	})
}

// ChunkPayload is the closed set of things one stream chunk can carry
type ChunkPayload interface {
	isChunkPayload()
}

// NodeChunk carries one node
type NodeChunk struct {
	Node *GraphNode
}

// EdgeChunk carries one edge
type EdgeChunk struct {
	Edge *GraphEdge
}

// WarningChunk carries one upstream warning
type WarningChunk struct {
	Warning string
}

func (NodeChunk) isChunkPayload()    {}
func (EdgeChunk) isChunkPayload()    {}
func (WarningChunk) isChunkPayload() {}

// StructureChunk is one unit of a structuring stream
type StructureChunk struct {
	Payload    ChunkPayload
	IsFinal    bool
	Confidence float64
	Meta       *ResponseMeta
}

// NewNodeChunk builds a chunk carrying a node
func NewNodeChunk(node *GraphNode) *StructureChunk {
	return &StructureChunk{Payload: NodeChunk{Node: node}}
}

// NewEdgeChunk builds a chunk carrying an edge
func NewEdgeChunk(edge *GraphEdge) *StructureChunk {
	return &StructureChunk{Payload: EdgeChunk{Edge: edge}}
}

// NewWarningChunk builds a chunk carrying a warning
func NewWarningChunk(warning string) *StructureChunk {
	return &StructureChunk{Payload: WarningChunk{Warning: warning}}
}

// NewFinalChunk builds an empty terminating chunk
func NewFinalChunk(confidence float64) *StructureChunk {
	return &StructureChunk{IsFinal: true, Confidence: confidence}
}

// MarshalWire encodes the chunk
func (c *StructureChunk) MarshalWire() ([]byte, error) {
	var e encoder
	switch p := c.Payload.(type) {
	case NodeChunk:
		if p.Node == nil {
			return nil, pkgerrors.NewMalformedEnvelopeError("node chunk carries no node")
		}
		e.messageField(1, p.Node.encode)
	case EdgeChunk:
		if p.Edge == nil {
			return nil, pkgerrors.NewMalformedEnvelopeError("edge chunk carries no edge")
		}
		e.messageField(2, p.Edge.encode)
	case WarningChunk:
		e.stringField(3, p.Warning, true)
	}
	e.boolField(4, c.IsFinal, false)
	e.doubleField(5, c.Confidence, false)
	if c.Meta != nil {
		e.messageField(6, c.Meta.encode)
	}
	return e.buf, nil
}

// UnmarshalWire decodes a chunk, rejecting two payload members
func (c *StructureChunk) UnmarshalWire(b []byte) error {
	*c = StructureChunk{}
	payload := oneof{name: "chunk"}
	return readFields(b, func(f field) error {
		if f.num >= 1 && f.num <= 3 {
			if err := payload.claim(f.num); err != nil {
				return err
			}
		}
		var err error
		switch f.num {
		case 1:
			var raw []byte
			if raw, err = f.asMessage(); err == nil {
				n := &GraphNode{}
				err = n.decode(raw)
				c.Payload = NodeChunk{Node: n}
			}
		case 2:
			var raw []byte
			if raw, err = f.asMessage(); err == nil {
				ed := &GraphEdge{}
				err = ed.decode(raw)
				c.Payload = EdgeChunk{Edge: ed}
			}
		case 3:
			var w string
			w, err = f.asString()
			c.Payload = WarningChunk{Warning: w}
		case 4:
			c.IsFinal, err = f.asBool()
		case 5:
			c.Confidence, err = f.asDouble()
		case 6:
			c.Meta, err = decodeMeta(f)
		}
		return err
	})
}

// StructureResponse is the unary form of a structuring call
type StructureResponse struct {
	Graph      *Graph
	Confidence float64
	Warnings   []string
	Meta       *ResponseMeta
}

// MarshalWire encodes the response
func (r *StructureResponse) MarshalWire() ([]byte, error) {
	var e encoder
	if r.Graph != nil {
		e.messageField(1, r.Graph.encode)
	}
	e.doubleField(2, r.Confidence, false)
	for _, w := range r.Warnings {
		e.stringField(3, w, true)
	}
	if r.Meta != nil {
		e.messageField(4, r.Meta.encode)
	}
	return e.buf, nil
}

// UnmarshalWire decodes the response
func (r *StructureResponse) UnmarshalWire(b []byte) error {
	*r = StructureResponse{}
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var raw []byte
			if raw, err = f.asMessage(); err == nil {
				r.Graph = &Graph{}
				err = r.Graph.decode(raw)
			}
		case 2:
			r.Confidence, err = f.asDouble()
		case 3:
			var w string
			w, err = f.asString()
			r.Warnings = append(r.Warnings, w)
		case 4:
			r.Meta, err = decodeMeta(f)
		}
		return err
	})
}

// Chunks flattens the unary response into the equivalent stream: nodes,
// then edges, then warnings, then a final chunk carrying the confidence.
func (r *StructureResponse) Chunks() []*StructureChunk {
	var chunks []*StructureChunk
	if r.Graph != nil {
		for _, n := range r.Graph.Nodes {
			chunks = append(chunks, NewNodeChunk(n))
		}
		for _, ed := range r.Graph.Edges {
			chunks = append(chunks, NewEdgeChunk(ed))
		}
	}
	for _, w := range r.Warnings {
		chunks = append(chunks, NewWarningChunk(w))
	}
	final := NewFinalChunk(r.Confidence)
	final.Meta = r.Meta
	return append(chunks, final)
}

// AlgorithmSuggestionRequest asks for algorithms suited to a graph and goal
type AlgorithmSuggestionRequest struct {
	Context *Graph
	Goal    string                  `validate:"required,max=4096"`
	Module  valueobjects.ModuleKind `validate:"gte=0,lte=2"`
}

// Validate checks the request before it is sent
func (r *AlgorithmSuggestionRequest) Validate() error {
	return utils.ValidateStruct(r)
}

// MarshalWire encodes the request
func (r *AlgorithmSuggestionRequest) MarshalWire() ([]byte, error) {
	var e encoder
	if r.Context != nil {
		e.messageField(1, r.Context.encode)
	}
	e.stringField(2, r.Goal, false)
	e.enumField(3, int32(r.Module))
	return e.buf, nil
}

// UnmarshalWire decodes the request
func (r *AlgorithmSuggestionRequest) UnmarshalWire(b []byte) error {
	*r = AlgorithmSuggestionRequest{}
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var raw []byte
			if raw, err = f.asMessage(); err == nil {
				r.Context = &Graph{}
				err = r.Context.decode(raw)
			}
		case 2:
			r.Goal, err = f.asString()
		case 3:
			var m int32
			m, err = f.asEnum()
			r.Module = valueobjects.ModuleKind(m)
		}
		return err
	})
}

// AlgorithmSuggestion is one ranked suggestion
type AlgorithmSuggestion struct {
	AlgorithmID string     `json:"algorithmId"`
	Name        string     `json:"name"`
	Rationale   string     `json:"rationale"`
	Confidence  float64    `json:"confidence"`
	Parameters  []Property `json:"-"`
}

func (s *AlgorithmSuggestion) encode(e *encoder) {
	e.stringField(1, s.AlgorithmID, false)
	e.stringField(2, s.Name, false)
	e.stringField(3, s.Rationale, false)
	e.doubleField(4, s.Confidence, false)
	encodeProperties(e, 5, s.Parameters)
}

func (s *AlgorithmSuggestion) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			s.AlgorithmID, err = f.asString()
		case 2:
			s.Name, err = f.asString()
		case 3:
			s.Rationale, err = f.asString()
		case 4:
			s.Confidence, err = f.asDouble()
		case 5:
			var p Property
			p, err = decodeProperty(f)
			s.Parameters = append(s.Parameters, p)
		}
		return err
	})
}

// AlgorithmSuggestionResponse lists suggestions, best first
type AlgorithmSuggestionResponse struct {
	Suggestions []*AlgorithmSuggestion
	Meta        *ResponseMeta
}

// MarshalWire encodes the response
func (r *AlgorithmSuggestionResponse) MarshalWire() ([]byte, error) {
	var e encoder
	for _, s := range r.Suggestions {
		e.messageField(1, s.encode)
	}
	if r.Meta != nil {
		e.messageField(2, r.Meta.encode)
	}
	return e.buf, nil
}

// UnmarshalWire decodes the response
func (r *AlgorithmSuggestionResponse) UnmarshalWire(b []byte) error {
	*r = AlgorithmSuggestionResponse{}
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var raw []byte
			if raw, err = f.asMessage(); err == nil {
				s := &AlgorithmSuggestion{}
				err = s.decode(raw)
				r.Suggestions = append(r.Suggestions, s)
			}
		case 2:
			r.Meta, err = decodeMeta(f)
		}
		return err
	})
}

// HealthCheckRequest is the parameterless liveness probe
type HealthCheckRequest struct{}

// MarshalWire encodes the request
func (r *HealthCheckRequest) MarshalWire() ([]byte, error) {
	return nil, nil
}

// UnmarshalWire decodes the request, ignoring unknown fields
func (r *HealthCheckRequest) UnmarshalWire(b []byte) error {
	return readFields(b, func(field) error { return nil })
}

// HealthCheckResponse reports backend liveness
type HealthCheckResponse struct {
	Healthy bool
}

// MarshalWire encodes the response
func (r *HealthCheckResponse) MarshalWire() ([]byte, error) {
	var e encoder
	e.boolField(1, r.Healthy, false)
	return e.buf, nil
}

// UnmarshalWire decodes the response
func (r *HealthCheckResponse) UnmarshalWire(b []byte) error {
	*r = HealthCheckResponse{}
	return readFields(b, func(f field) error {
		if f.num == 1 {
			v, err := f.asBool()
			r.Healthy = v
			return err
		}
		return nil
	})
}
