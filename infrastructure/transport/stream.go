package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"graphscape/pkg/protocol"
)

// chunkStream adapts a grpc.ClientStream to ports.ChunkStream
type chunkStream struct {
	client *GRPCClient
	ctx    context.Context
	stream grpc.ClientStream
	cancel context.CancelFunc
	span   trace.Span
	start  time.Time

	received int
	once     sync.Once
}

// Recv returns the next chunk or io.EOF once the backend finished sending
func (s *chunkStream) Recv() (*protocol.StructureChunk, error) {
	var raw protocol.RawMessage
	if err := s.stream.RecvMsg(&raw); err != nil {
		if err == io.EOF {
			s.end(nil)
			return nil, io.EOF
		}
		mapped := s.client.mapError(s.ctx, MethodStructureInputStream, err)
		s.end(mapped)
		return nil, mapped
	}

	chunk := &protocol.StructureChunk{}
	if err := chunk.UnmarshalWire(raw); err != nil {
		s.end(err)
		return nil, err
	}
	s.received++
	if s.client.metrics != nil {
		s.client.metrics.ObserveChunk(chunkKind(chunk))
	}
	return chunk, nil
}

// Close cancels the call; it is safe to call more than once
func (s *chunkStream) Close() error {
	s.end(nil)
	return nil
}

func (s *chunkStream) end(err error) {
	s.once.Do(func() {
		s.cancel()
		s.span.SetAttributes(attribute.Int("stream.chunks", s.received))
		s.client.finish(s.span, MethodStructureInputStream, err, s.start)
	})
}

func chunkKind(c *protocol.StructureChunk) string {
	switch c.Payload.(type) {
	case protocol.NodeChunk:
		return "node"
	case protocol.EdgeChunk:
		return "edge"
	case protocol.WarningChunk:
		return "warning"
	}
	if c.IsFinal {
		return "final"
	}
	return "empty"
}
