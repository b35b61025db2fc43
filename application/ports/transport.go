package ports

import (
	"context"

	"graphscape/pkg/protocol"
)

// Transport defines the interface to the computation backend.
// Implementations map network and deadline failures to TransportFailure errors.
type Transport interface {
	// Send issues a unary action call
	Send(ctx context.Context, req *protocol.ActionRequest) (*protocol.ActionResponse, error)

	// StructureStream opens a structuring stream; chunks arrive in send order
	StructureStream(ctx context.Context, req *protocol.StructureRequest) (ChunkStream, error)

	// Structure issues the unary structuring call
	Structure(ctx context.Context, req *protocol.StructureRequest) (*protocol.StructureResponse, error)

	// SuggestAlgorithms asks for algorithms suited to a graph and goal
	SuggestAlgorithms(ctx context.Context, req *protocol.AlgorithmSuggestionRequest) (*protocol.AlgorithmSuggestionResponse, error)

	// Check probes backend liveness; an unhealthy answer is an error
	Check(ctx context.Context) error

	// Close releases the underlying connection
	Close() error
}

// ChunkStream is one open structuring stream
type ChunkStream interface {
	// Recv returns the next chunk, or io.EOF once the backend closed the stream
	Recv() (*protocol.StructureChunk, error)

	// Close aborts the stream; it is safe to call more than once
	Close() error
}

// Prober is the liveness surface the connection state machine needs
type Prober interface {
	Check(ctx context.Context) error
}
