// Package reconciler folds structuring chunks into the graph model.
package reconciler

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"graphscape/application/ports"
	"graphscape/domain/core/aggregates"
	"graphscape/domain/core/entities"
	"graphscape/domain/core/valueobjects"
	"graphscape/domain/events"
	pkgerrors "graphscape/pkg/errors"
	"graphscape/pkg/protocol"
)

// Options tunes one reconciliation
type Options struct {
	// MaxDeferredEdges caps the pending buffer; zero means unlimited.
	MaxDeferredEdges int
	SessionID        string
	// Locker, when set, is held by Consume around every graph mutation but
	// not while waiting for the next chunk.
	Locker sync.Locker
}

// Result summarizes a completed stream
type Result struct {
	Reason       events.CompletionReason `json:"reason"`
	NodesAdded   int                     `json:"nodesAdded"`
	EdgesAdded   int                     `json:"edgesAdded"`
	DroppedEdges int                     `json:"droppedEdges"`
	Warnings     []events.Warning        `json:"warnings"`
	Confidence   float64                 `json:"confidence"`
	Meta         *protocol.ResponseMeta  `json:"meta,omitempty"`
}

// Reconciler folds one stream of chunks into a graph. It is the only
// writer of the graph while the stream is open and is not safe for
// concurrent use.
type Reconciler struct {
	graph   *aggregates.Graph
	logger  *zap.Logger
	options Options

	pending *pendingBuffer

	nodesAdded   int
	edgesAdded   int
	droppedEdges int
	warnings     []events.Warning

	confidence    float64
	confidenceSet bool
	meta          *protocol.ResponseMeta

	completed bool
	result    *Result
}

// New creates a reconciler writing into graph
func New(graph *aggregates.Graph, logger *zap.Logger, options Options) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		graph:   graph,
		logger:  logger.With(zap.String("graphID", graph.ID().String()), zap.String("sessionID", options.SessionID)),
		options: options,
		pending: newPendingBuffer(),
	}
}

// Pending returns the number of deferred edges
func (r *Reconciler) Pending() int {
	return r.pending.Len()
}

// PendingBetween returns copies of the deferred edges waiting on source and target
func (r *Reconciler) PendingBetween(source, target valueobjects.NodeID) []*entities.GraphEdge {
	edges := r.pending.between(source, target)
	out := make([]*entities.GraphEdge, len(edges))
	for i, e := range edges {
		out[i] = e.Clone()
	}
	return out
}

// Completed reports whether the stream has been completed
func (r *Reconciler) Completed() bool {
	return r.completed
}

// Apply folds one chunk. done is true once the stream is complete; chunks
// arriving after completion are ignored. Problems with the chunk itself are
// reported as warnings; a returned error comes from a subscriber and is
// fatal when pkgerrors.IsFatal says so.
func (r *Reconciler) Apply(chunk *protocol.StructureChunk) (bool, error) {
	if r.completed {
		r.logger.Debug("Ignoring chunk after completion")
		return true, nil
	}
	if chunk == nil {
		return false, nil
	}

	var payloadErr error
	switch p := chunk.Payload.(type) {
	case protocol.NodeChunk:
		payloadErr = r.applyNode(p.Node)
	case protocol.EdgeChunk:
		payloadErr = r.applyEdge(p.Edge)
	case protocol.WarningChunk:
		payloadErr = r.warn(events.WarningUpstream, p.Warning, "")
	}
	if pkgerrors.IsFatal(payloadErr) {
		return false, payloadErr
	}

	// A subscriber failure on the payload still lets the chunk's meta,
	// confidence and final flag take effect.
	if chunk.Meta != nil {
		r.meta = chunk.Meta
	}
	confErr := r.reportConfidence(chunk)
	if pkgerrors.IsFatal(confErr) {
		return false, confErr
	}

	if chunk.IsFinal {
		_, err := r.Complete(events.CompletionFinal)
		return true, errors.Join(payloadErr, confErr, err)
	}
	return false, errors.Join(payloadErr, confErr)
}

// Consume reads stream until a final chunk, closure or failure, then
// completes the reconciliation. A failed or cancelled stream still returns
// the partial result together with the stream error.
func (r *Reconciler) Consume(stream ports.ChunkStream) (*Result, error) {
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return r.locked(func() (*Result, error) { return r.Complete(events.CompletionClosed) })
		}
		if err != nil {
			reason := events.CompletionFailed
			if pkgerrors.IsCancelled(err) {
				reason = events.CompletionCancelled
			}
			res, cerr := r.locked(func() (*Result, error) { return r.Complete(reason) })
			if cerr != nil {
				return res, errors.Join(err, cerr)
			}
			return res, err
		}

		r.logger.Debug("Chunk received", zap.Bool("isFinal", chunk.IsFinal))
		var done bool
		_, err = r.locked(func() (*Result, error) {
			var applyErr error
			done, applyErr = r.Apply(chunk)
			return nil, applyErr
		})
		if err != nil {
			if pkgerrors.IsFatal(err) {
				return r.resultSnapshot(events.CompletionFailed), err
			}
			r.logger.Error("Subscriber failed while applying chunk", zap.Error(err))
		}
		if done {
			return r.result, nil
		}
	}
}

func (r *Reconciler) locked(fn func() (*Result, error)) (*Result, error) {
	if r.options.Locker != nil {
		r.options.Locker.Lock()
		defer r.options.Locker.Unlock()
	}
	return fn()
}

// Complete ends the stream. Edges still deferred are dropped, each with a
// warning, and a StreamCompleted event closes the sequence. Completing twice
// returns the first result.
func (r *Reconciler) Complete(reason events.CompletionReason) (*Result, error) {
	if r.completed {
		return r.result, nil
	}
	r.completed = true

	var errs []error
	for _, edge := range r.pending.drain() {
		r.droppedEdges++
		msg := fmt.Sprintf("dropped deferred edge '%s': missing node(s) %v",
			edge.ID(), r.graph.MissingEndpoints(edge))
		if err := r.warn(events.WarningDroppedDeferredEdge, msg, edge.ID().String()); err != nil {
			errs = append(errs, err)
		}
	}

	r.result = r.resultSnapshot(reason)
	err := r.graph.Emit(func(graphID string, seq uint64) events.GraphEvent {
		return events.NewStreamCompleted(graphID, seq, reason,
			r.nodesAdded, r.edgesAdded, r.droppedEdges, len(r.warnings))
	})
	if err != nil {
		errs = append(errs, err)
	}

	r.logger.Info("Structuring stream completed",
		zap.String("reason", string(reason)),
		zap.Int("nodesAdded", r.nodesAdded),
		zap.Int("edgesAdded", r.edgesAdded),
		zap.Int("droppedEdges", r.droppedEdges),
		zap.Int("warnings", len(r.warnings)))

	return r.result, errors.Join(errs...)
}

func (r *Reconciler) applyNode(wire *protocol.GraphNode) error {
	if wire == nil {
		return r.warn(events.WarningInvalidChunk, "node chunk carries no node", "")
	}
	node, err := wire.ToEntity()
	if err != nil {
		return r.warn(events.WarningInvalidChunk, describe(err), wire.ID)
	}

	if existing, ok := r.graph.Node(node.ID()); ok {
		if existing.Equal(node) {
			return nil
		}
		return r.warn(events.WarningNodeCollision,
			fmt.Sprintf("node id collision: '%s' already exists with different content", node.ID()),
			node.ID().String())
	}

	committed, err := r.mutate(func() error { return r.graph.UpsertNode(node) }, node.ID().String())
	if !committed {
		return err
	}
	r.nodesAdded++
	if err != nil {
		return err
	}

	return r.flush()
}

func (r *Reconciler) applyEdge(wire *protocol.GraphEdge) error {
	if wire == nil {
		return r.warn(events.WarningInvalidChunk, "edge chunk carries no edge", "")
	}
	edge, err := wire.ToEntity()
	if err != nil {
		return r.warn(events.WarningInvalidChunk, describe(err), wire.ID)
	}

	existing, ok := r.graph.Edge(edge.ID())
	if !ok {
		existing, ok = r.pending.get(edge.ID())
	}
	if ok {
		if existing.Equal(edge) {
			return nil
		}
		return r.warn(events.WarningEdgeCollision,
			fmt.Sprintf("edge id collision: '%s' already exists with different content", edge.ID()),
			edge.ID().String())
	}

	if missing := r.graph.MissingEndpoints(edge); len(missing) > 0 {
		return r.deferEdge(edge, missing)
	}
	return r.commitEdge(edge)
}

func (r *Reconciler) deferEdge(edge *entities.GraphEdge, missing []valueobjects.NodeID) error {
	if limit := r.options.MaxDeferredEdges; limit > 0 && r.pending.Len() >= limit {
		oldest := r.pending.takeOldest()
		r.droppedEdges++
		msg := fmt.Sprintf("dropped deferred edge '%s': pending limit %d reached", oldest.ID(), limit)
		if err := r.warn(events.WarningDroppedDeferredEdge, msg, oldest.ID().String()); err != nil {
			return err
		}
	}

	r.pending.add(edge)
	r.logger.Debug("Edge deferred",
		zap.String("edgeID", edge.ID().String()),
		zap.Any("missing", missing))

	deferred := edge.Clone()
	return r.graph.Emit(func(graphID string, seq uint64) events.GraphEvent {
		return events.NewEdgeDeferred(graphID, seq, deferred, missing)
	})
}

func (r *Reconciler) commitEdge(edge *entities.GraphEdge) error {
	committed, err := r.mutate(func() error { return r.graph.AddEdge(edge) }, edge.ID().String())
	if committed {
		r.edgesAdded++
	}
	return err
}

// flush commits every deferred edge whose endpoints now exist
func (r *Reconciler) flush() error {
	for _, edge := range r.pending.takeResolvable(r.graph.HasNode) {
		if err := r.commitEdge(edge); err != nil {
			return err
		}
	}
	return nil
}

// mutate runs a graph mutation. A rejection by the graph, which leaves the
// version untouched, becomes a warning; an error after the mutation was
// committed came from a subscriber and is returned.
func (r *Reconciler) mutate(apply func() error, entityID string) (bool, error) {
	before := r.graph.Version()
	err := apply()
	if err == nil {
		return r.graph.Version() != before, nil
	}
	if r.graph.Version() != before {
		return true, err
	}

	kind := events.WarningInvalidChunk
	if appErr := pkgerrors.GetAppError(err); appErr != nil && appErr.Code == aggregates.CodeLimitExceeded {
		kind = events.WarningLimitExceeded
	}
	return false, r.warn(kind, describe(err), entityID)
}

func (r *Reconciler) reportConfidence(chunk *protocol.StructureChunk) error {
	// Non-final chunks leave confidence at its zero value when unset
	if !chunk.IsFinal && chunk.Confidence == 0 {
		return nil
	}
	if r.confidenceSet && chunk.Confidence == r.confidence {
		return nil
	}
	r.confidence = chunk.Confidence
	r.confidenceSet = true

	conf := chunk.Confidence
	return r.graph.Emit(func(graphID string, seq uint64) events.GraphEvent {
		return events.NewConfidenceReported(graphID, seq, conf)
	})
}

func (r *Reconciler) warn(kind events.WarningKind, message, entityID string) error {
	w := events.Warning{Kind: kind, Message: message, EntityID: entityID}
	r.warnings = append(r.warnings, w)
	r.logger.Warn("Reconciliation warning",
		zap.String("kind", string(kind)),
		zap.String("entityID", entityID),
		zap.Error(w.Err()))

	return r.graph.Emit(func(graphID string, seq uint64) events.GraphEvent {
		return events.NewWarningRaised(graphID, seq, w)
	})
}

func (r *Reconciler) resultSnapshot(reason events.CompletionReason) *Result {
	return &Result{
		Reason:       reason,
		NodesAdded:   r.nodesAdded,
		EdgesAdded:   r.edgesAdded,
		DroppedEdges: r.droppedEdges,
		Warnings:     append([]events.Warning(nil), r.warnings...),
		Confidence:   r.confidence,
		Meta:         r.meta,
	}
}

func describe(err error) string {
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		return appErr.Message
	}
	return err.Error()
}
