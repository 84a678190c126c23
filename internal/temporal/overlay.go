// Package temporal implements the workflow state machine (component H)
// layered on top of the in-memory ISG: edit/delete/create/revert of an
// entity's pending future state, changeset enumeration, and the
// commit-and-reindex operation that drops all pending state by re-running
// ingestion (component F) against the files the workflow wrote to disk.
package temporal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"parseltongue/internal/ingest"
	"parseltongue/internal/isg"
	"parseltongue/internal/keyid"
	"parseltongue/internal/plog"
	"parseltongue/internal/store"
)

// ErrEntityNotFound is returned by edit/delete when key is not in the graph.
type ErrEntityNotFound struct{ Key string }

func (e *ErrEntityNotFound) Error() string { return fmt.Sprintf("entity not found: %s", e.Key) }

// ErrInvalidTransition is returned when an operation is attempted from a
// state the table in §4.H does not permit it from.
type ErrInvalidTransition struct {
	Key       string
	Operation string
	State     string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition: %s on %s from state %s", e.Operation, e.Key, e.State)
}

// ErrFutureCodeEqualsCurrent is edit's I2/P6 rejection: a no-op edit.
type ErrFutureCodeEqualsCurrent struct{ Key string }

func (e *ErrFutureCodeEqualsCurrent) Error() string {
	return fmt.Sprintf("future_code equals current_code for %s: not a valid edit", e.Key)
}

// ErrKeyCollision is create's statistically-impossible-but-checked failure.
type ErrKeyCollision struct{ Key string }

func (e *ErrKeyCollision) Error() string { return fmt.Sprintf("key collision on create: %s", e.Key) }

// Change is one row of a changeset (the pre-serialization form of the
// change-set JSON document in §6).
type Change struct {
	Key                string
	FilePath           string
	Operation          isg.FutureAction
	LineRange          *isg.LineRange
	CurrentCode        *string
	FutureCode         *string
	InterfaceSignature isg.Signature
}

// Overlay is the workflow state machine operating on a single in-memory
// graph. It holds no state of its own beyond a reference to the graph and
// the ingestion pipeline commit_and_reindex re-runs.
type Overlay struct {
	graph    *isg.Graph
	pipeline *ingest.Pipeline
	store    *store.Store
	now      func() time.Time
}

// New builds an overlay over graph, using pipeline for commit_and_reindex.
// st may be nil for a graph-only overlay (e.g. tests with no persistence
// layer); CommitAndReindex then resets only the in-memory graph.
func New(graph *isg.Graph, pipeline *ingest.Pipeline, st *store.Store) *Overlay {
	return &Overlay{graph: graph, pipeline: pipeline, store: st, now: time.Now}
}

func stateLabel(e isg.Entity) string {
	action := "null"
	if e.FutureAction != nil {
		action = string(*e.FutureAction)
	}
	return fmt.Sprintf("(%v,%v,%s)", e.CurrentInd, e.FutureInd, action)
}

// persist writes file's current entity/edge state through to the store, a
// no-op when no store is wired (e.g. tests running graph-only). Every
// overlay operation that mutates the graph calls this afterward so a
// pending edit/delete/create/revert survives the process exiting: the CLI
// is a fresh process per invocation (O6), so anything left graph-only is
// gone the moment the command returns.
func (o *Overlay) persist(ctx context.Context, file string) error {
	if o.store == nil {
		return nil
	}
	if err := o.store.SyncFile(ctx, o.graph, file); err != nil {
		return fmt.Errorf("persist temporal state for %s: %w", file, err)
	}
	return nil
}

// Edit sets future_code and future_action=Edit. Requires state (T,T,*); also
// allowed on a pending create (F,T,Create), where it updates future_code in
// place and leaves future_action=Create untouched.
func (o *Overlay) Edit(ctx context.Context, key, futureCode string) error {
	e, ok := o.graph.GetEntity(key)
	if !ok {
		return &ErrEntityNotFound{Key: key}
	}
	isPendingCreate := !e.CurrentInd && e.FutureInd && e.FutureAction != nil && *e.FutureAction == isg.ActionCreate
	if !(e.CurrentInd && e.FutureInd) && !isPendingCreate {
		return &ErrInvalidTransition{Key: key, Operation: "edit", State: stateLabel(e)}
	}
	if e.CurrentCode != nil && futureCode == *e.CurrentCode {
		return &ErrFutureCodeEqualsCurrent{Key: key}
	}

	e.FutureCode = &futureCode
	if !isPendingCreate {
		action := isg.ActionEdit
		e.FutureAction = &action
	}
	if err := o.graph.PutEntity(&e); err != nil {
		return err
	}
	if err := o.persist(ctx, e.FilePath); err != nil {
		return err
	}
	plog.Get(plog.CategoryTemporal).Info("edit pending on %s", key)
	return nil
}

// Delete sets future_action=Delete, future_ind=false, clears future_code.
// Requires state (T,T,null) or (T,T,Edit).
func (o *Overlay) Delete(ctx context.Context, key string) error {
	e, ok := o.graph.GetEntity(key)
	if !ok {
		return &ErrEntityNotFound{Key: key}
	}
	if !(e.CurrentInd && e.FutureInd && (e.FutureAction == nil || *e.FutureAction == isg.ActionEdit)) {
		return &ErrInvalidTransition{Key: key, Operation: "delete", State: stateLabel(e)}
	}

	action := isg.ActionDelete
	e.FutureInd = false
	e.FutureAction = &action
	e.FutureCode = nil
	if err := o.graph.PutEntity(&e); err != nil {
		return err
	}
	if err := o.persist(ctx, e.FilePath); err != nil {
		return err
	}
	plog.Get(plog.CategoryTemporal).Info("delete pending on %s", key)
	return nil
}

// Create inserts a new pending-create entity at a hash-based key. Fails
// KeyCollision if the generated key already exists (statistically
// impossible within a session, but checked per §4.H).
func (o *Overlay) Create(ctx context.Context, filePath, name string, kind isg.Kind, futureCode string) (string, error) {
	key, err := keyid.HashKey(filePath, name, string(kind), o.now())
	if err != nil {
		return "", err
	}
	if o.graph.HasEntity(key) {
		return "", &ErrKeyCollision{Key: key}
	}

	action := isg.ActionCreate
	e := &isg.Entity{
		Key:          key,
		Kind:         kind,
		Name:         name,
		FilePath:     filePath,
		CurrentInd:   false,
		FutureInd:    true,
		FutureAction: &action,
		FutureCode:   &futureCode,
	}
	if err := o.graph.PutEntity(e); err != nil {
		return "", err
	}
	if err := o.persist(ctx, filePath); err != nil {
		return "", err
	}
	plog.Get(plog.CategoryTemporal).Info("create pending at %s", key)
	return key, nil
}

// Revert returns an entity to (T,T,null), or removes it entirely if it was
// a pending Create (which has no current-graph existence to return to).
func (o *Overlay) Revert(ctx context.Context, key string) error {
	e, ok := o.graph.GetEntity(key)
	if !ok {
		return &ErrEntityNotFound{Key: key}
	}

	if !e.CurrentInd && e.FutureInd && e.FutureAction != nil && *e.FutureAction == isg.ActionCreate {
		o.graph.RemoveEntity(key)
		if err := o.persist(ctx, e.FilePath); err != nil {
			return err
		}
		plog.Get(plog.CategoryTemporal).Info("reverted pending create %s (removed)", key)
		return nil
	}

	isPendingEditOrDelete := e.CurrentInd && e.FutureAction != nil &&
		(*e.FutureAction == isg.ActionEdit || *e.FutureAction == isg.ActionDelete)
	if !isPendingEditOrDelete {
		return &ErrInvalidTransition{Key: key, Operation: "revert", State: stateLabel(e)}
	}

	e.FutureInd = true
	e.FutureAction = nil
	e.FutureCode = nil
	if err := o.graph.PutEntity(&e); err != nil {
		return err
	}
	if err := o.persist(ctx, e.FilePath); err != nil {
		return err
	}
	plog.Get(plog.CategoryTemporal).Info("reverted %s", key)
	return nil
}

// Changeset returns every entity with a non-null future_action, ordered by
// key, in the shape §6's change-set document serializes directly from.
func (o *Overlay) Changeset() []Change {
	var out []Change
	for _, e := range o.graph.Snapshot() {
		if e.FutureAction == nil {
			continue
		}
		out = append(out, Change{
			Key:                e.Key,
			FilePath:           e.FilePath,
			Operation:          *e.FutureAction,
			LineRange:          e.LineRange,
			CurrentCode:        e.CurrentCode,
			FutureCode:         e.FutureCode,
			InterfaceSignature: e.InterfaceSignature,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// CommitAndReindex assumes the external applier has already written the
// workflow's changes to disk at projectRoot. It resets both the persistent
// store (if one is wired) and the in-memory graph, dropping every entity,
// edge, and pending temporal state (H3), then re-ingests from the new file
// contents. No backup metadata is retained: atomicity of the on-disk write
// is the applier's concern, not the overlay's. Resetting the store here,
// rather than leaving it to the caller, keeps the store from ever observing
// a commit that reset the graph without it (or vice versa) — the graph and
// the persisted facts backing it must always move together.
func (o *Overlay) CommitAndReindex(ctx context.Context, projectRoot string, opts ingest.Options) (*ingest.Report, error) {
	if o.store != nil {
		if err := o.store.Reset(ctx); err != nil {
			return nil, fmt.Errorf("commit_and_reindex: reset store: %w", err)
		}
	}
	o.graph.Reset()
	report, err := o.pipeline.Ingest(ctx, projectRoot, opts)
	if err != nil {
		return report, fmt.Errorf("commit_and_reindex: %w", err)
	}
	plog.Get(plog.CategoryTemporal).Info("commit_and_reindex: %d entities, %d edges", report.EntitiesIngested, report.EdgesIngested)
	return report, nil
}
