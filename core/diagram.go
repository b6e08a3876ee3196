package core

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/seqlogic/history"
	"github.com/signalsfoundry/seqlogic/internal/logging"
	"github.com/signalsfoundry/seqlogic/model"
	"github.com/signalsfoundry/seqlogic/storage"
)

const tracerName = "github.com/signalsfoundry/seqlogic/core"

// Pasted content lands this many screen units past the viewport origin,
// jittered so repeated pastes do not stack exactly.
const (
	pasteJitterMin = 20.0
	pasteJitterMax = 60.0
)

// versioned is the part of history.Collection the Diagram coordinates
// across its three entity kinds.
type versioned interface {
	Commit()
	Undo() (bool, error)
	Redo() (bool, error)
	CanUndo() bool
	CanRedo() bool
	Pending() bool
}

// Diagram owns the nodes, wires and texts of one circuit, keeps their
// connectivity current, and drives the tick scheduler.
//
// Edits are recorded with AddX, SetX and RemoveX and sealed with Commit.
// Position-only edits may be sealed with CommitLayout, which skips
// re-resolving connectivity. Viewport changes carry no history.
//
// A Diagram is not safe for concurrent use; all calls must come from a
// single writer.
type Diagram struct {
	nodes *history.Collection[model.Node]
	wires *history.Collection[model.Wire]
	texts *history.Collection[model.Text]

	viewport model.Viewport
	modified bool

	topo         *Topology
	wiresStale   bool // wires committed since topo was built
	sched        *Scheduler
	clockedRoots []string
	now          time.Time

	log     logging.Logger
	metrics MetricsRecorder
	rng     *rand.Rand
	newID   func() string
}

// MergeResult maps every id of a merged storage to the id it received.
type MergeResult struct {
	Nodes map[string]string
	Wires map[string]string
	Texts map[string]string
}

// New builds a Diagram from a deep copy of s. Wires whose endpoints are
// missing from s are dropped.
func New(s model.DiagramStorage, opts ...Option) *Diagram {
	s = s.Clone()
	d := &Diagram{
		viewport: s.Viewport,
		log:      logging.Noop(),
		newID:    defaultID,
		now:      time.UnixMilli(0),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	for id, w := range s.Wires {
		_, okStart := s.Nodes[w.Start]
		_, okEnd := s.Nodes[w.End]
		if !okStart || !okEnd {
			d.log.Warn(context.Background(), "dropping wire with unknown endpoint",
				logging.String("wire_id", id),
				logging.String("start", w.Start),
				logging.String("end", w.End),
			)
			delete(s.Wires, id)
		}
	}

	d.nodes = history.New(s.Nodes)
	d.wires = history.New(s.Wires)
	d.texts = history.New(s.Texts)
	d.sched = NewScheduler(d.rng)
	d.resolve()
	return d
}

func (d *Diagram) collections() []versioned {
	return []versioned{d.nodes, d.wires, d.texts}
}

// resolve rebuilds connectivity and reseeds the scheduler against it.
func (d *Diagram) resolve() {
	start := time.Now()
	prev := d.topo
	topo := Resolve(d.nodes.Snapshot(), d.wires.Snapshot(), d.keepExisting)
	d.sched.reseed(topo, prev, func(root string) bool {
		return topo.Powered(root, d.now)
	})
	d.topo = topo
	d.wiresStale = false

	d.clockedRoots = d.clockedRoots[:0]
	for _, root := range topo.Roots() {
		if topo.Clocked(root) {
			d.clockedRoots = append(d.clockedRoots, root)
		}
	}

	if d.metrics != nil {
		d.metrics.ObserveResolve(time.Since(start))
		d.metrics.SetDiagramCounts(d.nodes.Len(), d.wires.Len(), d.texts.Len(), topo.GroupCount())
	}
	d.log.Debug(context.Background(), "diagram resolved",
		logging.Int("nodes", d.nodes.Len()),
		logging.Int("wires", d.wires.Len()),
		logging.Int("groups", topo.GroupCount()),
		logging.Int("pending_flips", d.sched.Pending()),
	)
}

// keepExisting makes a merge fold a brand-new group into one the scheduler
// already tracks, so established values survive added connections.
func (d *Diagram) keepExisting(a, b string) bool {
	_, aKnown := d.sched.status[a]
	_, bKnown := d.sched.status[b]
	return aKnown && !bKnown
}

// Node returns a copy of the node stored under id.
func (d *Diagram) Node(id string) (model.Node, bool) { return d.nodes.Get(id) }

// Wire returns a copy of the wire stored under id.
func (d *Diagram) Wire(id string) (model.Wire, bool) { return d.wires.Get(id) }

// Text returns a copy of the text stored under id.
func (d *Diagram) Text(id string) (model.Text, bool) { return d.texts.Get(id) }

// NodeIDs returns every node id in ascending order.
func (d *Diagram) NodeIDs() []string { return d.nodes.IDs() }

// WireIDs returns every wire id in ascending order.
func (d *Diagram) WireIDs() []string { return d.wires.IDs() }

// TextIDs returns every text id in ascending order.
func (d *Diagram) TextIDs() []string { return d.texts.IDs() }

// Viewport returns the stored viewport.
func (d *Diagram) Viewport() model.Viewport { return d.viewport }

// SetViewport replaces the viewport. It is not recorded in history.
func (d *Diagram) SetViewport(v model.Viewport) { d.viewport = v }

// Modified reports whether the diagram changed since it was loaded or last
// saved.
func (d *Diagram) Modified() bool { return d.modified }

// AddNode inserts n under a fresh id.
func (d *Diagram) AddNode(n model.Node) string {
	id := d.newID()
	d.nodes.Set(id, n)
	return id
}

// AddText inserts t under a fresh id.
func (d *Diagram) AddText(t model.Text) string {
	id := d.newID()
	d.texts.Set(id, t)
	return id
}

// AddWire inserts w under a fresh id. Self-loops, wires to unknown nodes
// and wires duplicating an existing one (see model.Wire.Duplicates) are
// silently refused, in which case ok is false.
func (d *Diagram) AddWire(w model.Wire) (id string, ok bool) {
	if err := d.checkWire("", w); err != nil {
		d.log.Debug(context.Background(), "wire refused",
			logging.String("start", w.Start),
			logging.String("end", w.End),
			logging.Err(err),
		)
		return "", false
	}
	id = d.newID()
	d.wires.Set(id, w)
	return id, true
}

func (d *Diagram) checkWire(self string, w model.Wire) error {
	if w.Start == w.End {
		return fmt.Errorf("%w: self-loop on %q", ErrInvalidWire, w.Start)
	}
	if !d.nodes.Has(w.Start) {
		return fmt.Errorf("%w: node %q", ErrNotFound, w.Start)
	}
	if !d.nodes.Has(w.End) {
		return fmt.Errorf("%w: node %q", ErrNotFound, w.End)
	}
	for id, existing := range d.wires.All() {
		if id != self && existing.Duplicates(w) {
			return fmt.Errorf("%w: %q and %q already connected by %q", ErrInvalidWire, w.Start, w.End, id)
		}
	}
	return nil
}

// SetNode replaces the node stored under id.
func (d *Diagram) SetNode(id string, n model.Node) error {
	if !d.nodes.Has(id) {
		return fmt.Errorf("%w: node %q", ErrNotFound, id)
	}
	d.nodes.Set(id, n)
	return nil
}

// SetWire replaces the wire stored under id. The replacement obeys the same
// rules as AddWire but reports violations as errors.
func (d *Diagram) SetWire(id string, w model.Wire) error {
	if !d.wires.Has(id) {
		return fmt.Errorf("%w: wire %q", ErrNotFound, id)
	}
	if err := d.checkWire(id, w); err != nil {
		return err
	}
	d.wires.Set(id, w)
	return nil
}

// SetText replaces the text stored under id.
func (d *Diagram) SetText(id string, t model.Text) error {
	if !d.texts.Has(id) {
		return fmt.Errorf("%w: text %q", ErrNotFound, id)
	}
	d.texts.Set(id, t)
	return nil
}

// RemoveNode deletes a node together with every wire touching it.
func (d *Diagram) RemoveNode(id string) error {
	if !d.nodes.Has(id) {
		return fmt.Errorf("%w: node %q", ErrNotFound, id)
	}
	for _, wid := range d.incidentWires(id) {
		d.wires.Delete(wid)
	}
	d.nodes.Delete(id)
	return nil
}

// incidentWires lists the wires touching id. The resolved adjacency is
// exact unless wires changed since the last resolve.
func (d *Diagram) incidentWires(id string) []string {
	if !d.wires.Pending() && !d.wiresStale {
		return d.topo.WiresOf(id)
	}
	var out []string
	for wid, w := range d.wires.All() {
		if w.Touches(id) {
			out = append(out, wid)
		}
	}
	return out
}

// RemoveWire deletes a wire.
func (d *Diagram) RemoveWire(id string) error {
	if !d.wires.Delete(id) {
		return fmt.Errorf("%w: wire %q", ErrNotFound, id)
	}
	return nil
}

// RemoveText deletes a text.
func (d *Diagram) RemoveText(id string) error {
	if !d.texts.Delete(id) {
		return fmt.Errorf("%w: text %q", ErrNotFound, id)
	}
	return nil
}

// Commit seals all pending edits of the three collections as one undoable
// unit and re-resolves connectivity.
func (d *Diagram) Commit() {
	d.CommitLayout()
	d.resolve()
}

// CommitLayout seals pending edits without re-resolving. It is only correct
// when the edits moved nodes or texts.
func (d *Diagram) CommitLayout() {
	if d.wires.Pending() {
		d.wiresStale = true
	}
	for _, c := range d.collections() {
		c.Commit()
	}
	d.modified = true
}

// Undo reverts the last committed unit across nodes, wires and texts. It
// reports false, changing nothing, when any collection has nothing left to
// undo. Calling it with uncommitted edits is a programming error reported
// as history.ErrMisuse.
func (d *Diagram) Undo() (bool, error) {
	return d.step(versioned.CanUndo, versioned.Undo)
}

// Redo reapplies the last undone unit. It mirrors Undo.
func (d *Diagram) Redo() (bool, error) {
	return d.step(versioned.CanRedo, versioned.Redo)
}

func (d *Diagram) step(can func(versioned) bool, apply func(versioned) (bool, error)) (bool, error) {
	cs := d.collections()
	for _, c := range cs {
		if c.Pending() {
			return false, history.ErrUncommitted
		}
	}
	for _, c := range cs {
		if !can(c) {
			return false, nil
		}
	}
	for _, c := range cs {
		if _, err := apply(c); err != nil {
			return false, err
		}
	}
	d.modified = true
	d.resolve()
	return true, nil
}

// Extract returns the given nodes and texts plus every wire whose both
// endpoints are among nodeIDs. Unknown ids are skipped.
func (d *Diagram) Extract(nodeIDs, textIDs []string) model.DiagramStorage {
	out := model.BlankStorage()
	out.Viewport = d.viewport
	for _, id := range nodeIDs {
		if n, ok := d.nodes.Get(id); ok {
			out.Nodes[id] = n
		}
	}
	for id, w := range d.wires.All() {
		_, okStart := out.Nodes[w.Start]
		_, okEnd := out.Nodes[w.End]
		if okStart && okEnd {
			out.Wires[id] = w
		}
	}
	for _, id := range textIDs {
		if t, ok := d.texts.Get(id); ok {
			out.Texts[id] = t
		}
	}
	return out
}

// Merge pastes s into the diagram. Every entity receives a fresh id, wires
// are re-pointed at the new node ids, and content is shifted to just past
// the viewport origin with a random jitter. The whole paste is committed as
// one unit.
func (d *Diagram) Merge(s model.DiagramStorage) MergeResult {
	res := MergeResult{
		Nodes: make(map[string]string, len(s.Nodes)),
		Wires: make(map[string]string, len(s.Wires)),
		Texts: make(map[string]string, len(s.Texts)),
	}
	dx, dy := d.pasteOffset(s)

	for _, id := range sortedKeys(s.Nodes) {
		n := s.Nodes[id]
		n.X += dx
		n.Y += dy
		res.Nodes[id] = d.AddNode(n)
	}
	for _, id := range sortedKeys(s.Wires) {
		w := s.Wires[id]
		start, okStart := res.Nodes[w.Start]
		end, okEnd := res.Nodes[w.End]
		if !okStart || !okEnd {
			continue
		}
		if nid, ok := d.AddWire(model.Wire{Start: start, End: end, Not: w.Not}); ok {
			res.Wires[id] = nid
		}
	}
	for _, id := range sortedKeys(s.Texts) {
		t := s.Texts[id]
		t.X += dx
		t.Y += dy
		res.Texts[id] = d.AddText(t)
	}
	d.Commit()
	d.log.Debug(context.Background(), "storage merged",
		logging.Int("nodes", len(res.Nodes)),
		logging.Int("wires", len(res.Wires)),
		logging.Int("texts", len(res.Texts)),
	)
	return res
}

func (d *Diagram) pasteOffset(s model.DiagramStorage) (float64, float64) {
	minX, minY := math.Inf(1), math.Inf(1)
	for _, n := range s.Nodes {
		minX, minY = math.Min(minX, n.X), math.Min(minY, n.Y)
	}
	for _, t := range s.Texts {
		minX, minY = math.Min(minX, t.X), math.Min(minY, t.Y)
	}
	if math.IsInf(minX, 1) {
		return 0, 0
	}
	scale := d.viewport.Scale
	if !(scale > 0) {
		scale = 1
	}
	jitter := func() float64 {
		return (pasteJitterMin + d.rng.Float64()*(pasteJitterMax-pasteJitterMin)) / scale
	}
	return d.viewport.X + jitter() - minX, d.viewport.Y + jitter() - minY
}

// GroupRoot returns the representative node of id's group.
func (d *Diagram) GroupRoot(id string) (string, error) {
	if !d.nodes.Has(id) {
		return "", fmt.Errorf("%w: node %q", ErrNotFound, id)
	}
	root := d.topo.Root(id)
	if root == "" {
		return "", fmt.Errorf("%w: node %q is not resolved yet", ErrNotFound, id)
	}
	return root, nil
}

// NodeStatus returns the simulated status of id's group.
func (d *Diagram) NodeStatus(id string) (model.Status, error) {
	root, err := d.GroupRoot(id)
	if err != nil {
		return model.Status{}, err
	}
	st, ok := d.sched.statusOf(root)
	if !ok {
		return model.Status{}, fmt.Errorf("%w: status of %q", ErrNotFound, id)
	}
	out := model.Status{Powered: st.powered, Active: st.active}
	if st.pending {
		next := st.nextTick
		out.NextTick = &next
	}
	return out, nil
}

// AdvanceTick refreshes clocked sources at now and commits every flip due
// at the current tick. It returns the roots of the groups that flipped.
func (d *Diagram) AdvanceTick(now time.Time) []string {
	d.now = now
	for _, root := range d.clockedRoots {
		d.sched.setPowered(root, d.topo.Powered(root, now))
	}
	tick := d.sched.Current()
	flipped := d.sched.Advance()
	if d.metrics != nil {
		d.metrics.RecordTick(tick, len(flipped), d.sched.Pending())
	}
	return flipped
}

// CurrentTick returns the index of the next tick AdvanceTick will commit.
func (d *Diagram) CurrentTick() int { return d.sched.Current() }

// PendingFlips returns the number of scheduled flips.
func (d *Diagram) PendingFlips() int { return d.sched.Pending() }

// Topology returns the connectivity computed by the last resolve.
func (d *Diagram) Topology() *Topology { return d.topo }

// ToStorage returns a deep copy of the diagram's persisted shape.
func (d *Diagram) ToStorage() model.DiagramStorage {
	return model.DiagramStorage{
		Nodes:    d.nodes.Snapshot(),
		Wires:    d.wires.Snapshot(),
		Texts:    d.texts.Snapshot(),
		Viewport: d.viewport,
	}
}

// LoadFile reads and decodes the diagram at path. A document that fails
// validation yields storage.ErrInvalidFormat and no Diagram; read errors
// are returned unchanged.
func LoadFile(ctx context.Context, r FileReader, path string, opts ...Option) (*Diagram, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Diagram/LoadFile")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	data, err := r.ReadFile(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, err
	}
	s, err := storage.Decode(data)
	if err == nil {
		err = storage.Validate(s)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid document")
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	d := New(s, opts...)
	span.SetAttributes(
		attribute.Int("nodes", d.nodes.Len()),
		attribute.Int("wires", d.wires.Len()),
		attribute.Int("texts", d.texts.Len()),
	)
	d.log.Info(ctx, "diagram loaded",
		logging.String("path", path),
		logging.Int("nodes", d.nodes.Len()),
		logging.Int("wires", d.wires.Len()),
	)
	return d, nil
}

// SaveFile encodes the diagram and writes it to path. A successful save
// clears the modified flag.
func (d *Diagram) SaveFile(ctx context.Context, w FileWriter, path string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Diagram/SaveFile")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	data, err := storage.Encode(d.ToStorage())
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := w.WriteFile(ctx, path, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return err
	}
	d.modified = false
	d.log.Info(ctx, "diagram saved", logging.String("path", path), logging.Int("bytes", len(data)))
	return nil
}
