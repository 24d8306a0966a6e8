// Package nexus implements the Nexus Core: aggregation of child block
// devices into a single virtual block device, round-robin read selection,
// concurrent write fan-out, and child add/remove/destroy lifecycle.
//
// Grounded on pkg/blocks.BlockService's shape (a mutex-guarded service
// struct exposing ReadAt/WriteAt/Flush that fan out to an underlying
// store), generalized from a single-cache fan-in to an N-child
// fan-out/fan-in joined with golang.org/x/sync/errgroup.
package nexus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nexusd/nexuscore/internal/logger"
	"github.com/nexusd/nexuscore/pkg/child"
	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
	"github.com/nexusd/nexuscore/pkg/child/state"
	"github.com/nexusd/nexuscore/pkg/notify"
	"github.com/nexusd/nexuscore/pkg/nexus/reconfig"
	"github.com/nexusd/nexuscore/pkg/nexus/rebuild"
)

// State is the Nexus-level aggregate health, derived from its children's
// states rather than tracked independently.
type State int

const (
	StateInit State = iota
	StateOnline
	StateDegraded
	StateFaulted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "NEXUS_INIT"
	case StateOnline:
		return "NEXUS_ONLINE"
	case StateDegraded:
		return "NEXUS_DEGRADED"
	case StateFaulted:
		return "NEXUS_FAULTED"
	case StateClosed:
		return "NEXUS_CLOSED"
	default:
		return "NEXUS_UNKNOWN"
	}
}

// Nexus is a virtual block device aggregating one or more children.
type Nexus struct {
	Name      string
	UUID      uuid.UUID
	BlockSize uint32
	NumBlocks uint64

	engine *reconfig.Engine
	reader *reconfig.Consumer
	bus    *notify.Bus

	mu          sync.Mutex
	childByURI  map[string]*childEntry
	closed      bool
	descriptors int64

	rebuildEngine *rebuild.Engine
	segmentBlocks uint32

	rrMu    sync.Mutex
	rrIndex int
}

type childEntry struct {
	device child.Device
}

// Config carries the construction parameters for a new Nexus.
type Config struct {
	Name       string
	UUID       uuid.UUID
	BlockSize  uint32
	NumBlocks  uint64
	AckTimeout time.Duration
	Bus        *notify.Bus

	// RebuildSegmentBlocks is the unit of work a rebuild job copies per
	// step. Defaults to 256 blocks if zero.
	RebuildSegmentBlocks uint32
	// RebuildMaxConcurrentJobs bounds simultaneous rebuild jobs on this
	// Nexus. Defaults to 1 if zero.
	RebuildMaxConcurrentJobs int
	// RebuildMaxConcurrentSegments bounds in-flight segment copies across
	// all of this Nexus's rebuild jobs. Defaults to 4 if zero.
	RebuildMaxConcurrentSegments int
}

// New creates a Nexus with no children. Call AddChild to populate it.
func New(cfg Config) (*Nexus, error) {
	if cfg.Name == "" {
		return nil, cerrors.NewInvalidURIError("", "nexus name must not be empty")
	}
	if cfg.BlockSize == 0 || cfg.NumBlocks == 0 {
		return nil, cerrors.NewInvalidURIError("", "nexus block size and num blocks must be positive")
	}
	id := cfg.UUID
	if id == uuid.Nil {
		id = uuid.New()
	}

	engine := reconfig.NewEngine(cfg.AckTimeout)
	ctx := context.Background()
	go engine.Run(ctx)

	reader := engine.RegisterConsumer()
	go reader.Run(ctx)

	segmentBlocks := cfg.RebuildSegmentBlocks
	if segmentBlocks == 0 {
		segmentBlocks = 256
	}
	maxJobs := cfg.RebuildMaxConcurrentJobs
	if maxJobs == 0 {
		maxJobs = 1
	}
	maxSegments := cfg.RebuildMaxConcurrentSegments
	if maxSegments == 0 {
		maxSegments = 4
	}

	n := &Nexus{
		Name:          cfg.Name,
		UUID:          id,
		BlockSize:     cfg.BlockSize,
		NumBlocks:     cfg.NumBlocks,
		engine:        engine,
		reader:        reader,
		bus:           cfg.Bus,
		childByURI:    make(map[string]*childEntry),
		segmentBlocks: segmentBlocks,
	}
	n.rebuildEngine = rebuild.NewEngine(cfg.Name, cfg.Bus, maxJobs, maxSegments)
	return n, nil
}

// State derives the Nexus's aggregate health from its current snapshot.
func (n *Nexus) State() State {
	snap := n.reader.Current()
	if snap == nil || len(snap.Children) == 0 {
		return StateInit
	}

	var online, degraded, faulted int
	for _, c := range snap.Children {
		switch c.State {
		case state.Open:
			online++
		case state.RebuildDst:
			degraded++
		case state.Faulted:
			faulted++
		}
	}

	switch {
	case online == 0 && degraded == 0:
		return StateFaulted
	case degraded > 0 || faulted > 0:
		return StateDegraded
	default:
		return StateOnline
	}
}

// AddChild opens dev and adds it to the child set, entering RebuildDst if
// other children are already Online (so it is excluded from reads until a
// rebuild job catches it up), or Open directly if it is the first child.
// Joining a Nexus with an existing Online child enqueues a rebuild job
// covering the full address space from that child, per §4.3's add_child
// contract; the caller is not expected to separately call StartRebuild.
func (n *Nexus) AddChild(ctx context.Context, uri string) error {
	dev, err := child.DefaultRegistry.Open(uri)
	if err != nil {
		return err
	}
	if err := dev.Open(ctx); err != nil {
		return err
	}
	if dev.BlockSize() != n.BlockSize {
		dev.Close(ctx)
		return cerrors.NewGeometryMismatchError(uri, n.BlockSize, dev.BlockSize())
	}
	if dev.NumBlocks() < n.NumBlocks {
		dev.Close(ctx)
		return cerrors.NewInsufficientCapacityError(uri, n.NumBlocks, dev.NumBlocks())
	}

	n.mu.Lock()
	if _, exists := n.childByURI[uri]; exists {
		n.mu.Unlock()
		dev.Close(ctx)
		return cerrors.NewAlreadyExistsError("child", uri)
	}
	hasOnline := false
	sourceURI := ""
	for _, c := range n.reader.Current().Children {
		if c.State == state.Open {
			hasOnline = true
			sourceURI = c.URI
			break
		}
	}
	initial := state.Open
	if hasOnline {
		initial = state.RebuildDst
	}
	n.childByURI[uri] = &childEntry{device: dev}
	n.mu.Unlock()

	if err := n.engine.Submit(ctx, reconfig.Event{
		Kind:  reconfig.EventAddChild,
		Child: reconfig.ChildView{URI: uri, Device: dev, State: initial},
	}); err != nil {
		n.mu.Lock()
		delete(n.childByURI, uri)
		n.mu.Unlock()
		dev.Close(ctx)
		return err
	}

	logger.Info("child added to nexus", logger.Nexus(n.Name), logger.ChildURI(uri), logger.State(initial.String()))
	if n.bus != nil {
		n.bus.Publish(notify.Event{Kind: notify.NexusStateChanged, Nexus: n.Name, ChildURI: uri, Message: "child added"})
	}

	if hasOnline {
		// Detached from ctx (the caller's request context): the rebuild
		// must keep running after AddChild itself returns.
		if _, err := n.StartRebuild(context.Background(), sourceURI, uri); err != nil {
			logger.Error("failed to start rebuild for new child", logger.Nexus(n.Name), logger.ChildURI(uri), logger.Err(err))
		}
	}
	return nil
}

// RemoveChild closes and removes the child at uri.
func (n *Nexus) RemoveChild(ctx context.Context, uri string) error {
	n.mu.Lock()
	entry, ok := n.childByURI[uri]
	if !ok {
		n.mu.Unlock()
		return cerrors.NewNotFoundError("child", uri)
	}
	delete(n.childByURI, uri)
	n.mu.Unlock()

	err := n.engine.Submit(ctx, reconfig.Event{
		Kind:  reconfig.EventRemoveChild,
		Child: reconfig.ChildView{URI: uri},
	})

	closeErr := entry.device.Close(ctx)
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	logger.Info("child removed from nexus", logger.Nexus(n.Name), logger.ChildURI(uri))
	return nil
}

// setChildState is the shared path for IO-failure demotion, rebuild
// completion, and operator Offline/Online requests.
func (n *Nexus) setChildState(ctx context.Context, uri string, s state.State) error {
	n.mu.Lock()
	entry, ok := n.childByURI[uri]
	n.mu.Unlock()
	if !ok {
		return cerrors.NewNotFoundError("child", uri)
	}

	if err := n.engine.Submit(ctx, reconfig.Event{
		Kind:  reconfig.EventSetState,
		Child: reconfig.ChildView{URI: uri, Device: entry.device, State: s},
	}); err != nil {
		return err
	}

	if s == state.Faulted && n.bus != nil {
		n.bus.Publish(notify.Event{Kind: notify.ChildFaulted, Nexus: n.Name, ChildURI: uri})
	}
	if s == state.Open && n.bus != nil {
		n.bus.Publish(notify.Event{Kind: notify.ChildOnline, Nexus: n.Name, ChildURI: uri})
	}
	return nil
}

// OfflineChild demotes a child to Faulted on operator request.
func (n *Nexus) OfflineChild(ctx context.Context, uri string) error {
	return n.setChildState(ctx, uri, state.Faulted)
}

// OnlineChild brings a previously faulted child back, e.g. after an
// operator has repaired the underlying transport out of band. If another
// child is Open, the child becomes a RebuildDst and a rebuild from that
// child is started, as AddChild does; otherwise it is promoted to Open.
func (n *Nexus) OnlineChild(ctx context.Context, uri string) error {
	for _, c := range n.reader.Current().Children {
		if c.State != state.Open || c.URI == uri {
			continue
		}
		if err := n.setChildState(ctx, uri, state.RebuildDst); err != nil {
			return err
		}
		// Detached from ctx, as in AddChild: the rebuild outlives the call.
		if _, err := n.StartRebuild(context.Background(), c.URI, uri); err != nil {
			logger.Error("failed to start rebuild for onlined child", logger.Nexus(n.Name), logger.ChildURI(uri), logger.Err(err))
		}
		return nil
	}
	return n.setChildState(ctx, uri, state.Open)
}

// MarkRebuildComplete promotes a RebuildDst child to Open.
func (n *Nexus) MarkRebuildComplete(ctx context.Context, uri string) error {
	if err := n.setChildState(ctx, uri, state.Open); err != nil {
		return err
	}
	if n.bus != nil {
		n.bus.Publish(notify.Event{Kind: notify.RebuildComplete, Nexus: n.Name, ChildURI: uri})
	}
	return nil
}

// StartRebuild launches a background job copying sourceURI into destURI
// segment by segment. destURI must already be a RebuildDst child (set by
// AddChild when it joined a Nexus with other Online children). On
// completion the destination is automatically promoted via
// MarkRebuildComplete; on failure it is left Faulted via demoteOnIOError.
func (n *Nexus) StartRebuild(ctx context.Context, sourceURI, destURI string) (*rebuild.Job, error) {
	n.mu.Lock()
	srcEntry, ok := n.childByURI[sourceURI]
	if !ok {
		n.mu.Unlock()
		return nil, cerrors.NewNotFoundError("child", sourceURI)
	}
	dstEntry, ok := n.childByURI[destURI]
	if !ok {
		n.mu.Unlock()
		return nil, cerrors.NewNotFoundError("child", destURI)
	}
	n.mu.Unlock()

	onComplete := func(j *rebuild.Job) {
		switch j.State() {
		case rebuild.StateComplete:
			if err := n.MarkRebuildComplete(context.Background(), destURI); err != nil {
				logger.Error("failed to promote child after rebuild complete", logger.ChildURI(destURI), logger.Err(err))
			}
		case rebuild.StateFailed:
			n.demoteOnIOError(destURI, j.Err())
		}
	}

	j, err := n.rebuildEngine.Start(ctx, srcEntry.device, dstEntry.device, n.segmentBlocks, n.NumBlocks, onComplete)
	if err != nil {
		return nil, err
	}

	logger.Info("rebuild started", logger.Nexus(n.Name), logger.RebuildJob(j.ID), logger.SrcChild(sourceURI), logger.DstChild(destURI))
	return j, nil
}

// StopRebuild cancels the running rebuild job targeting destURI.
func (n *Nexus) StopRebuild(destURI string) error {
	return n.rebuildEngine.StopByDestination(destURI)
}

// RebuildProgress returns the tracked rebuild job targeting destURI, for
// RPC progress polling.
func (n *Nexus) RebuildProgress(destURI string) (*rebuild.Job, bool) {
	return n.rebuildEngine.GetByDestination(destURI)
}

func (n *Nexus) checkAligned(block uint64, buf []byte) error {
	if len(buf)%int(n.BlockSize) != 0 {
		return cerrors.NewInvalidAlignmentError(n.Name, n.BlockSize)
	}
	nBlocks := uint64(len(buf)) / uint64(n.BlockSize)
	if block+nBlocks > n.NumBlocks {
		return cerrors.NewInvalidOffsetError(n.Name, block, n.NumBlocks)
	}
	return nil
}

// ReadAt reads len(buf)/BlockSize() blocks starting at block, round-robin
// selected among the current Online children. Offset/alignment are
// validated before any child is touched. On an IoError/Disconnected from
// the selected child, that child is demoted to Faulted and the read is
// retried exactly once against a different Open child; if none remains,
// returns NoHealthyChild.
func (n *Nexus) ReadAt(ctx context.Context, block uint64, buf []byte) error {
	if err := n.checkAligned(block, buf); err != nil {
		return err
	}

	candidates := n.reader.Current().ReadCandidates()
	if len(candidates) == 0 {
		return cerrors.NewNoHealthyChildError(n.Name)
	}

	target := n.selectReadCandidate(candidates)
	if err := target.Device.ReadAt(ctx, block, buf); err != nil {
		n.demoteOnIOError(target.URI, err)
	} else {
		return nil
	}

	retryCandidates := make([]reconfig.ChildView, 0, len(candidates)-1)
	for _, c := range candidates {
		if c.URI != target.URI {
			retryCandidates = append(retryCandidates, c)
		}
	}
	if len(retryCandidates) == 0 {
		return cerrors.NewNoHealthyChildError(n.Name)
	}

	retryTarget := n.selectReadCandidate(retryCandidates)
	if err := retryTarget.Device.ReadAt(ctx, block, buf); err != nil {
		n.demoteOnIOError(retryTarget.URI, err)
		return err
	}
	return nil
}

// selectReadCandidate picks the next child from candidates in round-robin
// order.
func (n *Nexus) selectReadCandidate(candidates []reconfig.ChildView) reconfig.ChildView {
	n.rrMu.Lock()
	idx := n.rrIndex % len(candidates)
	n.rrIndex++
	n.rrMu.Unlock()
	return candidates[idx]
}

// WriteAt writes len(buf)/BlockSize() blocks starting at block to every
// Online child and every RebuildDst child, joined via errgroup. Completion
// is declared once every submitted target has acknowledged or been
// demoted; a write is only reported failed if every target failed.
func (n *Nexus) WriteAt(ctx context.Context, block uint64, buf []byte) error {
	if err := n.checkAligned(block, buf); err != nil {
		return err
	}

	targets := n.reader.Current().WriteTargets()
	if len(targets) == 0 {
		return cerrors.NewNoHealthyChildError(n.Name)
	}

	g, gctx := errgroup.WithContext(context.Background())
	var succeeded int64
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := target.Device.WriteAt(gctx, block, buf); err != nil {
				n.demoteOnIOError(target.URI, err)
				return nil
			}
			atomic.AddInt64(&succeeded, 1)
			return nil
		})
	}
	_ = g.Wait()

	if succeeded == 0 {
		return cerrors.NewNoHealthyChildError(n.Name)
	}
	return nil
}

// Flush flushes every Online/RebuildDst child.
func (n *Nexus) Flush(ctx context.Context) error {
	targets := n.reader.Current().WriteTargets()
	if len(targets) == 0 {
		return cerrors.NewNoHealthyChildError(n.Name)
	}

	g, gctx := errgroup.WithContext(context.Background())
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := target.Device.Flush(gctx); err != nil {
				n.demoteOnIOError(target.URI, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (n *Nexus) demoteOnIOError(uri string, cause error) {
	logger.Warn("child IO error, demoting to faulted", logger.ChildURI(uri), logger.Err(cause))
	if err := n.setChildState(context.Background(), uri, state.Faulted); err != nil {
		logger.Error("failed to demote child after IO error", logger.ChildURI(uri), logger.Err(err))
	}
}

// Destroy cancels every in-flight rebuild job, then tears down every child
// and the reconfiguration engine. It refuses while descriptors are
// outstanding (the RPC layer is expected to Unpublish, which releases the
// publication's descriptor, before calling Destroy); callers should retry
// after the last Descriptor.Close.
func (n *Nexus) Destroy(ctx context.Context) error {
	n.rebuildEngine.StopAll()

	n.mu.Lock()
	if n.descriptors > 0 {
		n.mu.Unlock()
		return cerrors.NewInProgressError(fmt.Sprintf("destroy of %s (descriptors outstanding)", n.Name))
	}
	n.closed = true
	entries := n.childByURI
	n.childByURI = make(map[string]*childEntry)
	n.mu.Unlock()

	var firstErr error
	for uri, entry := range entries {
		if err := entry.device.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		_ = n.engine.Submit(ctx, reconfig.Event{Kind: reconfig.EventRemoveChild, Child: reconfig.ChildView{URI: uri}})
	}
	return firstErr
}

// Snapshot returns the Nexus's current child-set snapshot, for RPC
// surfaces that need to report state without going through a reactor.
func (n *Nexus) Snapshot() *reconfig.Snapshot {
	return n.reader.Current()
}
