// Package rebuild implements the Rebuild Engine: copying a stale child
// back into sync with a healthy source, segment by segment, while
// foreground I/O continues to fan out to the destination over the same
// write path.
//
// Grounded on pkg/payload/gc's cursor-driven scan-with-progress-callback
// shape (CollectGarbage walks a keyspace tracking Stats and invoking a
// ProgressCallback), generalized from a garbage-collection walk over
// block keys to a segment-by-segment copy walk over block ranges.
package rebuild

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/nexusd/nexuscore/internal/logger"
	"github.com/nexusd/nexuscore/pkg/child"
	"github.com/nexusd/nexuscore/pkg/notify"
)

// State is a rebuild job's lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateComplete
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "REBUILD_RUNNING"
	case StateComplete:
		return "REBUILD_COMPLETE"
	case StateFailed:
		return "REBUILD_FAILED"
	case StateCancelled:
		return "REBUILD_CANCELLED"
	default:
		return "REBUILD_UNKNOWN"
	}
}

// Job copies SourceURI into DestinationURI one segment at a time. The
// cursor advances monotonically; a write to a block behind the cursor
// from the foreground write-fan-out path races it, and ordering is
// decided purely by which write reaches the destination's backend last,
// exactly like any other concurrent write to the same child.
type Job struct {
	ID             string
	Nexus          string
	SourceURI      string
	DestinationURI string
	SegmentBlocks  uint32
	NumBlocks      uint64

	source child.Device
	dest   child.Device

	cursor    atomic.Uint64
	state     atomic.Int32
	lastError atomic.Value // error

	cancel context.CancelFunc
	done   chan struct{}
}

// newJob constructs a Job bound to concrete source/destination devices.
func newJob(id, nexusName string, source, dest child.Device, segmentBlocks uint32, numBlocks uint64) *Job {
	j := &Job{
		ID:             id,
		Nexus:          nexusName,
		SourceURI:      source.URI(),
		DestinationURI: dest.URI(),
		SegmentBlocks:  segmentBlocks,
		NumBlocks:      numBlocks,
		source:         source,
		dest:           dest,
		done:           make(chan struct{}),
	}
	j.state.Store(int32(StateRunning))
	return j
}

// Cursor returns the number of blocks copied so far.
func (j *Job) Cursor() uint64 { return j.cursor.Load() }

// State returns the job's current lifecycle state.
func (j *Job) State() State { return State(j.state.Load()) }

// Progress returns the fraction of blocks copied, in [0, 1].
func (j *Job) Progress() float64 {
	if j.NumBlocks == 0 {
		return 1
	}
	return float64(j.Cursor()) / float64(j.NumBlocks)
}

// Err returns the error that failed the job, if any.
func (j *Job) Err() error {
	if v := j.lastError.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Wait blocks until the job reaches a terminal state.
func (j *Job) Wait() {
	<-j.done
}

// run drives the segment copy loop. segSem bounds concurrent in-flight
// segment copies across all jobs on this Nexus. Foreground I/O does not
// acquire it.
func (j *Job) run(ctx context.Context, segSem *semaphore.Weighted, bus *notify.Bus) {
	if bus != nil {
		bus.Publish(notify.Event{Kind: notify.RebuildStarted, Nexus: j.Nexus, ChildURI: j.DestinationURI, Message: j.ID})
	}

	buf := make([]byte, uint64(j.SegmentBlocks)*uint64(j.source.BlockSize()))

	for j.cursor.Load() < j.NumBlocks {
		select {
		case <-ctx.Done():
			j.state.Store(int32(StateCancelled))
			if bus != nil {
				bus.Publish(notify.Event{Kind: notify.RebuildFailed, Nexus: j.Nexus, ChildURI: j.DestinationURI, Message: "cancelled"})
			}
			return
		default:
		}

		if err := segSem.Acquire(ctx, 1); err != nil {
			j.state.Store(int32(StateCancelled))
			return
		}

		block := j.cursor.Load()
		segBlocks := uint64(j.SegmentBlocks)
		if block+segBlocks > j.NumBlocks {
			segBlocks = j.NumBlocks - block
		}
		segBuf := buf[:segBlocks*uint64(j.source.BlockSize())]

		err := j.copySegment(ctx, block, segBuf)
		segSem.Release(1)

		if err != nil {
			j.lastError.Store(err)
			j.state.Store(int32(StateFailed))
			logger.Error("rebuild segment copy failed",
				logger.RebuildJob(j.ID), logger.SrcChild(j.SourceURI), logger.DstChild(j.DestinationURI),
				logger.Cursor(block), logger.Err(err))
			if bus != nil {
				bus.Publish(notify.Event{Kind: notify.RebuildFailed, Nexus: j.Nexus, ChildURI: j.DestinationURI, Message: err.Error()})
			}
			return
		}

		j.cursor.Store(block + segBlocks)

		if bus != nil {
			bus.Publish(notify.Event{
				Kind:     notify.RebuildProgress,
				Nexus:    j.Nexus,
				ChildURI: j.DestinationURI,
				Fields:   map[string]any{"cursor": j.cursor.Load(), "num_blocks": j.NumBlocks},
			})
		}
	}

	j.state.Store(int32(StateComplete))
	if bus != nil {
		bus.Publish(notify.Event{Kind: notify.RebuildComplete, Nexus: j.Nexus, ChildURI: j.DestinationURI, Message: j.ID})
	}
}

// copySegment reads one segment from the source and writes it to the
// destination through dest.WriteAt, the same call every foreground
// write-fan-out goroutine uses against this child.
func (j *Job) copySegment(ctx context.Context, block uint64, buf []byte) error {
	if err := j.source.ReadAt(ctx, block, buf); err != nil {
		return fmt.Errorf("rebuild read source segment at block %d: %w", block, err)
	}
	if err := j.dest.WriteAt(ctx, block, buf); err != nil {
		return fmt.Errorf("rebuild write destination segment at block %d: %w", block, err)
	}
	return nil
}
