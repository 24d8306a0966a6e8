package rpc

import (
	"time"

	"github.com/nexusd/nexuscore/pkg/nexus"
	"github.com/nexusd/nexuscore/pkg/nexus/rebuild"
	"github.com/nexusd/nexuscore/pkg/publish"
)

// createNexusRequest is the body of POST /api/v1/nexus, the CreateNexus
// RPC message from spec.md §6.
type createNexusRequest struct {
	Name       string        `json:"name" validate:"required"`
	UUID       string        `json:"uuid" validate:"omitempty,uuid"`
	BlockSize  uint32        `json:"block_size" validate:"required,min=512"`
	NumBlocks  uint64        `json:"num_blocks" validate:"required,min=1"`
	AckTimeout time.Duration `json:"ack_timeout_ms" validate:"omitempty,gt=0"`
}

// addChildRequest is the body of POST /api/v1/nexus/{name}/children
// (AddChildNexus).
type addChildRequest struct {
	URI string `json:"uri" validate:"required"`
}

// publishRequest is the body of POST /api/v1/nexus/{name}/publish
// (PublishNexus).
type publishRequest struct {
	Protocol string `json:"protocol" validate:"required,oneof=nvmf iscsi local"`
	ACL      string `json:"acl"`
}

type publishResponse struct {
	Endpoint string `json:"endpoint"`
	Protocol string `json:"protocol"`
}

// startRebuildRequest is the body of POST /api/v1/nexus/{name}/rebuild/start
// (StartRebuild).
type startRebuildRequest struct {
	SourceURI      string `json:"source_uri" validate:"required"`
	DestinationURI string `json:"destination_uri" validate:"required"`
}

// stopRebuildRequest is the body of POST /api/v1/nexus/{name}/rebuild/stop
// (StopRebuild). Rebuild jobs are addressed by destination child URI, not
// job ID, matching §3's "at most one rebuild job per destination child"
// invariant; it travels in the body since child URIs contain slashes.
type stopRebuildRequest struct {
	DestinationURI string `json:"destination_uri" validate:"required"`
}

// childView is the wire representation of a single child in a Nexus
// snapshot.
type childView struct {
	URI   string `json:"uri"`
	State string `json:"state"`
}

// nexusView is the wire representation of a Nexus returned by
// GetNexus/ListNexus, matching §6's NexusInfo{name, uuid, state,
// children[], size, published_uri?}.
type nexusView struct {
	Name         string      `json:"name"`
	UUID         string      `json:"uuid"`
	BlockSize    uint32      `json:"block_size"`
	NumBlocks    uint64      `json:"num_blocks"`
	Size         uint64      `json:"size"`
	State        string      `json:"state"`
	Children     []childView `json:"children"`
	PublishedURI string      `json:"published_uri,omitempty"`
}

func newNexusView(n *nexus.Nexus, publishedURI string) nexusView {
	snap := n.Snapshot()
	view := nexusView{
		Name:         n.Name,
		UUID:         n.UUID.String(),
		BlockSize:    n.BlockSize,
		NumBlocks:    n.NumBlocks,
		Size:         uint64(n.BlockSize) * n.NumBlocks,
		State:        n.State().String(),
		PublishedURI: publishedURI,
	}
	if snap != nil {
		for _, c := range snap.Children {
			view.Children = append(view.Children, childView{URI: c.URI, State: c.State.String()})
		}
	}
	return view
}

// rebuildJobView is the wire representation of a rebuild.Job returned by
// StartRebuild/GetRebuildProgress.
type rebuildJobView struct {
	ID             string  `json:"id"`
	SourceURI      string  `json:"source_uri"`
	DestinationURI string  `json:"destination_uri"`
	State          string  `json:"state"`
	Cursor         uint64  `json:"cursor"`
	NumBlocks      uint64  `json:"num_blocks"`
	ProgressPct    float64 `json:"progress_pct"`
	Error          string  `json:"error,omitempty"`
}

func newRebuildJobView(j *rebuild.Job) rebuildJobView {
	view := rebuildJobView{
		ID:             j.ID,
		SourceURI:      j.SourceURI,
		DestinationURI: j.DestinationURI,
		State:          j.State().String(),
		Cursor:         j.Cursor(),
		NumBlocks:      j.NumBlocks,
	}
	if j.NumBlocks > 0 {
		view.ProgressPct = 100 * float64(view.Cursor) / float64(j.NumBlocks)
	}
	if err := j.Err(); err != nil {
		view.Error = err.Error()
	}
	return view
}

func protocolFromString(s string) publish.Protocol {
	return publish.Protocol(s)
}
