package nexusclient

import (
	"fmt"
	"net/url"
	"time"
)

// Child is the wire representation of a Nexus child device.
type Child struct {
	URI   string `json:"uri"`
	State string `json:"state"`
}

// Nexus is the wire representation of a Nexus instance.
type Nexus struct {
	Name         string  `json:"name"`
	UUID         string  `json:"uuid"`
	BlockSize    uint32  `json:"block_size"`
	NumBlocks    uint64  `json:"num_blocks"`
	Size         uint64  `json:"size"`
	State        string  `json:"state"`
	Children     []Child `json:"children"`
	PublishedURI string  `json:"published_uri,omitempty"`
}

// CreateNexusRequest is the CreateNexus RPC request body.
type CreateNexusRequest struct {
	Name       string        `json:"name"`
	UUID       string        `json:"uuid,omitempty"`
	BlockSize  uint32        `json:"block_size"`
	NumBlocks  uint64        `json:"num_blocks"`
	AckTimeout time.Duration `json:"ack_timeout_ms,omitempty"`
}

// CreateNexus creates a new Nexus instance.
func (c *Client) CreateNexus(req CreateNexusRequest) (*Nexus, error) {
	var n Nexus
	if err := c.post("/api/v1/nexus", req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNexus lists every Nexus known to the registry.
func (c *Client) ListNexus() ([]Nexus, error) {
	var ns []Nexus
	if err := c.get("/api/v1/nexus", &ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// GetNexus fetches a single Nexus's current snapshot.
func (c *Client) GetNexus(name string) (*Nexus, error) {
	var n Nexus
	if err := c.get("/api/v1/nexus/"+name, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// DestroyNexus tears down a Nexus. The server unpublishes it first if it
// is published.
func (c *Client) DestroyNexus(name string) error {
	return c.delete("/api/v1/nexus/"+name, nil)
}

// AddChild adds a new child with the given URI to name.
func (c *Client) AddChild(name, uri string) (*Nexus, error) {
	var n Nexus
	if err := c.post(fmt.Sprintf("/api/v1/nexus/%s/children", name), childURIRequest{URI: uri}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// RemoveChild removes the child at uri from name.
func (c *Client) RemoveChild(name, uri string) (*Nexus, error) {
	var n Nexus
	if err := c.post(fmt.Sprintf("/api/v1/nexus/%s/children/remove", name), childURIRequest{URI: uri}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// OfflineChild takes uri offline without removing it.
func (c *Client) OfflineChild(name, uri string) (*Nexus, error) {
	var n Nexus
	if err := c.post(fmt.Sprintf("/api/v1/nexus/%s/children/offline", name), childURIRequest{URI: uri}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// OnlineChild brings an offline child back, triggering a rebuild.
func (c *Client) OnlineChild(name, uri string) (*Nexus, error) {
	var n Nexus
	if err := c.post(fmt.Sprintf("/api/v1/nexus/%s/children/online", name), childURIRequest{URI: uri}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

type childURIRequest struct {
	URI string `json:"uri"`
}

// PublishResult is the PublishNexus RPC response.
type PublishResult struct {
	Endpoint string `json:"endpoint"`
	Protocol string `json:"protocol"`
}

// PublishNexus exposes name over the given protocol (nvmf, iscsi, local).
func (c *Client) PublishNexus(name, protocol, acl string) (*PublishResult, error) {
	var res PublishResult
	body := publishRequest{Protocol: protocol, ACL: acl}
	if err := c.post(fmt.Sprintf("/api/v1/nexus/%s/publish", name), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UnpublishNexus tears down name's active publication, if any.
func (c *Client) UnpublishNexus(name string) error {
	return c.post(fmt.Sprintf("/api/v1/nexus/%s/unpublish", name), nil, nil)
}

type publishRequest struct {
	Protocol string `json:"protocol"`
	ACL      string `json:"acl,omitempty"`
}

// RebuildJob is the wire representation of a rebuild job.
type RebuildJob struct {
	ID             string  `json:"id"`
	SourceURI      string  `json:"source_uri"`
	DestinationURI string  `json:"destination_uri"`
	State          string  `json:"state"`
	Cursor         uint64  `json:"cursor"`
	NumBlocks      uint64  `json:"num_blocks"`
	ProgressPct    float64 `json:"progress_pct"`
	Error          string  `json:"error,omitempty"`
}

// StartRebuild starts copying sourceURI's data onto destinationURI.
func (c *Client) StartRebuild(name, sourceURI, destinationURI string) (*RebuildJob, error) {
	var job RebuildJob
	body := startRebuildRequest{SourceURI: sourceURI, DestinationURI: destinationURI}
	if err := c.post(fmt.Sprintf("/api/v1/nexus/%s/rebuild/start", name), body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

type startRebuildRequest struct {
	SourceURI      string `json:"source_uri"`
	DestinationURI string `json:"destination_uri"`
}

type stopRebuildRequest struct {
	DestinationURI string `json:"destination_uri"`
}

// StopRebuild cancels the in-progress rebuild job targeting destinationURI.
// Rebuild jobs are addressed by destination child URI, not job ID: at most
// one job may target a given destination at a time.
func (c *Client) StopRebuild(name, destinationURI string) error {
	body := stopRebuildRequest{DestinationURI: destinationURI}
	return c.post(fmt.Sprintf("/api/v1/nexus/%s/rebuild/stop", name), body, nil)
}

// RebuildProgress fetches the current state and cursor of the rebuild job
// targeting destinationURI.
func (c *Client) RebuildProgress(name, destinationURI string) (*RebuildJob, error) {
	var job RebuildJob
	path := fmt.Sprintf("/api/v1/nexus/%s/rebuild/progress?destination_uri=%s", name, url.QueryEscape(destinationURI))
	if err := c.get(path, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
