package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexusd/nexuscore/internal/logger"
	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
	"github.com/nexusd/nexuscore/pkg/nexus"
	"github.com/nexusd/nexuscore/pkg/notify"
)

// decodeAndValidate decodes r's JSON body into dst and runs struct-tag
// validation, writing a 400 problem response on either failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "malformed request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return false
	}
	return true
}

// handleCreateNexus implements CreateNexus (spec.md §6).
func (s *Server) handleCreateNexus(w http.ResponseWriter, r *http.Request) {
	var req createNexusRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	id := uuid.Nil
	if req.UUID != "" {
		parsed, err := uuid.Parse(req.UUID)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Bad Request", "invalid uuid: "+err.Error())
			return
		}
		id = parsed
	}

	n, err := s.registry.Create(nexus.Config{
		Name:                         req.Name,
		UUID:                         id,
		BlockSize:                    req.BlockSize,
		NumBlocks:                    req.NumBlocks,
		AckTimeout:                   req.AckTimeout,
		Bus:                          s.bus,
		RebuildSegmentBlocks:         s.rebuildCfg.SegmentBlocks,
		RebuildMaxConcurrentJobs:     int(s.rebuildCfg.MaxConcurrentJobs),
		RebuildMaxConcurrentSegments: int(s.rebuildCfg.MaxConcurrentSegments),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	logger.Info("nexus created", logger.Nexus(n.Name), logger.NexusUUID(n.UUID.String()))
	writeJSON(w, http.StatusCreated, newNexusView(n, s.publishedURIFor(n.Name)))
}

// handleListNexus implements ListNexus.
func (s *Server) handleListNexus(w http.ResponseWriter, r *http.Request) {
	nexuses := s.registry.List()
	views := make([]nexusView, 0, len(nexuses))
	for _, n := range nexuses {
		views = append(views, newNexusView(n, s.publishedURIFor(n.Name)))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetNexus returns one Nexus's current snapshot.
func (s *Server) handleGetNexus(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newNexusView(n, s.publishedURIFor(n.Name)))
}

// handleDestroyNexus implements DestroyNexus. Per §4.3, destroying a
// published Nexus first unpublishes it (releasing the publication's open
// Descriptor, which would otherwise make every Destroy on a published
// Nexus fail with InProgress) before tearing it down.
func (s *Server) handleDestroyNexus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	mgr, published := s.publishers[name]
	s.mu.Unlock()
	if published {
		if err := mgr.Unpublish(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}

	if err := s.registry.Destroy(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	delete(s.publishers, name)
	s.mu.Unlock()

	logger.Info("nexus destroyed", logger.Nexus(name))
	w.WriteHeader(http.StatusNoContent)
}

// handleAddChild implements AddChildNexus.
func (s *Server) handleAddChild(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req addChildRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	if err := n.AddChild(r.Context(), req.URI); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newNexusView(n, s.publishedURIFor(n.Name)))
}

// handleRemoveChild implements RemoveChildNexus. The child URI travels in
// the body (not a path segment) since aio://, nvmf://, iscsi:// URIs
// contain slashes chi's router would otherwise split on.
func (s *Server) handleRemoveChild(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req addChildRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := n.RemoveChild(r.Context(), req.URI); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newNexusView(n, s.publishedURIFor(n.Name)))
}

// handleOfflineChild implements OfflineChild.
func (s *Server) handleOfflineChild(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req addChildRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := n.OfflineChild(r.Context(), req.URI); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newNexusView(n, s.publishedURIFor(n.Name)))
}

// handleOnlineChild implements OnlineChild.
func (s *Server) handleOnlineChild(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req addChildRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := n.OnlineChild(r.Context(), req.URI); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newNexusView(n, s.publishedURIFor(n.Name)))
}

// handlePublishNexus implements PublishNexus. Exactly one publication may
// be active per Nexus; republishing requires an explicit Unpublish first.
func (s *Server) handlePublishNexus(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req publishRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	mgr := s.publisherFor(n)
	endpoint, err := mgr.Publish(r.Context(), protocolFromString(req.Protocol), req.ACL)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.bus != nil {
		s.bus.Publish(notify.Event{Kind: notify.PublicationChanged, Nexus: n.Name, Message: endpoint})
	}
	writeJSON(w, http.StatusOK, publishResponse{Endpoint: endpoint, Protocol: req.Protocol})
}

// handleUnpublishNexus implements UnpublishNexus.
func (s *Server) handleUnpublishNexus(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	mgr := s.publisherFor(n)
	if err := mgr.Unpublish(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	if s.bus != nil {
		s.bus.Publish(notify.Event{Kind: notify.PublicationChanged, Nexus: n.Name, Message: ""})
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStartRebuild implements StartRebuild. The job is parented on the
// server's own lifecycle context (s.baseCtx), not r.Context(): net/http
// cancels the request context as soon as this handler returns, which would
// otherwise cancel the rebuild within microseconds of starting it.
func (s *Server) handleStartRebuild(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req startRebuildRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	job, err := n.StartRebuild(s.baseCtx, req.SourceURI, req.DestinationURI)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newRebuildJobView(job))
}

// handleStopRebuild implements StopRebuild, addressed by destination child
// URI rather than job ID (§3: at most one rebuild job per destination).
func (s *Server) handleStopRebuild(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req stopRebuildRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := n.StopRebuild(req.DestinationURI); err != nil {
		writeError(w, cerrors.NewNotFoundError("rebuild job", req.DestinationURI))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRebuildProgress implements GetRebuildProgress, addressed by
// destination child URI via a query parameter since the URI may contain
// slashes a path segment cannot.
func (s *Server) handleRebuildProgress(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	destURI := r.URL.Query().Get("destination_uri")
	if destURI == "" {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "destination_uri query parameter is required")
		return
	}
	job, ok := n.RebuildProgress(destURI)
	if !ok {
		writeError(w, cerrors.NewNotFoundError("rebuild job", destURI))
		return
	}
	writeJSON(w, http.StatusOK, newRebuildJobView(job))
}
