package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bbmesh/bbmesh/internal/dispatch"
	"github.com/bbmesh/bbmesh/internal/mesh"
	"github.com/bbmesh/bbmesh/internal/nodetrack"
	"github.com/bbmesh/bbmesh/internal/observability"
	"github.com/bbmesh/bbmesh/internal/session"
)

// Link is the slice of the mesh interface the API reads for status.
type Link interface {
	Info() mesh.Info
}

// Server is the operator-facing HTTP API: health, metrics, and read/mutate
// access to nodes, admins, and sessions. It never carries user traffic;
// that all flows over the mesh.
type Server struct {
	dispatcher *dispatch.Dispatcher
	sessions   *session.Store
	nodes      nodetrack.Store
	tracker    *nodetrack.Tracker
	notifier   *nodetrack.Notifier
	link       Link
	serverName string
}

func New(dispatcher *dispatch.Dispatcher, sessions *session.Store, nodes nodetrack.Store, tracker *nodetrack.Tracker, notifier *nodetrack.Notifier, link Link, serverName string) *Server {
	return &Server{
		dispatcher: dispatcher,
		sessions:   sessions,
		nodes:      nodes,
		tracker:    tracker,
		notifier:   notifier,
		link:       link,
		serverName: serverName,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/nodes", s.handleListNodes)
	r.Get("/v1/nodes/{id}", s.handleGetNode)
	r.Post("/v1/nodes/{id}/reset", s.handleResetNode)
	r.Get("/v1/admins", s.handleListAdmins)
	r.Post("/v1/admins/{id}/activate", s.handleActivateAdmin)
	r.Post("/v1/admins/{id}/deactivate", s.handleDeactivateAdmin)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	info := s.link.Info()
	if !info.Connected {
		respondError(w, http.StatusServiceUnavailable, "mesh_disconnected", "mesh link is down")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.dispatcher.Stats()
	nodeCount, err := s.nodes.CountNodes(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"server_name":   s.serverName,
		"mesh":          s.link.Info(),
		"stats":         stats,
		"uptime":        time.Since(stats.StartedAt).Round(time.Second).String(),
		"live_sessions": s.sessions.Count(),
		"known_nodes":   nodeCount,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	nodes, err := s.nodes.ListNodes(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, err := s.nodes.GetNode(r.Context(), id)
	if errors.Is(err, nodetrack.ErrNodeNotFound) {
		respondError(w, http.StatusNotFound, "node_not_found", "no such node: "+id)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, node)
}

// handleResetNode pushes a node's last-seen beyond the new-node threshold,
// so its next message triggers admin notifications again. Used when testing
// the notification path.
func (s *Server) handleResetNode(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		respondError(w, http.StatusNotImplemented, "tracking_disabled", "node tracking is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	err := s.tracker.Reset(r.Context(), id, time.Now().UTC())
	if errors.Is(err, nodetrack.ErrNodeNotFound) {
		respondError(w, http.StatusNotFound, "node_not_found", "no such node: "+id)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "reset", "node_id": id})
}

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := s.nodes.ListAdmins(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"admins": admins})
}

func (s *Server) handleActivateAdmin(w http.ResponseWriter, r *http.Request) {
	s.setAdminActive(w, r, true)
}

func (s *Server) handleDeactivateAdmin(w http.ResponseWriter, r *http.Request) {
	s.setAdminActive(w, r, false)
}

func (s *Server) setAdminActive(w http.ResponseWriter, r *http.Request, active bool) {
	if s.notifier == nil {
		respondError(w, http.StatusNotImplemented, "tracking_disabled", "node tracking is disabled")
		return
	}
	id := chi.URLParam(r, "id")

	var err error
	if active {
		err = s.notifier.Activate(r.Context(), id)
	} else {
		err = s.notifier.Deactivate(r.Context(), id)
	}
	if errors.Is(err, nodetrack.ErrAdminNotFound) {
		respondError(w, http.StatusNotFound, "admin_not_found", "no such admin: "+id)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"node_id": id, "active": active})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
