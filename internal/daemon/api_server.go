package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"keepsake/internal/api"
	"keepsake/internal/config"
	"keepsake/internal/lifecycle"
	"keepsake/internal/logging"
	"keepsake/internal/services"
)

const (
	maxJSONBody        = 1 << 20
	multipartMemory    = 32 << 20
	multipartFormField = "files"
)

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	service *api.CapsuleService
	limit   int64
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:    strings.TrimSpace(cfg.Paths.APIBind),
		logger:  logger,
		daemon:  d,
		service: d.service,
		limit:   cfg.Capsule.MaxFileBytes*int64(cfg.Capsule.MaxBatchItems) + maxJSONBody,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("POST /api/users", srv.handleCreateUser)
	mux.HandleFunc("GET /api/users", srv.handleListUsers)
	mux.HandleFunc("GET /api/users/{id}/notifications", srv.handleNotifications)
	mux.HandleFunc("POST /api/capsules", srv.handleCreateCapsule)
	mux.HandleFunc("GET /api/capsules", srv.handleListCapsules)
	mux.HandleFunc("GET /api/capsules/{id}", srv.handleDescribe)
	mux.HandleFunc("POST /api/capsules/{id}/media", srv.handleAttach)
	mux.HandleFunc("POST /api/capsules/{id}/collaborators", srv.handleInvite)
	mux.HandleFunc("GET /api/capsules/{id}/content", srv.handleContent)
	mux.HandleFunc("POST /api/capsules/{id}/retry", srv.handleRetry)
	mux.HandleFunc("POST /api/capsules/{id}/notify", srv.handleNotify)
	mux.HandleFunc("POST /api/notifications/{id}/read", srv.handleMarkRead)
	srv.handler = authMiddleware(strings.TrimSpace(cfg.Paths.APIToken), mux.ServeHTTP)

	if srv.bind != "" {
		srv.server = &http.Server{
			Handler:           srv.handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       5 * time.Minute,
			WriteTimeout:      cfg.PipelineBudget() + time.Minute,
			IdleTimeout:       60 * time.Second,
		}
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

// Handler exposes the API routes, including bearer authentication, without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		BlobBackend:  status.BlobBackend,
		LockFilePath: status.LockFilePath,
		Scheduler:    api.FromStatusSummary(status.Scheduler),
	})
}

func (s *apiServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req api.CreateUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.service.CreateUser(r.Context(), req.Name)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *apiServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.UserListResponse{Users: users})
}

func (s *apiServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	items, err := s.service.Notifications(r.Context(), r.PathValue("id"), unread)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationListResponse{Notifications: items})
}

func (s *apiServer) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.service.MarkRead(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleCreateCapsule(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCapsuleRequest
	if !s.decode(w, r, &req) {
		return
	}
	capsule, err := s.service.CreateCapsule(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, capsule)
}

func (s *apiServer) handleListCapsules(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	capsules, err := s.service.ListCapsules(r.Context(), query.Get("owner"), query["state"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CapsuleListResponse{Capsules: capsules})
}

func (s *apiServer) handleDescribe(w http.ResponseWriter, r *http.Request) {
	capsule, err := s.service.Describe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, capsule)
}

func (s *apiServer) handleAttach(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[multipartFormField]
	uploads := make([]lifecycle.Upload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "open upload: "+err.Error())
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
			return
		}
		uploads = append(uploads, lifecycle.Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	capsule, err := s.service.AttachMedia(r.Context(), r.PathValue("id"), uploads)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, capsule)
}

func (s *apiServer) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req api.InviteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.service.Invite(r.Context(), r.PathValue("id"), req.UserIDs); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleContent(w http.ResponseWriter, r *http.Request) {
	content, err := s.service.Content(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, content)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	content, err := s.service.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, content)
}

func (s *apiServer) handleNotify(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Notify(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// StatusForKind maps a services.Kind value onto an HTTP status code.
func StatusForKind(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "still_locked":
		return http.StatusLocked
	case "already_unlocking", "conflict":
		return http.StatusConflict
	case "storage", "enrichment", "timeout":
		return http.StatusBadGateway
	case "configuration":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	kind := services.Kind(err)
	status := StatusForKind(kind)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(s.log(), "api request failed", "api_request_failed",
			logging.Error(err),
			logging.String("kind", kind),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{
		Error: err.Error(),
		Kind:  kind,
		Stage: services.StageOf(err),
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: "validation"})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
