package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"loops-server/internal/model"
	"loops-server/internal/service"
)

// Server exposes the loops API over HTTP: signup/token issuance, direct
// loop CRUD, and the bulk sync endpoint.
type Server struct {
	auth  *service.AuthService
	loops *service.LoopService
	sync  *service.SyncService
}

func NewServer(auth *service.AuthService, loops *service.LoopService, sync *service.SyncService) *Server {
	return &Server{auth: auth, loops: loops, sync: sync}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/token", s.handleToken).Methods(http.MethodPost)

	r.HandleFunc("/sync", s.requireUser(s.handleSync)).Methods(http.MethodPost)
	r.HandleFunc("/loops", s.requireUser(s.handleCreateLoop)).Methods(http.MethodPost)
	r.HandleFunc("/loops", s.requireUser(s.handleListLoops)).Methods(http.MethodGet)
	r.HandleFunc("/loops/{clientId}", s.requireUser(s.handleGetLoop)).Methods(http.MethodGet)
	r.HandleFunc("/loops/{clientId}", s.requireUser(s.handleUpdateLoop)).Methods(http.MethodPut)
	r.HandleFunc("/loops/{clientId}", s.requireUser(s.handleDeleteLoop)).Methods(http.MethodDelete)

	// Preflight for the offline-first web client.
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	user, err := s.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, signupResponse{ID: user.ID, Email: user.Email})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// handleToken issues an access token from form-encoded credentials, the
// shape password-grant clients already speak.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid form body")
		return
	}
	token, err := s.auth.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

type syncRequest struct {
	Loops             []service.WireLoop `json:"loops"`
	LastSyncTimestamp *time.Time         `json:"lastSyncTimestamp"`
}

type syncResponse struct {
	Loops           []service.WireLoop `json:"loops"`
	ServerTimestamp time.Time          `json:"serverTimestamp"`
	Conflicts       []service.Conflict `json:"conflicts"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	result, err := s.sync.Reconcile(r.Context(), user.ID, req.Loops, req.LastSyncTimestamp)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Loops:           result.Loops,
		ServerTimestamp: result.ServerTime,
		Conflicts:       result.Conflicts,
	})
}

func (s *Server) handleCreateLoop(w http.ResponseWriter, r *http.Request, user *model.User) {
	var wire service.WireLoop
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	loop, err := s.loops.Create(r.Context(), user.ID, wire)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loop)
}

func (s *Server) handleListLoops(w http.ResponseWriter, r *http.Request, user *model.User) {
	loops, err := s.loops.List(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loops)
}

func (s *Server) handleGetLoop(w http.ResponseWriter, r *http.Request, user *model.User) {
	loop, err := s.loops.Get(r.Context(), user.ID, mux.Vars(r)["clientId"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loop)
}

func (s *Server) handleUpdateLoop(w http.ResponseWriter, r *http.Request, user *model.User) {
	var patch service.LoopPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	loop, err := s.loops.Update(r.Context(), user.ID, mux.Vars(r)["clientId"], patch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loop)
}

func (s *Server) handleDeleteLoop(w http.ResponseWriter, r *http.Request, user *model.User) {
	if err := s.loops.Delete(r.Context(), user.ID, mux.Vars(r)["clientId"]); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "loop not found")
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "email_taken", err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		next.ServeHTTP(w, r)
	})
}
