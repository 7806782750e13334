package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"questionbank"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const sessionName = "questionbank-session"

// editor is the per-session state: each browser session gets its own busy
// flags and pending pools.
type editor struct {
	submitter *questionbank.Submitter
	review    *questionbank.ReviewController
	lastUsed  time.Time
}

func (e *editor) busy() bool {
	return e.submitter.Busy() || e.review.Busy()
}

// editorIdleTimeout is how long an unused editor is kept before eviction
const editorIdleTimeout = 30 * time.Minute

type Server struct {
	store      questionbank.Store
	generator  questionbank.QuestionGenerator
	notifier   questionbank.Notifier
	sessions   *sessions.CookieStore
	classifier questionbank.BeverageClassifier

	mu        sync.Mutex
	editors   map[string]*editor
	idleAfter time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewServer wires the HTTP API. generator and notifier may be nil; an empty
// secret gets a random key.
func NewServer(store questionbank.Store, generator questionbank.QuestionGenerator, notifier questionbank.Notifier, secret []byte, classifier questionbank.BeverageClassifier) *Server {
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
	}
	cookies := sessions.NewCookieStore(secret)
	cookies.Options.HttpOnly = true
	cookies.Options.SameSite = http.SameSiteLaxMode

	return &Server{
		store:      store,
		generator:  generator,
		notifier:   notifier,
		sessions:   cookies,
		classifier: classifier,
		editors:    make(map[string]*editor),
		idleAfter:  editorIdleTimeout,
		now:        time.Now,
	}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s %s", r.Method, r.RequestURI, r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	router.HandleFunc("/banks", s.handleListBanks).Methods("GET")
	router.HandleFunc("/banks", s.handleCreateBank).Methods("POST")
	router.HandleFunc("/banks/{id}", s.handleGetBank).Methods("GET")
	router.HandleFunc("/banks/{id}", s.handleUpdateBank).Methods("PATCH")

	router.HandleFunc("/banks/{id}/questions", s.handleCreateQuestion).Methods("POST")
	router.HandleFunc("/banks/{id}/questions/{qid}", s.handleRemoveQuestion).Methods("DELETE")
	router.HandleFunc("/questions/{id}", s.handleUpdateQuestion).Methods("PATCH")

	router.HandleFunc("/banks/{id}/generate", s.handleGenerate).Methods("POST")
	router.HandleFunc("/banks/{id}/pending", s.handlePending).Methods("GET")
	router.HandleFunc("/banks/{id}/review/approve", s.handleApprove).Methods("POST")
	router.HandleFunc("/banks/{id}/review/reject", s.handleReject).Methods("POST")
	router.HandleFunc("/banks/{id}/review", s.handleProcessReview).Methods("POST")

	router.HandleFunc("/options/transition", s.handleOptionTransition).Methods("POST")
	router.HandleFunc("/categories/toggle", s.handleCategoryToggle).Methods("POST")
	router.HandleFunc("/categories/menu", s.handleMenuCategories).Methods("POST")

	return router
}

// editorFor returns the session's editor, creating the session on first use.
// It must run before anything is written to w.
func (s *Server) editorFor(w http.ResponseWriter, r *http.Request) *editor {
	session, err := s.sessions.Get(r, sessionName)
	if err != nil {
		questionbank.VerboseLog("Discarding unreadable session: %v", err)
	}
	id, ok := session.Values["editor"].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		session.Values["editor"] = id
		if err := session.Save(r, w); err != nil {
			log.Printf("Session save error: %v", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictIdle(now)
	e, ok := s.editors[id]
	if !ok {
		e = &editor{
			submitter: questionbank.NewSubmitter(s.store, s.notifier),
			review:    questionbank.NewReviewController(s.store, s.generator, s.notifier),
		}
		s.editors[id] = e
	}
	e.lastUsed = now
	return e
}

// evictIdle drops editors unused for idleAfter, at most once per idleAfter
// interval. Editors with an operation in flight are kept. Callers hold s.mu.
func (s *Server) evictIdle(now time.Time) {
	if now.Sub(s.lastSweep) < s.idleAfter {
		return
	}
	s.lastSweep = now
	for id, e := range s.editors {
		if now.Sub(e.lastUsed) >= s.idleAfter && !e.busy() {
			delete(s.editors, id)
		}
	}
	questionbank.VerboseLog("Editor sweep done, %d active editors", len(s.editors))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

type errorResponse struct {
	Error string                      `json:"error"`
	Code  questionbank.ValidationCode `json:"code,omitempty"`
}

// writeError maps the package error taxonomy onto HTTP statuses
func writeError(w http.ResponseWriter, err error) {
	var ve *questionbank.ValidationError
	var ee *questionbank.ExternalError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: ve.Error(), Code: ve.Code})
	case errors.Is(err, questionbank.ErrNoChanges):
		writeJSON(w, http.StatusOK, map[string]interface{}{"noChanges": true, "message": questionbank.UserMessage(err)})
	case errors.Is(err, questionbank.ErrBusy):
		writeJSON(w, http.StatusConflict, errorResponse{Error: questionbank.UserMessage(err)})
	case errors.Is(err, questionbank.ErrSourceTypeImmutable):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: questionbank.UserMessage(err)})
	case errors.Is(err, questionbank.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found."})
	case errors.As(err, &ee):
		log.Printf("External error: %v", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: questionbank.UserMessage(err)})
	default:
		log.Printf("Request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: questionbank.GenericErrorMessage})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body."})
		return false
	}
	return true
}
