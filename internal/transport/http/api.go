package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"gongzi-quiz-service/internal/app"
	"gongzi-quiz-service/internal/domain"
	"github.com/gorilla/mux"
)

// maxBodyBytes bounds history uploads; items carry text only.
const maxBodyBytes = 1 << 20

// API serves the REST side of the play service.
type API struct {
	service    *app.PlayService
	identities *IdentityResolver
}

func NewAPI(service *app.PlayService, identities *IdentityResolver) *API {
	return &API{service: service, identities: identities}
}

// NewRouter mounts the REST routes, the websocket endpoint and the health check.
func NewRouter(service *app.PlayService, identities *IdentityResolver) *mux.Router {
	api := NewAPI(service, identities)
	ws := NewWSHandler(service, identities)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws/play", ws.ServeWS)

	s := r.PathPrefix("/api").Subrouter()
	s.HandleFunc("/topics", api.topics).Methods(http.MethodGet)
	s.HandleFunc("/flashcards", api.flashcards).Methods(http.MethodGet)
	s.HandleFunc("/leaderboard", api.leaderboard).Methods(http.MethodGet)
	s.HandleFunc("/history/{kind}", api.withPlayer(api.listHistory)).Methods(http.MethodGet)
	s.HandleFunc("/history/{kind}", api.withPlayer(api.appendHistory)).Methods(http.MethodPost)
	s.HandleFunc("/history/{kind}/{id}", api.withPlayer(api.removeHistory)).Methods(http.MethodDelete)
	s.HandleFunc("/mistakes", api.withPlayer(api.mistakes)).Methods(http.MethodGet)
	s.HandleFunc("/progress", api.withPlayer(api.progress)).Methods(http.MethodGet)
	s.HandleFunc("/settings/question-seconds", api.withPlayer(api.questionSeconds)).Methods(http.MethodGet)
	s.HandleFunc("/settings/question-seconds", api.withPlayer(api.setQuestionSeconds)).Methods(http.MethodPut)
	s.HandleFunc("/focus", api.withPlayer(api.focus)).Methods(http.MethodGet)
	s.HandleFunc("/settings/focus", api.withPlayer(api.setFocusDurations)).Methods(http.MethodPut)
	r.Use(logRequests)
	return r
}

type playerHandler func(w http.ResponseWriter, r *http.Request, p *app.Player)

// withPlayer resolves the device and identity and attaches the device for the duration
// of next.
func (a *API) withPlayer(next playerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceID(r)
		if device == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing deviceId"))
			return
		}
		ident, err := a.identities.Resolve(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		p, err := a.service.Attach(r.Context(), device, ident)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		defer a.service.Leave(p)
		next(w, r, p)
	}
}

func (a *API) topics(w http.ResponseWriter, r *http.Request) {
	topics, err := a.service.Topics(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (a *API) flashcards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sets": a.service.Flashcards()})
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = n
	}
	entries, err := a.service.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) listHistory(w http.ResponseWriter, r *http.Request, p *app.Player) {
	page, err := a.service.History(r.Context(), p, mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) appendHistory(w http.ResponseWriter, r *http.Request, p *app.Player) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := a.service.AppendHistory(r.Context(), p, mux.Vars(r)["kind"], body)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (a *API) removeHistory(w http.ResponseWriter, r *http.Request, p *app.Player) {
	vars := mux.Vars(r)
	if err := a.service.RemoveHistory(r.Context(), p, vars["kind"], vars["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) mistakes(w http.ResponseWriter, _ *http.Request, p *app.Player) {
	writeJSON(w, http.StatusOK, map[string]any{"items": p.Mistakes()})
}

func (a *API) progress(w http.ResponseWriter, r *http.Request, p *app.Player) {
	writeJSON(w, http.StatusOK, map[string]any{"topics": p.Themed.Progress(r.Context())})
}

type questionSecondsBody struct {
	Seconds int `json:"seconds"`
}

func (a *API) questionSeconds(w http.ResponseWriter, r *http.Request, p *app.Player) {
	d := a.service.QuestionTime(r.Context(), p)
	writeJSON(w, http.StatusOK, questionSecondsBody{Seconds: int(d / time.Second)})
}

func (a *API) setQuestionSeconds(w http.ResponseWriter, r *http.Request, p *app.Player) {
	var body questionSecondsBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := p.SetQuestionTime(r.Context(), time.Duration(body.Seconds)*time.Second); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) focus(w http.ResponseWriter, r *http.Request, p *app.Player) {
	writeJSON(w, http.StatusOK, p.Focus.Snapshot(r.Context()))
}

func (a *API) setFocusDurations(w http.ResponseWriter, r *http.Request, p *app.Player) {
	var body focusDurationsPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := p.SetFocusDurations(r.Context(), time.Duration(body.FocusMinutes)*time.Minute, time.Duration(body.BreakMinutes)*time.Minute)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p.Focus.Snapshot(r.Context()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownHistoryKind), errors.Is(err, domain.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuestionTime), errors.Is(err, domain.ErrInvalidFocusDuration),
		errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrIdentityConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCatalogNotFound), errors.Is(err, domain.ErrNoQuestions),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntax) || errors.As(err, &typeErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
