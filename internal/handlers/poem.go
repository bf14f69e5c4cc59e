package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shijian-backend/internal/models"
	"shijian-backend/internal/worker"
)

type poemService interface {
	Search(ctx context.Context, params models.SearchParams) (*models.SearchResponse, error)
	GetPoem(ctx context.Context, id uuid.UUID) (*models.Poem, error)
	Popular(ctx context.Context, limit int) ([]*models.Poem, error)
	Related(ctx context.Context, id uuid.UUID, limit int) ([]*models.Poem, error)
	Dynasties(ctx context.Context) ([]string, error)
	Types(ctx context.Context) ([]string, error)
	GetAuthor(ctx context.Context, id uuid.UUID) (*models.Author, error)
	ByAuthor(ctx context.Context, authorID uuid.UUID, limit int) ([]*models.Poem, error)
	ListAuthors(ctx context.Context, dynasty string, page, limit int) (*models.AuthorListResponse, error)
}

// streamer attaches a websocket client to a pub/sub channel.
type streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, channel string, initial interface{})
}

type PoemHandler struct {
	poems poemService
	hub   streamer
}

func NewPoemHandler(poems poemService, hub streamer) *PoemHandler {
	return &PoemHandler{poems: poems, hub: hub}
}

func (h *PoemHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := models.SearchParams{
		Query:   q.Get("q"),
		Dynasty: q.Get("dynasty"),
		Type:    q.Get("type"),
		Page:    queryInt(r, "page", 1),
		Limit:   queryInt(r, "limit", 10),
	}

	resp, err := h.poems.Search(r.Context(), params)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *PoemHandler) Popular(w http.ResponseWriter, r *http.Request) {
	poems, err := h.poems.Popular(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"poems": poems})
}

func (h *PoemHandler) Dynasties(w http.ResponseWriter, r *http.Request) {
	dynasties, err := h.poems.Dynasties(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dynasties": dynasties})
}

func (h *PoemHandler) Types(w http.ResponseWriter, r *http.Request) {
	types, err := h.poems.Types(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"types": types})
}

func (h *PoemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid poem ID", r))
		return
	}

	poem, err := h.poems.GetPoem(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, poem)
}

func (h *PoemHandler) Related(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid poem ID", r))
		return
	}

	poems, err := h.poems.Related(r.Context(), id, queryInt(r, "limit", 5))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"poems": poems})
}

// Updates streams analysis_ready events for one poem.
func (h *PoemHandler) Updates(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid poem ID", r))
		return
	}
	h.hub.Serve(w, r, worker.PoemChannel(id), nil)
}

// ─── Authors ───

func (h *PoemHandler) ListAuthors(w http.ResponseWriter, r *http.Request) {
	resp, err := h.poems.ListAuthors(r.Context(), r.URL.Query().Get("dynasty"),
		queryInt(r, "page", 1), queryInt(r, "limit", 20))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PoemHandler) GetAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid author ID", r))
		return
	}

	author, err := h.poems.GetAuthor(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, author)
}

func (h *PoemHandler) AuthorPoems(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid author ID", r))
		return
	}

	poems, err := h.poems.ByAuthor(r.Context(), id, queryInt(r, "limit", 20))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"poems": poems})
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
