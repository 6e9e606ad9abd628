package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/commit"
	"github.com/jobtrail/jobtrail/pkg/listing"
	"github.com/jobtrail/jobtrail/pkg/session"
	"github.com/jobtrail/jobtrail/pkg/urlparam"
)

type sessionKey struct{}

// loadSession resolves {sid} and stores the session in the request context.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(chi.URLParam(r, "sid"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(sessionKey{}).(*session.Session)
}

// wantsWait reports whether the caller asked to block until background
// work settles.
func wantsWait(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("wait")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

type healthResponse struct {
	Status   string               `json:"status"`
	Sessions session.ManagerStats `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: s.sessions.Stats()})
}

type createSessionRequest struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}

type createSessionResponse struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := s.decode(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	query, err := url.ParseQuery(strings.TrimPrefix(req.Query, "?"))
	if err != nil {
		s.writeError(w, r, errors.New("J021").WithDetail("query is not a valid query string").Wrap(err))
		return
	}
	path := req.Path
	if path == "" {
		path = "/"
	}

	sess, err := s.sessions.Create(path, query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		ID:    sess.ID(),
		Query: sess.Location().Query().Encode(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Remove(sessionFrom(r).ID())
	w.WriteHeader(http.StatusNoContent)
}

type draftsResponse struct {
	Drafts listing.Drafts `json:"drafts"`
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	snap := sessionFrom(r).Drafts().Snapshot()
	writeJSON(w, http.StatusOK, draftsResponse{Drafts: listing.Drafts(snap)})
}

type ingestRequest struct {
	URLs    []string `json:"urls"`
	URL     string   `json:"url"`
	Content string   `json:"content"`
}

type ingestResponse struct {
	IDs    []string       `json:"ids"`
	Drafts listing.Drafts `json:"drafts,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := s.decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	coord := sessionFrom(r).Ingest()

	var resp ingestResponse
	var wait func() listing.Drafts
	switch {
	case len(req.URLs) > 0:
		for _, u := range req.URLs {
			if strings.TrimSpace(u) == "" {
				s.writeError(w, r, errors.New("J021").WithDetail("urls must not contain blanks"))
				return
			}
		}
		batch := coord.IngestMany(req.URLs)
		resp.IDs = batch.IDs()
		wait = func() listing.Drafts { return batch.Wait() }
	case strings.TrimSpace(req.URL) != "":
		id, task := coord.Ingest(req.URL, req.Content)
		resp.IDs = []string{id}
		wait = func() listing.Drafts { return listing.Drafts{task.Wait()} }
	default:
		s.writeError(w, r, errors.New("J021").WithDetail("either url or urls is required"))
		return
	}

	if wantsWait(r) {
		resp.Drafts = wait()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

type reingestRequest struct {
	Content string `json:"content"`
}

type draftResponse struct {
	ID    string        `json:"id"`
	Draft listing.Draft `json:"draft,omitempty"`
}

func (s *Server) handleReingest(w http.ResponseWriter, r *http.Request) {
	var req reingestRequest
	if err := s.decode(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	task, err := sessionFrom(r).Ingest().Reingest(id, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if wantsWait(r) {
		writeJSON(w, http.StatusOK, draftResponse{ID: id, Draft: task.Wait()})
		return
	}
	writeJSON(w, http.StatusAccepted, draftResponse{ID: id})
}

func (s *Server) handlePatchDraft(w http.ResponseWriter, r *http.Request) {
	var patch listing.ExtractionPatch
	if err := s.decode(w, r, &patch, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	store := sessionFrom(r).Drafts()
	if _, ok := store.Get(id); !ok {
		s.writeError(w, r, errors.New("J011").WithDetail("no draft "+id))
		return
	}
	store.PatchContent(id, patch)

	d, _ := store.Get(id)
	writeJSON(w, http.StatusOK, draftResponse{ID: id, Draft: d})
}

type moveRequest struct {
	Index *int `json:"index"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type idsResponse struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleMoveDraft(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := s.decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Index == nil {
		s.writeError(w, r, errors.New("J021").WithDetail("index is required"))
		return
	}
	store := sessionFrom(r).Drafts()
	if err := store.Move(chi.URLParam(r, "id"), *req.Index); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idsResponse{IDs: store.List().IDs()})
}

func (s *Server) handleRemoveDrafts(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := s.decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	store := sessionFrom(r).Drafts()
	store.RemoveMany(req.IDs)
	writeJSON(w, http.StatusOK, idsResponse{IDs: store.List().IDs()})
}

type saveResult struct {
	ID      string           `json:"id"`
	Listing *listing.Listing `json:"listing,omitempty"`
	Error   string           `json:"error,omitempty"`
}

type saveResponse struct {
	IDs     []string     `json:"ids"`
	Results []saveResult `json:"results,omitempty"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := s.decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		s.writeError(w, r, errors.New("J021").WithDetail("ids is required"))
		return
	}
	coord := sessionFrom(r).Commit()

	// One id restores the whole collection on failure; several restore
	// each failed entry on its own.
	var tasks []*commit.Task
	if len(req.IDs) == 1 {
		task, err := coord.Save(req.IDs[0])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		tasks = []*commit.Task{task}
	} else {
		batch, err := coord.SaveMany(req.IDs)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		tasks = batch.Tasks
	}

	resp := saveResponse{IDs: make([]string, len(tasks))}
	for i, t := range tasks {
		resp.IDs[i] = t.ID()
	}
	if !wantsWait(r) {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	resp.Results = make([]saveResult, len(tasks))
	for i, t := range tasks {
		res := t.Wait()
		out := saveResult{ID: res.ID}
		if res.Err != nil {
			out.Error = res.Err.Error()
		} else {
			l := res.Listing
			out.Listing = &l
		}
		resp.Results[i] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

type locationRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := s.decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	query, err := url.ParseQuery(strings.TrimPrefix(req.Query, "?"))
	if err != nil {
		s.writeError(w, r, errors.New("J021").WithDetail("query is not a valid query string").Wrap(err))
		return
	}
	sessionFrom(r).Location().Navigated(query, urlparam.ParseMode(req.Mode))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	table := sessionFrom(r).Table()
	if table == nil {
		s.writeError(w, r, errors.New("J040").WithDetail("no listings API is configured"))
		return
	}
	page, err := table.Fetch(r.Context())
	if err != nil {
		s.writeError(w, r, errors.FromError(err, "J022"))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type snapshotRequest struct {
	Key string `json:"key"`
}

type snapshotResponse struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.snapshot(w, r, (*session.Session).Export)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	s.snapshot(w, r, (*session.Session).Import)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request, op func(*session.Session, context.Context, string) (int, error)) {
	var req snapshotRequest
	if err := s.decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Key == "" {
		s.writeError(w, r, errors.New("J021").WithDetail("key is required"))
		return
	}
	n, err := op(sessionFrom(r), r.Context(), req.Key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Key: req.Key, Count: n})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r, sessionFrom(r))
}
