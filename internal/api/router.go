package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/equential/classvote/internal/logger"
	"github.com/equential/classvote/internal/markdown"
	"github.com/equential/classvote/internal/middleware"
	"github.com/equential/classvote/internal/models"
	"github.com/equential/classvote/internal/services"
)

const adminSessionTTL = 12 * time.Hour

// Router wires the service layer to the JSON API.
type Router struct {
	users       *services.UserService
	experiments *services.ExperimentService
	votes       *services.VoteService
	results     *services.ResultsService
	auth        *middleware.Auth
	log         *logger.Logger
}

func NewRouter(store Store, auth *middleware.Auth, log *logger.Logger) *Router {
	return &Router{
		users:       services.NewUserService(store),
		experiments: services.NewExperimentService(store),
		votes:       services.NewVoteService(store),
		results:     services.NewResultsService(store),
		auth:        auth,
		log:         log,
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/admin/login", rt.handleAdminLogin)            // POST
	mux.HandleFunc("/api/admin/experiments", rt.handleExperiments)     // GET, POST
	mux.HandleFunc("/api/admin/experiments/", rt.handleExperimentSub)  // DELETE, results, export
	mux.HandleFunc("/api/admin/users", rt.handleUsers)                 // GET, POST
	mux.HandleFunc("/api/admin/users/", rt.handleUserDelete)           // DELETE
	mux.HandleFunc("/api/users/", rt.handleUserLookup)                 // GET
	mux.HandleFunc("/api/vote/", rt.handleVote)                        // GET, POST
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusInternalServerError
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorConflict:
			status = http.StatusConflict
		}
		http.Error(w, se.Message, status)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (rt *Router) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := middleware.AdminFromContext(r.Context()); ok {
		return true
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
	return false
}

// POST /api/admin/login — exchange an admin access_id for a session token.
func (rt *Router) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AccessID string `json:"access_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	u, err := rt.users.LookupByAccessID(req.AccessID)
	if err != nil {
		// Do not reveal whether the access id exists.
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if !u.IsAdmin {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	tok, err := rt.auth.SignToken(u.ID, u.Email, adminSessionTTL)
	if err != nil {
		writeErr(w, err)
		return
	}
	rt.log.Info("admin login", "user_id", u.ID)
	writeJSON(w, map[string]any{"token": tok, "full_name": u.FullName})
}

// GET /api/users/{access_id} — self-service lookup with per-experiment progress.
func (rt *Router) handleUserLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	accessID := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if accessID == "" || strings.Contains(accessID, "/") {
		http.NotFound(w, r)
		return
	}
	u, err := rt.users.LookupByAccessID(accessID)
	if err != nil {
		writeErr(w, err)
		return
	}
	links, err := rt.users.ProgressFor(u)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"message":   "Welcome " + u.FullName + "!",
		"full_name": u.FullName,
		"links":     links,
	})
}

// GET  /api/vote/{token} — next item to present, options shuffled.
// POST /api/vote/{token} — record a choice {item_id, option_id}.
// GET  /api/vote/{token}/unanswered — every unanswered item, stored order.
func (rt *Router) handleVote(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/vote/")
	parts := strings.Split(rest, "/")
	token := parts[0]
	if token == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "unanswered") {
		http.NotFound(w, r)
		return
	}
	u, err := rt.users.LookupUserByLink(token)
	if err != nil {
		writeErr(w, err)
		return
	}
	expID := rt.users.LinkedExperimentID(u, token)
	exp, err := rt.experiments.GetExperiment(expID)
	if err != nil {
		writeErr(w, err)
		return
	}

	if len(parts) == 2 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rt.serveUnansweredList(w, exp, u)
		return
	}

	switch r.Method {
	case http.MethodGet:
		unanswered := rt.votes.UnansweredItems(exp, u.Email)
		if len(unanswered) == 0 {
			writeJSON(w, map[string]any{
				"completed":       true,
				"experiment_name": exp.Name,
			})
			return
		}
		item := rt.votes.PresentationCopy(rt.votes.SelectNext(unanswered))
		type optView struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		}
		opts := make([]optView, 0, len(item.Options))
		for _, o := range item.Options {
			opts = append(opts, optView{ID: o.ID, Text: markdown.Render(o.Text)})
		}
		writeJSON(w, map[string]any{
			"completed":       false,
			"experiment_name": exp.Name,
			"instructions":    markdown.Render(exp.Instructions),
			"remaining":       len(unanswered),
			"item": map[string]any{
				"item_id": item.ItemID,
				"content": markdown.Render(item.Content),
				"options": opts,
			},
		})
	case http.MethodPost:
		var req struct {
			ItemID   string `json:"item_id"`
			OptionID string `json:"option_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ok, err := rt.votes.RecordChoice(exp, req.ItemID, u.Email, req.OptionID)
		if err != nil {
			writeErr(w, err)
			return
		}
		if !ok {
			http.Error(w, "invalid item_id or option_id", http.StatusBadRequest)
			return
		}
		rt.log.Info("choice recorded", "experiment_id", exp.ID, "item_id", req.ItemID)
		writeJSON(w, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) serveUnansweredList(w http.ResponseWriter, exp *models.Experiment, u *models.User) {
	unanswered := rt.votes.UnansweredItems(exp, u.Email)
	type optView struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	type itemView struct {
		ItemID  string    `json:"item_id"`
		Content string    `json:"content"`
		Options []optView `json:"options"`
	}
	items := make([]itemView, 0, len(unanswered))
	for _, it := range unanswered {
		opts := make([]optView, 0, len(it.Options))
		for _, o := range it.Options {
			opts = append(opts, optView{ID: o.ID, Text: markdown.Render(o.Text)})
		}
		items = append(items, itemView{
			ItemID:  it.ItemID,
			Content: markdown.Render(it.Content),
			Options: opts,
		})
	}
	writeJSON(w, map[string]any{
		"experiment_name":  exp.Name,
		"user_email":       u.Email,
		"unanswered_count": len(unanswered),
		"items":            items,
	})
}

// GET/POST /api/admin/experiments
func (rt *Router) handleExperiments(w http.ResponseWriter, r *http.Request) {
	if !rt.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		exps, err := rt.experiments.ListExperiments()
		if err != nil {
			writeErr(w, err)
			return
		}
		type expView struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			TotalItems int    `json:"total_items"`
		}
		out := make([]expView, 0, len(exps))
		for _, e := range exps {
			out = append(out, expView{ID: e.ID, Name: e.Name, TotalItems: len(e.Items)})
		}
		writeJSON(w, out)
	case http.MethodPost:
		var payload services.ExperimentImport
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON format", http.StatusBadRequest)
			return
		}
		exp, err := rt.experiments.CreateExperiment(&payload)
		if err != nil {
			writeErr(w, err)
			return
		}
		rt.log.Info("experiment created", "experiment_id", exp.ID, "items", len(exp.Items))
		writeJSON(w, map[string]any{"id": exp.ID, "name": exp.Name, "total_items": len(exp.Items)})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// /api/admin/experiments/{id}[/results|/export|/items/{itemID}/results]
func (rt *Router) handleExperimentSub(w http.ResponseWriter, r *http.Request) {
	if !rt.requireAdmin(w, r) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/experiments/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := rt.experiments.DeleteExperiment(id); err != nil {
			writeErr(w, err)
			return
		}
		rt.log.Info("experiment deleted", "experiment_id", id)
		writeJSON(w, map[string]any{"ok": true})
	case len(parts) == 2 && parts[1] == "results" && r.Method == http.MethodGet:
		rt.serveExperimentResults(w, id)
	case len(parts) == 2 && parts[1] == "export" && r.Method == http.MethodGet:
		totals, err := rt.results.ExperimentTotals(id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"experiment": totals})
	case len(parts) == 4 && parts[1] == "items" && parts[3] == "results" && r.Method == http.MethodGet:
		res, err := rt.results.ItemResults(id, parts[2])
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, res)
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) serveExperimentResults(w http.ResponseWriter, id string) {
	exp, err := rt.experiments.GetExperiment(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	totals, err := rt.results.ExperimentTotals(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	comparison, err := rt.results.ExperimentComparison(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"experiment":            totals,
		"instructions":          markdown.Render(exp.Instructions),
		"category_descriptions": exp.CategoryDescriptions,
		"comparison":            comparison,
	})
}

// GET/POST /api/admin/users
func (rt *Router) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !rt.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		voters, err := rt.users.ListVoters()
		if err != nil {
			writeErr(w, err)
			return
		}
		type userView struct {
			ID       string                  `json:"id"`
			Email    string                  `json:"email"`
			FullName string                  `json:"full_name"`
			AccessID string                  `json:"access_id"`
			Links    []services.LinkProgress `json:"links"`
		}
		out := make([]userView, 0, len(voters))
		for _, u := range voters {
			links, err := rt.users.ProgressFor(u)
			if err != nil {
				writeErr(w, err)
				return
			}
			out = append(out, userView{ID: u.ID, Email: u.Email, FullName: u.FullName, AccessID: u.AccessID, Links: links})
		}
		writeJSON(w, out)
	case http.MethodPost:
		var req struct {
			Email    string `json:"email"`
			FullName string `json:"full_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u, err := rt.users.CreateUser(req.Email, req.FullName, false)
		if err != nil {
			writeErr(w, err)
			return
		}
		rt.log.Info("user created", "user_id", u.ID)
		writeJSON(w, map[string]any{"id": u.ID, "email": u.Email, "access_id": u.AccessID})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// DELETE /api/admin/users/{id}
func (rt *Router) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	if !rt.requireAdmin(w, r) {
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/users/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if err := rt.users.DeleteUser(id); err != nil {
		writeErr(w, err)
		return
	}
	rt.log.Info("user deleted", "user_id", id)
	writeJSON(w, map[string]any{"ok": true})
}
