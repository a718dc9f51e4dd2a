package main

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gobeaver/beaver-auth2/cache"
	"github.com/gobeaver/beaver-auth2/connection"
	"github.com/gobeaver/beaver-auth2/database"
	"github.com/gobeaver/beaver-auth2/social"
)

type handlers struct {
	db       *database.Database
	cache    cache.Cache
	conns    *connection.Service
	sessions *social.SessionManager
	cfg      *social.Config
	log      *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"database": "ok", "cache": "ok"}
	code := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		h.log.Warn("database health check failed", zap.Error(err))
		status["database"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if err := h.cache.Ping(r.Context()); err != nil {
		h.log.Warn("cache health check failed", zap.Error(err))
		status["cache"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	p, _ := social.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          p.UserID,
		"username":    p.Username,
		"authorities": p.Authorities,
		"provider":    p.Provider,
	})
}

type connectionView struct {
	Provider    string `json:"provider"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (h *handlers) connections(w http.ResponseWriter, r *http.Request) {
	p, _ := social.PrincipalFromContext(r.Context())
	list, err := h.conns.ListConnections(r.Context(), p.UserID)
	if err != nil {
		h.log.Error("list connections failed", zap.String("user_id", p.UserID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	views := make([]connectionView, 0, len(list))
	for _, c := range list {
		views = append(views, connectionView{
			Provider:    c.ProviderID,
			Username:    c.Username,
			DisplayName: c.DisplayName,
			Email:       c.Email,
			AvatarURL:   c.AvatarURL,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) unbind(w http.ResponseWriter, r *http.Request) {
	p, _ := social.PrincipalFromContext(r.Context())
	provider := chi.URLParam(r, "provider")
	err := h.conns.Unbinding(r.Context(), p.UserID, provider)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, connection.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	default:
		h.log.Error("unbind failed", zap.String("provider", provider), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
	}
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		h.log.Warn("logout failed", zap.Error(err))
	}
	http.Redirect(w, r, h.cfg.DefaultTargetURL, http.StatusFound)
}

var signUpPage = template.Must(template.New("signup").Parse(`<!doctype html>
<html><body>
<h1>Finish signing up</h1>
<p>Signed in with {{.Provider}} as {{.Name}}.</p>
<form method="post" action="{{.Action}}">
  <label>Username <input name="username" value="{{.Username}}"></label>
  <button type="submit">Create account</button>
</form>
</body></html>`))

func (h *handlers) signUpForm(w http.ResponseWriter, r *http.Request) {
	p, ok := social.PrincipalFromContext(r.Context())
	if !ok || !p.IsTemporary() {
		http.Redirect(w, r, h.cfg.DefaultTargetURL, http.StatusFound)
		return
	}
	data := struct {
		Provider, Name, Username, Action string
	}{
		Provider: p.Provider,
		Username: p.Username,
		Action:   h.cfg.SignUpURL,
	}
	if p.Identity != nil {
		data.Name = p.Identity.Name
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := signUpPage.Execute(w, data); err != nil {
		h.log.Error("render sign-up page failed", zap.Error(err))
	}
}
