package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"account_sync/internal/model"
)

func accountID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

func (s *Server) handleListAccounts(kind model.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := s.store.ListAccounts(r.Context(), kind)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if accounts == nil {
			accounts = []model.Account{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": accounts})
	}
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.store.GetAccount(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": acc})
}

// handleDeleteAccount refuses accounts that still own a Vision profile; the
// profile has to go through vision-profile-sync-and-delete first.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if err := s.store.DeleteAccount(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.bus != nil {
		s.bus.Log("info", "account deleted", map[string]any{"accountId": id})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": id, "deleted": true}})
}

func (s *Server) handleForActivity(w http.ResponseWriter, r *http.Request) {
	acc, ok, err := s.activity.Pick(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": "No active Facebook accounts found for activity.",
			"kind":  "not_found",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": acc})
}

func (s *Server) handleTouchActivity(w http.ResponseWriter, r *http.Request) {
	acc, err := s.activity.Touch(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": acc})
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	res, err := s.profiles.Create(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"data": res})
}

func (s *Server) handleSyncProfile(w http.ResponseWriter, r *http.Request) {
	res, err := s.profiles.Sync(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": res})
}

func (s *Server) handleSyncAndDeleteProfile(w http.ResponseWriter, r *http.Request) {
	res, err := s.profiles.SyncAndDelete(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": res})
}
