package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/agent-nexus/internal/api/middleware"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/scheduler"
	"github.com/pysugar/agent-nexus/internal/triggerlog"
	"gorm.io/gorm"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": map[string]string{"message": msg}})
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

// ListLogsHandler returns the caller's logs, paginated.
func ListLogsHandler(store *triggerlog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.UserFromContext(r.Context())
		q := r.URL.Query()
		page, err := store.ListForUser(r.Context(), user.ID, triggerlog.Query{
			Page:     queryInt(r, "page"),
			PageSize: queryInt(r, "page_size"),
			SortBy:   q.Get("sort_by"),
			Order:    q.Get("order"),
			Status:   q.Get("status"),
			Search:   q.Get("search"),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// TriggerLogsHandler returns the newest logs of one of the caller's triggers.
func TriggerLogsHandler(database *gorm.DB, store *triggerlog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.UserFromContext(r.Context())
		id := chi.URLParam(r, "id")

		var count int64
		database.WithContext(r.Context()).Model(&models.AgentTrigger{}).
			Joins("JOIN agents ON agents.id = agent_triggers.agent_id").
			Where("agent_triggers.id = ? AND agents.user_id = ?", id, user.ID).
			Count(&count)
		if count == 0 {
			writeError(w, http.StatusNotFound, "trigger not found")
			return
		}

		logs, err := store.ByTrigger(r.Context(), id, queryInt(r, "limit"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs, "count": len(logs)})
	}
}

// AgentLogsHandler returns the newest logs of one of the caller's agents.
func AgentLogsHandler(database *gorm.DB, store *triggerlog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.UserFromContext(r.Context())
		id := chi.URLParam(r, "id")

		var count int64
		database.WithContext(r.Context()).Model(&models.Agent{}).Where("id = ? AND user_id = ?", id, user.ID).Count(&count)
		if count == 0 {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}

		logs, err := store.ByAgent(r.Context(), id, queryInt(r, "limit"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs, "count": len(logs)})
	}
}

// RunTriggerHandler executes a trigger immediately.
func RunTriggerHandler(triggers *scheduler.TriggerScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.UserFromContext(r.Context())
		entry, err := triggers.RunTrigger(r.Context(), chi.URLParam(r, "id"), user.ID)
		switch {
		case errors.Is(err, scheduler.ErrTriggerNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, scheduler.ErrTriggerBusy):
			writeError(w, http.StatusConflict, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, entry)
		}
	}
}

// CancelScheduledTweetHandler cancels a pending scheduled tweet.
func CancelScheduledTweetHandler(tweets *scheduler.TweetScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.UserFromContext(r.Context())
		err := tweets.CancelScheduledTweet(r.Context(), chi.URLParam(r, "id"), user.ID)
		switch {
		case errors.Is(err, scheduler.ErrScheduledTweetNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, scheduler.ErrNotCancellable):
			writeError(w, http.StatusConflict, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, map[string]string{"status": string(models.TweetCancelled)})
		}
	}
}

// StatsHandler returns the log write counters.
func StatsHandler(store *triggerlog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Stats())
	}
}

// FunctionsHandler lists the stored function catalog.
func FunctionsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defs, err := db.LoadFunctions(database.WithContext(r.Context()))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"functions": defs, "count": len(defs)})
	}
}
