// Package api is the admin HTTP surface over the execution log and the
// schedulers.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/agent-nexus/internal/api/middleware"
	"github.com/pysugar/agent-nexus/internal/scheduler"
	"github.com/pysugar/agent-nexus/internal/triggerlog"
	"gorm.io/gorm"
)

type Deps struct {
	DB       *gorm.DB
	Logs     *triggerlog.Store
	Triggers *scheduler.TriggerScheduler
	Tweets   *scheduler.TweetScheduler
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(d.DB))

		r.Get("/logs", ListLogsHandler(d.Logs))
		r.Get("/triggers/{id}/logs", TriggerLogsHandler(d.DB, d.Logs))
		r.Get("/agents/{id}/logs", AgentLogsHandler(d.DB, d.Logs))
		r.Post("/triggers/{id}/run", RunTriggerHandler(d.Triggers))
		r.Post("/scheduled-tweets/{id}/cancel", CancelScheduledTweetHandler(d.Tweets))
		r.Get("/stats", StatsHandler(d.Logs))
		r.Get("/functions", FunctionsHandler(d.DB))
	})
	return r
}
