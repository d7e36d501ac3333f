package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/giftshop/cartsync/api/responses"
	"github.com/giftshop/cartsync/pkg/config"
	pkgerrors "github.com/giftshop/cartsync/pkg/errors"
	"github.com/giftshop/cartsync/pkg/logger"
	"github.com/sourcegraph/conc/pool"
)

const readinessTimeout = 2 * time.Second

// Pinger is implemented by every dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency names a readiness check. A nil Pinger marks the dependency as not configured.
type Dependency struct {
	Name   string
	Pinger Pinger
}

type dependencyStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readiness struct {
	Status       string             `json:"status"`
	Dependencies []dependencyStatus `json:"dependencies"`
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cartsync-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency concurrently and reports 503 when any is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cartsync-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		p := pool.NewWithResults[dependencyStatus]().WithContext(ctx)
		for _, dep := range deps {
			p.Go(func(ctx context.Context) (dependencyStatus, error) {
				if dep.Pinger == nil {
					return dependencyStatus{Name: dep.Name, Status: "disabled"}, nil
				}
				if err := dep.Pinger.Ping(ctx); err != nil {
					return dependencyStatus{Name: dep.Name, Status: "down", Error: err.Error()}, nil
				}
				return dependencyStatus{Name: dep.Name, Status: "up"}, nil
			})
		}
		statuses, _ := p.Wait()

		report := readiness{Status: "ready", Dependencies: statuses}
		for _, st := range statuses {
			if st.Status == "down" {
				report.Status = "degraded"
				if logg != nil {
					logg.Error(logg.WithField(r.Context(), "dependency", st.Name), "health.dependency_down", pkgerrors.New(pkgerrors.CodeDependency, st.Error))
				}
			}
		}
		if report.Status != "ready" {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, report)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
