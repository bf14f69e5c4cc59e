package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthPingTimeout = 2 * time.Second

type sessionCounter interface {
	Len() int
}

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	problems []string
	sessions sessionCounter
	redis    pinger
}

// NewHealthHandler reports the configuration problems found at startup
// alongside live session counts and redis reachability. sessions and redis
// may be nil.
func NewHealthHandler(problems []string, sessions sessionCounter, redis pinger) *HealthHandler {
	return &HealthHandler{problems: problems, sessions: sessions, redis: redis}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	problems := append([]string(nil), h.problems...)

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		err := h.redis.Ping(ctx)
		cancel()
		if err != nil {
			problems = append(problems, err.Error())
		}
	}

	status := "ok"
	if len(problems) > 0 {
		status = "degraded"
	}

	resp := map[string]interface{}{
		"status":   status,
		"problems": problems,
	}
	if h.sessions != nil {
		resp["chat_sessions"] = h.sessions.Len()
	}

	writeJSON(w, http.StatusOK, resp)
}
