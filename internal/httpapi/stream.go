package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	dpmlog "github.com/sgajbi/lotus-advise-sub000/internal/obs/log"
	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

// pollInterval bounds how often RebalanceOperationsStream re-checks the
// async operation list for status transitions to republish.
const pollInterval = 2 * time.Second

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RebalanceOperationsStream handles GET /rebalance/operations/stream: a
// best-effort push channel that republishes async operation status
// transitions. There is no internal event bus backing async.Manager, so
// this polls the same supportability.Store-backed list the REST endpoints
// read, diffing on (operation id, status) to only push actual transitions.
func (h *Handlers) RebalanceOperationsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		dpmlog.Logger().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	filters := filtersFromQuery(r)
	ctx := r.Context()
	lastStatus := map[string]string{}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ops, err := h.deps.Async.List(ctx, filters, supportability.Page{Limit: 200})
			if err != nil {
				dpmlog.Logger().Warn().Err(err).Msg("stream: list async operations failed")
				continue
			}
			for _, op := range ops {
				prev, seen := lastStatus[op.OperationID]
				if seen && prev == string(op.Status) {
					continue
				}
				lastStatus[op.OperationID] = string(op.Status)
				if err := conn.WriteJSON(op); err != nil {
					return
				}
			}
		}
	}
}
