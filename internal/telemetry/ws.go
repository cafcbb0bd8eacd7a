package telemetry

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjboer/GoSonar/internal/logging"
	"github.com/rjboer/GoSonar/internal/sim"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

const wsWriteTimeout = 2 * time.Second

// handleWebSocket streams live events to the client and accepts commands
// in the same JSON shape as POST /api/commands. Rejected commands are
// answered with an error event.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Debug("websocket upgrade failed", logging.F("error", err))
		return
	}
	defer conn.Close()

	events, cancel := ws.hub.Subscribe()
	defer cancel()
	replies := make(chan Event, 8)
	done := make(chan struct{})

	go func() {
		defer close(done)
		write := func(ev Event) bool {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				conn.Close()
				return false
			}
			return true
		}
		if snap, ok := ws.hub.Snapshot(); ok {
			if !write(Event{Type: EventSnapshot, Snapshot: &snap}) {
				return
			}
		}
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !write(ev) {
					return
				}
			case ev := <-replies:
				if !write(ev) {
					return
				}
			}
		}
	}()

	for {
		var cmd sim.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		if _, _, err := ws.dispatch(cmd); err != nil {
			select {
			case replies <- Event{Type: EventError, Message: err.Error()}:
			default:
			}
		}
	}
	cancel()
	<-done
}
