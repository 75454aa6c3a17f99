package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const stateWriteTimeout = 5 * time.Second

// stateFeed streams every session snapshot as a JSON text frame until the
// client disconnects or the session controller closes.
func (s *Server) stateFeed() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		states, unsubscribe := s.states.Subscribe()
		defer unsubscribe()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case state, ok := <-states:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
						time.Now().Add(stateWriteTimeout))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(stateWriteTimeout))
				if err := conn.WriteJSON(state); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						s.logger.Debug("state feed write failed", "error", err.Error())
					}
					return
				}
			}
		}
	})
}
