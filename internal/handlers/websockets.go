package handlers

import (
	"net/http"
	"time"

	"damagedetect/internal/logger"
	"damagedetect/internal/services"

	"github.com/gorilla/websocket"
)

const (
	liveReadTimeout = 60 * time.Second
	liveWriteWait   = 10 * time.Second
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveWebsocketHandler streams a summary of every finished inference to the viewer.
func LiveWebsocketHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return LiveWebsocketHandlerWithTimeout(manager, logger, liveReadTimeout)
}

// LiveWebsocketHandlerWithTimeout drops a viewer that has not answered a ping
// within readTimeout. Pings are sent at 9/10 of that interval.
func LiveWebsocketHandlerWithTimeout(manager *services.Manager, logger *logger.Logger, readTimeout time.Duration) http.HandlerFunc {
	pingPeriod := readTimeout * 9 / 10

	return func(w http.ResponseWriter, r *http.Request) {
		hub := manager.Hub()
		if hub == nil {
			http.Error(w, "Live feed is disabled", http.StatusNotFound)
			return
		}

		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)
		connection.SetReadDeadline(time.Now().Add(readTimeout))
		connection.SetPongHandler(func(appData string) error {
			return connection.SetReadDeadline(time.Now().Add(readTimeout))
		})

		hub.Register(connection)
		defer hub.Unregister(connection)

		done := make(chan struct{})
		defer close(done)
		go pingViewer(connection, pingPeriod, done)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warning("Live viewer read error: %v", err)
				}
				return
			}
			connection.SetReadDeadline(time.Now().Add(readTimeout))
		}
	}
}

// pingViewer keeps the read deadline alive for viewers that never send frames.
// WriteControl may run concurrently with the hub's writes.
func pingViewer(connection *websocket.Conn, period time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := connection.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}
