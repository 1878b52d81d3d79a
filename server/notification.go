package server

import (
	"net/http"

	"github.com/projecteru2/core/log"
	"golang.org/x/net/websocket"

	"github.com/projecteru2/modelforge/notify"
)

const observerBuffer = 256

// wsObserver forwards hub messages to one websocket client.
type wsObserver struct {
	*notify.ChanObserver
}

func (s *Server) notificationHandler() http.Handler {
	return websocket.Handler(func(ws *websocket.Conn) {
		ctx := ws.Request().Context()
		logger := log.WithFunc("server.notifications")
		defer ws.Close() //nolint:errcheck

		obs := &wsObserver{notify.NewChanObserver(observerBuffer)}
		if prev, ok := s.ctrl.Attach(obs).(*wsObserver); ok && prev != nil {
			// The displaced client's writer exits on its closed channel.
			prev.Close()
		}
		defer func() {
			s.ctrl.Detach(obs)
			obs.Close()
		}()
		logger.Infof(ctx, "observer attached from %s", ws.Request().RemoteAddr)

		// Clients never send; a read error means they went away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			var discard string
			for websocket.Message.Receive(ws, &discard) == nil {
			}
		}()

		for {
			select {
			case msg, ok := <-obs.C():
				if !ok {
					logger.Infof(ctx, "observer %s replaced", ws.Request().RemoteAddr)
					return
				}
				if err := websocket.JSON.Send(ws, msg); err != nil {
					logger.Warnf(ctx, "send to %s: %v", ws.Request().RemoteAddr, err)
					return
				}
			case <-gone:
				logger.Infof(ctx, "observer %s disconnected", ws.Request().RemoteAddr)
				return
			case <-ctx.Done():
				return
			}
		}
	})
}
