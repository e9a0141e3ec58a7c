package httpserver

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tinytelemetry/tailview/internal/model"
	"github.com/tinytelemetry/tailview/internal/query"
)

// The page is served from this origin; the stream carries only log content
// the page could already fetch.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream upgrades to a websocket and forwards tracker notifications
// as JSON text frames: first the bootstrap add/update pairs, then live
// changes. A filter= parameter narrows update events server-side.
func (s *Server) handleStream(c *gin.Context) {
	filter := s.filter(c)
	if !filter.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": filter.Err().Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("httpserver: websocket upgrade: %v", err)
		return
	}
	s.conns.Add(1)
	defer s.conns.Done()
	defer conn.Close()

	sub := s.tracker.Subscribe()
	defer sub.Close()

	readDone := make(chan struct{})
	go s.readPump(conn, readDone)

	ticker := time.NewTicker(s.conf.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-sub.Notifications():
			if !ok {
				s.writeClose(conn, websocket.CloseGoingAway)
				return
			}
			n, send := applyFilter(filter, n)
			if !send {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(s.conf.WriteWait))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.conf.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-s.ctx.Done():
			s.writeClose(conn, websocket.CloseGoingAway)
			return
		}
	}
}

// readPump discards client frames and enforces the pong deadline.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(s.conf.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.conf.PongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeClose(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.conf.WriteWait))
}

// applyFilter narrows an update to the events passing f. Updates left
// empty are dropped; add and remove always pass so the client still sees
// every path.
func applyFilter(f *query.Filter, n model.Notification) (model.Notification, bool) {
	if n.Kind != model.NotifyUpdate || f.Mode() == query.ModeEmpty {
		return n, true
	}
	n.Events = f.Filter(n.Events)
	return n, len(n.Events) > 0
}
