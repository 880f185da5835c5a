package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/model"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 4096
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
)

// Authorizer decides whether p may subscribe to key.
type Authorizer func(ctx context.Context, p model.Principal, key ChannelKey) error

type clientFrame struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`
}

// WSServer upgrades HTTP requests and runs the subscribe protocol.
type WSServer struct {
	router    *Router
	authorize Authorizer
	upgrader  websocket.Upgrader
	buffer    int
	log       *zap.Logger
}

func NewWSServer(router *Router, authorize Authorizer, log *zap.Logger) *WSServer {
	if router == nil || authorize == nil {
		panic("realtime: nil router or authorizer")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WSServer{
		router:    router,
		authorize: authorize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		buffer: DefaultBuffer,
		log:    log,
	}
}

// Serve upgrades the request and blocks until the connection ends.  The
// principal has already been authenticated by the caller.
func (s *WSServer) Serve(w http.ResponseWriter, r *http.Request, p model.Principal) error {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := NewConn(s.buffer)
	log := s.log.With(zap.String("conn", c.ID), zap.String("principal", p.ID), zap.String("role", string(p.Role)))
	log.Debug("websocket connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ws, c, log)
	}()

	s.readLoop(r.Context(), ws, c, p, log)
	s.router.Remove(c)
	<-writerDone
	_ = ws.Close()
	log.Debug("websocket disconnected")
	return nil
}

func (s *WSServer) readLoop(ctx context.Context, ws *websocket.Conn, c *Conn, p model.Principal, log *zap.Logger) {
	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("websocket read failed", zap.Error(err))
			}
			return
		}
		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.reply(c, EventError, "", "malformed frame")
			continue
		}
		key, err := FromLegacyRoom(f.Channel)
		if err != nil {
			s.reply(c, EventError, f.Channel, "unknown channel")
			continue
		}
		switch f.Op {
		case opSubscribe:
			if err := s.authorize(ctx, p, key); err != nil {
				s.reply(c, EventError, key.String(), "not authorized")
				continue
			}
			if err := s.router.Subscribe(c, key); err != nil {
				return
			}
			s.reply(c, EventSubscribed, key.String(), nil)
		case opUnsubscribe:
			s.router.Unsubscribe(c, key)
			s.reply(c, EventUnsubscribed, key.String(), nil)
		default:
			s.reply(c, EventError, key.String(), "unknown op")
		}
		if c.closed() {
			return
		}
	}
}

// reply queues a control frame behind any events already pending for c.
func (s *WSServer) reply(c *Conn, kind EventKind, channel string, payload any) {
	if !c.offer(Event{Kind: kind, Channel: channel, Payload: payload, At: time.Now().UTC()}) {
		s.router.Remove(c)
	}
}

func (s *WSServer) writeLoop(ws *websocket.Conn, c *Conn, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev := <-c.Events():
			b, err := json.Marshal(ev)
			if err != nil {
				log.Error("encode event", zap.Error(err))
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				s.router.Remove(c)
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.router.Remove(c)
				_ = ws.Close()
				return
			}
		case <-c.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			// unblock the reader if it is still waiting on the socket
			_ = ws.SetReadDeadline(time.Now())
			return
		}
	}
}
