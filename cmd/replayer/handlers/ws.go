package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/session"
)

// Message types understood on the replay socket.
const (
	MsgLaunch   = "launch"
	MsgContinue = "continue"
	MsgError    = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 20
	sendBuffer     = 64
)

// Envelope frames every message on the replay socket.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ReplayRequest is the payload of launch and continue messages.
type ReplayRequest struct {
	StoryName string    `json:"storyName"`
	Flow      flow.Flow `json:"flow"`
	Index     int       `json:"index"`
	Command   string    `json:"command,omitempty"`

	// FlowName identifies the flow when a continue does not resend it.
	FlowName string `json:"flowName,omitempty"`
}

func (r ReplayRequest) flowName() string {
	if r.Flow.Name != "" {
		return r.Flow.Name
	}
	return r.FlowName
}

// ErrorMessage is the payload of an error message.
type ErrorMessage struct {
	Message   string `json:"message"`
	StoryName string `json:"storyName,omitempty"`
	FlowName  string `json:"flowName,omitempty"`
}

// Controller drives replay sessions on behalf of a connected client.
type Controller interface {
	Launch(ctx context.Context, storyName string, f flow.Flow) (session.Reply, error)
	Continue(ctx context.Context, key session.Key, f flow.Flow, index int, cmd session.Command) (session.Reply, error)
}

// ReplayHandler serves the controller WebSocket.
type ReplayHandler struct {
	controller Controller
	upgrader   websocket.Upgrader
	baseCtx    context.Context
	logger     logger.Logger
}

// NewReplayHandler creates a replay socket handler. Steps run under baseCtx
// rather than the connection, so a dropped client does not abort a step.
func NewReplayHandler(baseCtx context.Context, controller Controller, log logger.Logger) *ReplayHandler {
	return &ReplayHandler{
		controller: controller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 16,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		baseCtx: baseCtx,
		logger:  log,
	}
}

// connection is one controller socket. Reads happen on the handler
// goroutine, writes only on writePump.
type connection struct {
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger logger.Logger
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// reply queues a message for the writer. It drops the message once the
// connection is gone.
func (c *connection) reply(typ string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error(context.Background(), "Failed to encode reply", map[string]interface{}{"error": err.Error()})
		return
	}
	raw, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	case <-c.done:
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ServeHTTP upgrades the request and processes messages until the client
// goes away. Every request runs on its own goroutine so a terminal command
// can interrupt a step that is still settling.
func (h *ReplayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	log := h.logger.WithField("remote_addr", r.RemoteAddr)
	c := &connection{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: log,
	}
	go c.writePump()
	defer c.close()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	log.Info(r.Context(), "Controller connected", nil)
	var wg sync.WaitGroup
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn(r.Context(), "Controller connection lost", map[string]interface{}{"error": err.Error()})
			}
			break
		}
		// Any traffic proves the client is alive.
		ws.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.reply(MsgError, ErrorMessage{Message: "malformed message: " + err.Error()})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			h.dispatch(c, env)
		}()
	}
	log.Info(r.Context(), "Controller disconnected", nil)
	c.close()
	wg.Wait()
}

func (h *ReplayHandler) dispatch(c *connection, env Envelope) {
	var req ReplayRequest
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.reply(MsgError, ErrorMessage{Message: "malformed " + env.Type + " payload: " + err.Error()})
			return
		}
	}

	var (
		reply session.Reply
		err   error
	)
	switch env.Type {
	case MsgLaunch:
		if req.StoryName == "" || req.Flow.Name == "" {
			c.reply(MsgError, ErrorMessage{Message: "storyName and flow.name are required"})
			return
		}
		reply, err = h.controller.Launch(h.baseCtx, req.StoryName, req.Flow)

	case MsgContinue:
		cmd, perr := session.ParseCommand(req.Command)
		if perr != nil {
			c.reply(MsgError, ErrorMessage{Message: perr.Error(), StoryName: req.StoryName, FlowName: req.flowName()})
			return
		}
		key := session.Key{Story: req.StoryName, Flow: req.flowName()}
		reply, err = h.controller.Continue(h.baseCtx, key, req.Flow, req.Index, cmd)

	default:
		c.reply(MsgError, ErrorMessage{Message: "unknown message type: " + env.Type})
		return
	}

	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			c.logger.Warn(h.baseCtx, "Replay request failed", map[string]interface{}{
				"type":  env.Type,
				"story": req.StoryName,
				"flow":  req.flowName(),
				"error": err.Error(),
			})
		}
		c.reply(MsgError, ErrorMessage{Message: err.Error(), StoryName: req.StoryName, FlowName: req.flowName()})
		return
	}
	c.reply(reply.Type, reply)
}
