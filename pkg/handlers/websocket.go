package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"scriptboard/pkg/annotation"
	"scriptboard/pkg/auth"
	"scriptboard/pkg/room"
	"scriptboard/pkg/selection"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 16 << 10
	actionTimeout  = 10 * time.Second
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is a reader gesture sent over the socket
type clientMessage struct {
	Type      string            `json:"type"`
	Selection *selectionMessage `json:"selection,omitempty"`
	LineIndex *int              `json:"line_index,omitempty"`
	Body      string            `json:"body,omitempty"`
}

// readerState is sent back after every gesture
type readerState struct {
	Type     string                  `json:"type"`
	Phase    string                  `json:"phase"`
	Target   *selection.Target       `json:"target,omitempty"`
	Comments []annotation.Annotation `json:"comments,omitempty"`
}

// HandleWebSocket joins the reader to the live room of a script
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if _, err := h.readableScript(ctx, id); err != nil {
		h.respondError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	viewer, _ := auth.FromContext(ctx)
	client := &room.Client{
		ID:     uuid.New().String(),
		UserID: viewer.UserID,
		Name:   viewer.Name,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}
	if client.Name == "" {
		client.Name = "Anonymous"
	}

	// a room closes when its last reader leaves; retry once if we raced it
	for attempt := 0; attempt < 2; attempt++ {
		rm, err := h.roomManager.GetOrCreateRoom(context.Background(), id)
		if err != nil {
			h.log.WithError(err).WithField("script", id).Error("failed to open room")
			conn.Close()
			return
		}
		client.Room = rm
		if rm.Join(client) {
			go h.writePump(client)
			go h.readPump(client)
			return
		}
	}
	h.log.WithField("script", id).Error("failed to join room")
	conn.Close()
}

// readPump handles reading messages from the WebSocket
func (h *Handlers) readPump(c *room.Client) {
	log := h.log.WithFields(logrus.Fields{"client": c.ID, "script": c.Room.ID})
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic in readPump: %v\n%s", r, debug.Stack())
		}
		c.Room.Leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("websocket closed unexpectedly")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.WithError(err).Debug("invalid message")
			h.reply(c, map[string]string{"type": "error", "error": "invalid message"})
			continue
		}
		h.handleMessage(c, msg)
	}
}

// handleMessage advances the reader state of c
func (h *Handlers) handleMessage(c *room.Client, msg clientMessage) {
	switch msg.Type {
	case "pointer_down":
		c.Reader = c.Reader.PointerDown()
	case "pointer_up":
		var sel selection.Selection
		if msg.Selection != nil {
			sel = msg.Selection.selection()
		} else {
			sel = selection.Selection{Collapsed: true}
		}
		c.Reader = c.Reader.PointerUp(sel)
	case "focus_line":
		if msg.LineIndex == nil || *msg.LineIndex < 0 || *msg.LineIndex >= c.Room.LineCount() {
			h.replyError(c, annotation.ErrInvalidTarget)
			return
		}
		c.Reader = c.Reader.FocusLine(*msg.LineIndex)
	case "open_panel":
		next, ok := c.Reader.OpenPanel()
		if !ok {
			h.replyError(c, annotation.ErrInvalidTarget)
			return
		}
		c.Reader = next
	case "close_panel":
		c.Reader = c.Reader.Close()
	case "add_comment":
		if err := h.addComment(c, msg.Body); err != nil {
			h.replyError(c, err)
			return
		}
	case "ping":
		h.reply(c, map[string]string{"type": "pong"})
		return
	default:
		h.replyError(c, errBadRequest)
		return
	}
	h.sendState(c)
}

// addComment attaches body to the line the reader has focused. The new
// comment reaches every reader of the room through the service's events.
func (h *Handlers) addComment(c *room.Client, body string) error {
	var target *selection.Target
	if t, ok := c.Reader.Target(); ok {
		target = &t
	}
	if c.UserID == "" && target != nil {
		return auth.ErrNoIdentity
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	_, err := h.comments.Add(ctx, c.Room.ID, target, body, c.UserID)
	return err
}

func (h *Handlers) sendState(c *room.Client) {
	st := readerState{Type: "reader_state", Phase: c.Reader.Phase().String()}
	if t, ok := c.Reader.Target(); ok {
		st.Target = &t
		if c.Reader.Phase() == selection.PanelOpen {
			st.Comments = c.Room.Comments(t.Line, c.UserID)
		}
	}
	h.reply(c, st)
}

func (h *Handlers) replyError(c *room.Client, err error) {
	msg := err.Error()
	if statusFor(err) == http.StatusInternalServerError {
		h.log.WithError(err).WithField("client", c.ID).Error("websocket action failed")
		msg = "internal error"
	}
	h.reply(c, map[string]string{"type": "error", "error": msg})
}

func (h *Handlers) reply(c *room.Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).Error("failed to encode reply")
		return
	}
	c.Room.Reply(c, data)
}

// writePump handles writing messages to the WebSocket
func (h *Handlers) writePump(c *room.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Room.Leave(c)
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the room closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.log.WithError(err).WithField("client", c.ID).Debug("websocket write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
