// Package room fans annotation events out to the live readers of a script.
package room

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"scriptboard/pkg/annotation"
	"scriptboard/pkg/selection"
)

// Client represents a connected reader in a room
type Client struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id,omitempty"`
	Name   string          `json:"name"`
	Conn   *websocket.Conn `json:"-"`
	Room   *Room           `json:"-"`
	Send   chan []byte     `json:"-"`

	// Reader is the selection state of this connection. Only the goroutine
	// reading from Conn touches it.
	Reader selection.Reader `json:"-"`
}

// User is a reader as listed to other readers
type User struct {
	ID     string `json:"id"`
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name"`
}

// ViewLoader segments a script and joins its annotations
type ViewLoader interface {
	Load(ctx context.Context, documentID, viewerID string) (*annotation.View, error)
}

// Room is the live reading session of one script
type Room struct {
	ID         string
	Clients    map[string]*Client
	Broadcast  chan []byte
	Register   chan *Client
	Unregister chan *Client

	view    *annotation.View
	manager *RoomManager
	done    chan struct{}
	mutex   sync.RWMutex
	log     *logrus.Entry
}

// RoomManager manages all rooms
type RoomManager struct {
	rooms  map[string]*Room
	mutex  sync.RWMutex
	loader ViewLoader
	log    *logrus.Entry
}

// NewRoomManager creates a new room manager
func NewRoomManager(loader ViewLoader) *RoomManager {
	return &RoomManager{
		rooms:  make(map[string]*Room),
		loader: loader,
		log:    logrus.WithField("component", "room"),
	}
}

// GetOrCreateRoom gets an existing room or creates one around a fresh view
// of the script
func (rm *RoomManager) GetOrCreateRoom(ctx context.Context, documentID string) (*Room, error) {
	if room, ok := rm.Room(documentID); ok {
		return room, nil
	}

	// loading hits the database; other rooms keep working meanwhile
	view, err := rm.loader.Load(ctx, documentID, "")
	if err != nil {
		return nil, err
	}

	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	// another reader may have opened it while we loaded
	if room, ok := rm.rooms[documentID]; ok {
		return room, nil
	}

	room := &Room{
		ID:         documentID,
		Clients:    make(map[string]*Client),
		Broadcast:  make(chan []byte, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		view:       view,
		manager:    rm,
		done:       make(chan struct{}),
		log:        rm.log.WithField("script", documentID),
	}
	rm.rooms[documentID] = room

	go room.run()

	return room, nil
}

// Room returns the room of a script if anyone is reading it
func (rm *RoomManager) Room(documentID string) (*Room, bool) {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	room, ok := rm.rooms[documentID]
	return room, ok
}

// Len returns the number of open rooms
func (rm *RoomManager) Len() int {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	return len(rm.rooms)
}

// release drops an empty room. It reports false when a client joined in the
// meantime and the room must keep running.
func (rm *RoomManager) release(r *Room) bool {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if len(r.Clients) > 0 {
		return false
	}
	if rm.rooms[r.ID] == r {
		delete(rm.rooms, r.ID)
	}
	close(r.done)
	return true
}

// Publish implements annotation.Notifier. The event is folded into the room's
// view and sent to every reader of the script.
func (rm *RoomManager) Publish(documentID string, ev annotation.Event) {
	room, ok := rm.Room(documentID)
	if !ok {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		room.log.WithError(err).Error("failed to encode event")
		return
	}

	if ev.Annotation != nil {
		a := *ev.Annotation
		ev.Annotation = &a
	}
	if ev.Type == annotation.EventDocumentUpdated {
		view, err := rm.loader.Load(context.Background(), documentID, "")
		if err != nil {
			room.log.WithError(err).Error("failed to reload script")
			return
		}
		room.mutex.Lock()
		room.view = view
		room.mutex.Unlock()
	} else {
		room.mutex.Lock()
		room.view.Apply(ev)
		room.mutex.Unlock()
	}

	room.send(data)
}

// Join registers c. It reports false when the room closed before c got in.
func (r *Room) Join(c *Client) bool {
	select {
	case r.Register <- c:
		return true
	case <-r.done:
		return false
	}
}

// Leave unregisters c without blocking on a room that already stopped
func (r *Room) Leave(c *Client) {
	select {
	case r.Unregister <- c:
	case <-r.done:
	}
}

func (r *Room) send(data []byte) {
	select {
	case r.Broadcast <- data:
	case <-r.done:
	default:
		r.log.Warn("broadcast queue full, dropping event")
	}
}

// run handles room operations
func (r *Room) run() {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorf("panic in room: %v\n%s", rec, debug.Stack())
		}
	}()
	r.log.Debug("room started")

	for {
		select {
		case client := <-r.Register:
			r.mutex.Lock()
			r.Clients[client.ID] = client
			r.mutex.Unlock()
			r.sendSnapshot(client)
			r.broadcastPresence("user_joined", client)
			r.log.WithField("client", client.ID).Info("reader joined")

		case client := <-r.Unregister:
			r.mutex.Lock()
			_, ok := r.Clients[client.ID]
			if ok {
				delete(r.Clients, client.ID)
				close(client.Send)
			}
			empty := len(r.Clients) == 0
			r.mutex.Unlock()
			if !ok {
				continue
			}
			r.log.WithField("client", client.ID).Info("reader left")
			if empty && r.manager.release(r) {
				r.log.Debug("room closed")
				return
			}
			r.broadcastPresence("user_left", client)

		case message := <-r.Broadcast:
			r.mutex.Lock()
			for id, client := range r.Clients {
				select {
				case client.Send <- message:
				default:
					// slow reader
					close(client.Send)
					delete(r.Clients, id)
				}
			}
			empty := len(r.Clients) == 0
			r.mutex.Unlock()
			if empty && r.manager.release(r) {
				r.log.Debug("room closed")
				return
			}
		}
	}
}

// snapshot is the first message a reader receives
type snapshot struct {
	Type       string      `json:"type"`
	DocumentID string      `json:"document_id"`
	LineCount  int         `json:"line_count"`
	Counts     map[int]int `json:"counts"`
	Orphaned   int         `json:"orphaned"`
	Users      []User      `json:"users"`
}

func (r *Room) sendSnapshot(c *Client) {
	r.mutex.RLock()
	p := r.view.Placement()
	msg := snapshot{
		Type:       "snapshot",
		DocumentID: r.ID,
		LineCount:  len(r.view.Lines),
		Counts:     make(map[int]int, len(p.ByLine)),
		Orphaned:   p.Orphaned,
		Users:      r.usersLocked(),
	}
	for i, list := range p.ByLine {
		msg.Counts[i] = len(list)
	}
	r.mutex.RUnlock()

	data, _ := json.Marshal(msg)
	select {
	case c.Send <- data:
	default:
	}
}

func (r *Room) broadcastPresence(kind string, c *Client) {
	data, _ := json.Marshal(map[string]interface{}{
		"type": kind,
		"user": User{ID: c.ID, UserID: c.UserID, Name: c.Name},
	})
	r.send(data)
}

// LineCount returns the number of lines of the script as last segmented
func (r *Room) LineCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.view.Lines)
}

// Comments returns copies of the annotations displayed at line i, as seen by
// viewerID
func (r *Room) Comments(i int, viewerID string) []annotation.Annotation {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	list := r.view.Placement().For(i)
	out := make([]annotation.Annotation, len(list))
	for j, a := range list {
		out[j] = *a
		out[j].LikedByViewer = a.LikedBy(viewerID)
	}
	return out
}

// GetUsers returns a list of users currently in the room
func (r *Room) GetUsers() []User {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.usersLocked()
}

func (r *Room) usersLocked() []User {
	users := make([]User, 0, len(r.Clients))
	for _, client := range r.Clients {
		users = append(users, User{ID: client.ID, UserID: client.UserID, Name: client.Name})
	}
	return users
}

// Reply sends data to c alone. It reports false when c has left the room or
// its queue is full.
func (r *Room) Reply(c *Client, data []byte) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.Clients[c.ID] != c {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}
