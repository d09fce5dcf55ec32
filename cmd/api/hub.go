package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/chatv1"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/messaging"
)

// defaultOutboundBuffer is how many events may wait for one slow stream
// before the hub gives up on it.
const defaultOutboundBuffer = 64

var (
	// errUserOffline is returned by SendToUser when the user has no open stream.
	errUserOffline = errors.New("user not connected")
	// errSlowConsumer ends a stream whose outbound buffer is full.
	errSlowConsumer = errors.New("subscriber too slow")
	// errDetached ends a stream that was unregistered.
	errDetached = errors.New("subscription closed")
)

// StreamSender defines the minimal interface the hub needs from a stream: the ability
// to send MessageEvent messages to the connected client.
type StreamSender interface {
	Send(*chatv1.MessageEvent) error
}

// connection owns one stream. Events are queued on out and written by a
// single goroutine, so a client that stops reading only stalls its own
// writer. gone is closed, with err set, when the connection ends.
type connection struct {
	s    StreamSender
	out  chan *chatv1.MessageEvent
	gone chan struct{}

	once sync.Once
	err  error
}

func (c *connection) close(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.gone)
	})
}

// enqueue queues evt without blocking and reports whether it fit.
func (c *connection) enqueue(evt *chatv1.MessageEvent) bool {
	select {
	case <-c.gone:
		return false
	default:
	}
	select {
	case c.out <- evt:
		return true
	default:
		return false
	}
}

// Subscription is a stream attached to the hub.
type Subscription struct {
	ID   int64
	conn *connection
}

// Done is closed when the hub drops the stream or it is unregistered.
func (s *Subscription) Done() <-chan struct{} { return s.conn.gone }

// Err reports why the stream ended. It is nil until Done is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.conn.gone:
		return s.conn.err
	default:
		return nil
	}
}

// ConnectionHub manages active Subscribe streams for connected users.
// It maps user ids to one or more active stream connections so the
// server can push events to all currently-connected endpoints for a user.
type ConnectionHub struct {
	mu      sync.RWMutex
	streams map[bson.ObjectID]map[int64]*connection
	nextID  int64
	buffer  int
	log     zerolog.Logger
}

// NewConnectionHub creates a new hub instance.
func NewConnectionHub(log zerolog.Logger) *ConnectionHub {
	return &ConnectionHub{
		streams: make(map[bson.ObjectID]map[int64]*connection),
		buffer:  defaultOutboundBuffer,
		log:     log.With().Str("component", "hub").Logger(),
	}
}

// Register registers a stream for the given user and returns a connection id which
// should be used later to unregister the stream when it closes.
func (h *ConnectionHub) Register(userID bson.ObjectID, s StreamSender) int64 {
	sub, _ := h.Attach(userID, s, nil)
	return sub.ID
}

// Attach registers s and runs ready before any event is written to s. Events
// published in between wait in the stream's buffer. If ready fails the stream
// is unregistered again.
func (h *ConnectionHub) Attach(userID bson.ObjectID, s StreamSender, ready func() error) (*Subscription, error) {
	conn := &connection{
		s:    s,
		out:  make(chan *chatv1.MessageEvent, h.buffer),
		gone: make(chan struct{}),
	}

	h.mu.Lock()
	if _, ok := h.streams[userID]; !ok {
		h.streams[userID] = make(map[int64]*connection)
	}
	h.nextID++
	id := h.nextID
	h.streams[userID][id] = conn
	h.mu.Unlock()

	if ready != nil {
		if err := ready(); err != nil {
			h.Unregister(userID, id)
			return nil, err
		}
	}

	go h.write(userID, id, conn)
	return &Subscription{ID: id, conn: conn}, nil
}

// write drains conn's queue onto its stream until the connection ends.
func (h *ConnectionHub) write(userID bson.ObjectID, id int64, conn *connection) {
	for {
		select {
		case <-conn.gone:
			return
		case evt := <-conn.out:
			if err := conn.s.Send(evt); err != nil {
				h.log.Debug().Err(err).
					Str("user_id", userID.Hex()).
					Int64("conn_id", id).
					Msg("dropping broken stream")
				h.drop(userID, id, err)
				return
			}
		}
	}
}

// Unregister removes a previously-registered stream for the given user.
func (h *ConnectionHub) Unregister(userID bson.ObjectID, id int64) {
	h.drop(userID, id, errDetached)
}

func (h *ConnectionHub) drop(userID bson.ObjectID, id int64, reason error) {
	h.mu.Lock()
	conns, ok := h.streams[userID]
	var conn *connection
	if ok {
		conn = conns[id]
		delete(conns, id)
		if len(conns) == 0 {
			delete(h.streams, userID)
		}
	}
	h.mu.Unlock()

	if conn != nil {
		conn.close(reason)
	}
}

// Connections returns how many streams the user has open.
func (h *ConnectionHub) Connections(userID bson.ObjectID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[userID])
}

// SendToUser queues the event on every stream of the user. It never blocks:
// a stream whose buffer is full is dropped and errSlowConsumer returned.
func (h *ConnectionHub) SendToUser(userID bson.ObjectID, evt *chatv1.MessageEvent) error {
	h.mu.RLock()
	conns := make(map[int64]*connection, len(h.streams[userID]))
	for id, c := range h.streams[userID] {
		conns[id] = c
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return fmt.Errorf("%w: %s", errUserOffline, userID.Hex())
	}

	var dropped int
	for id, c := range conns {
		if !c.enqueue(evt) {
			h.drop(userID, id, errSlowConsumer)
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d stream(s) of %s dropped", errSlowConsumer, dropped, userID.Hex())
	}
	return nil
}

// Publish implements messaging.Notifier. Recipients without an open stream
// are skipped; they read the persisted state when they come back.
func (h *ConnectionHub) Publish(_ context.Context, evt messaging.Event) error {
	out := chatv1.FromEvent(evt)

	var errs []error
	for _, userID := range evt.Recipients {
		err := h.SendToUser(userID, out)
		if errors.Is(err, errUserOffline) {
			continue
		}
		if err != nil {
			h.log.Warn().Err(err).
				Str("user_id", userID.Hex()).
				Str("event", string(evt.Type)).
				Msg("event not queued")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
