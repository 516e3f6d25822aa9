package collab

import (
	"sync"

	"go.uber.org/zap"

	"github.com/chartstudio/collab/internal/protocol"
)

// MessageHandler receives a decoded frame after it has been applied to
// session state.
type MessageHandler func(frame *protocol.Frame)

// ConnectionHandler receives connection up/down transitions.
type ConnectionHandler func(connected bool)

// Dispatcher is a publish/subscribe registry mapping message kinds to
// local callbacks. A panicking subscriber does not prevent the remaining
// subscribers from running.
type Dispatcher struct {
	log *zap.Logger

	mu       sync.Mutex
	nextID   int
	handlers map[protocol.MessageType]map[int]MessageHandler
	connSubs map[int]ConnectionHandler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:      log,
		handlers: make(map[protocol.MessageType]map[int]MessageHandler),
		connSubs: make(map[int]ConnectionHandler),
	}
}

// OnMessage registers a callback for one message kind and returns an
// unsubscribe function.
func (d *Dispatcher) OnMessage(t protocol.MessageType, fn MessageHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	if d.handlers[t] == nil {
		d.handlers[t] = make(map[int]MessageHandler)
	}
	d.handlers[t][id] = fn

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers[t], id)
	}
}

// OnConnectionChange registers a callback for connection transitions and
// returns an unsubscribe function.
func (d *Dispatcher) OnConnectionChange(fn ConnectionHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.connSubs[id] = fn

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.connSubs, id)
	}
}

// Dispatch fans a frame out to every subscriber registered for its kind.
func (d *Dispatcher) Dispatch(frame *protocol.Frame) {
	d.mu.Lock()
	subs := make([]MessageHandler, 0, len(d.handlers[frame.Type]))
	for _, fn := range d.handlers[frame.Type] {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	for _, fn := range subs {
		d.invoke(frame, fn)
	}
}

func (d *Dispatcher) invoke(frame *protocol.Frame, fn MessageHandler) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("collaboration subscriber panicked",
				zap.String("type", string(frame.Type)),
				zap.Any("panic", r))
		}
	}()
	fn(frame)
}

// NotifyConnection fans a connection transition out to every connection
// subscriber.
func (d *Dispatcher) NotifyConnection(connected bool) {
	d.mu.Lock()
	subs := make([]ConnectionHandler, 0, len(d.connSubs))
	for _, fn := range d.connSubs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	for _, fn := range subs {
		d.invokeConn(connected, fn)
	}
}

func (d *Dispatcher) invokeConn(connected bool, fn ConnectionHandler) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("connection subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(connected)
}
