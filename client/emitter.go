package client

import (
	"sync"

	"stayhub/realtime-service/utils"
)

// Handler consumes one dispatched event payload
type Handler func(data interface{})

// Emitter is an in-process event name -> callback-set map. Dispatch invokes
// every callback registered for the name and isolates panics, so one failing
// callback cannot stop the rest from running.
type Emitter struct {
	logger *utils.Logger

	mu        sync.Mutex
	nextID    int
	callbacks map[string]map[int]Handler
}

func NewEmitter(logger *utils.Logger) *Emitter {
	return &Emitter{
		logger:    logger,
		callbacks: make(map[string]map[int]Handler),
	}
}

// On registers a callback for an event name and returns a token for Off
func (e *Emitter) On(event string, handler Handler) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	if _, ok := e.callbacks[event]; !ok {
		e.callbacks[event] = make(map[int]Handler)
	}
	e.callbacks[event][e.nextID] = handler
	return e.nextID
}

// Off deregisters a callback by its token. Unknown tokens are a no-op.
func (e *Emitter) Off(event string, token int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if set, ok := e.callbacks[event]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(e.callbacks, event)
		}
	}
}

// Emit dispatches the payload to every callback registered for the event
func (e *Emitter) Emit(event string, data interface{}) {
	e.mu.Lock()
	handlers := make([]Handler, 0, len(e.callbacks[event]))
	for _, handler := range e.callbacks[event] {
		handlers = append(handlers, handler)
	}
	e.mu.Unlock()

	for _, handler := range handlers {
		e.dispatch(event, handler, data)
	}
}

func (e *Emitter) dispatch(event string, handler Handler, data interface{}) {
	defer func() {
		if rec := recover(); rec != nil && e.logger != nil {
			e.logger.Error("Event callback panicked", "event", event, "panic", rec)
		}
	}()
	handler(data)
}
