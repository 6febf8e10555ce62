package client

import (
	"testing"

	"stayhub/realtime-service/utils"
)

func TestEmitterDispatchesToAllCallbacks(t *testing.T) {
	e := NewEmitter(utils.NewLogger())

	count := 0
	e.On("task-created", func(interface{}) { count++ })
	e.On("task-created", func(interface{}) { count++ })
	e.On("other", func(interface{}) { count += 100 })

	e.Emit("task-created", nil)

	if count != 2 {
		t.Fatalf("expected 2 callbacks invoked, got %d", count)
	}
}

func TestEmitterOffDeregisters(t *testing.T) {
	e := NewEmitter(utils.NewLogger())

	count := 0
	token := e.On("task-created", func(interface{}) { count++ })
	e.Off("task-created", token)

	e.Emit("task-created", nil)

	if count != 0 {
		t.Fatalf("deregistered callback still ran %d times", count)
	}

	// Unknown token is a no-op
	e.Off("task-created", 42)
}

func TestEmitterIsolatesPanics(t *testing.T) {
	e := NewEmitter(utils.NewLogger())

	ran := false
	e.On("task-created", func(interface{}) { panic("callback exploded") })
	e.On("task-created", func(interface{}) { ran = true })

	e.Emit("task-created", nil)

	if !ran {
		t.Fatal("one panicking callback must not prevent the rest from running")
	}
}
