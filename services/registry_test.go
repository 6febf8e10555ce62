package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"stayhub/realtime-service/models"
	"stayhub/realtime-service/utils"
)

// fakeSender records every envelope delivered to one connection
type fakeSender struct {
	mu        sync.Mutex
	envelopes []models.Envelope
	fail      bool
}

func (f *fakeSender) SendEnvelope(env models.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("dead connection")
	}
	f.envelopes = append(f.envelopes, env)
	return nil
}

func (f *fakeSender) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, len(f.envelopes))
	for i, env := range f.envelopes {
		kinds[i] = env.Kind
	}
	return kinds
}

func newTestRegistry() *Registry {
	return NewRegistry(utils.NewLogger(), nil)
}

func TestRegisterAutoJoinsStandingRooms(t *testing.T) {
	r := newTestRegistry()
	sender := &fakeSender{}
	r.Register("c1", "u1", "CLEANER", "HOUSEKEEPING", sender)

	env := models.NewEnvelope("test", "task", nil, "")

	r.BroadcastToRoom(models.RoomAllStaff, env)
	r.BroadcastToRoom(models.DepartmentRoom("HOUSEKEEPING"), env)
	r.BroadcastToRoom(models.RoleRoom("CLEANER"), env)

	if got := len(sender.kinds()); got != 3 {
		t.Fatalf("expected 3 deliveries via standing rooms, got %d", got)
	}
}

func TestRegisterWithoutRoleOrDepartment(t *testing.T) {
	r := newTestRegistry()
	sender := &fakeSender{}
	r.Register("c1", "u1", "", "", sender)

	r.BroadcastToRoom(models.RoleRoom(""), models.NewEnvelope("test", "task", nil, ""))
	r.BroadcastToRoom(models.DepartmentRoom(""), models.NewEnvelope("test", "task", nil, ""))
	if got := len(sender.kinds()); got != 0 {
		t.Fatalf("expected no role/department room membership, got %d deliveries", got)
	}

	r.BroadcastToRoom(models.RoomAllStaff, models.NewEnvelope("test", "task", nil, ""))
	if got := len(sender.kinds()); got != 1 {
		t.Fatalf("expected all-staff delivery, got %d", got)
	}
}

func TestIsOnlineFlipsWithLastConnection(t *testing.T) {
	r := newTestRegistry()

	const n = 5
	for i := 0; i < n; i++ {
		r.Register(fmt.Sprintf("c%d", i), "u1", "CLEANER", "HOUSEKEEPING", &fakeSender{})
	}
	r.Register("other", "u2", "MANAGER", "", &fakeSender{})

	if !r.IsOnline("u1") {
		t.Fatal("u1 should be online")
	}
	if got := r.CountUsers(); got != 2 {
		t.Fatalf("expected 2 users, got %d", got)
	}
	if got := r.CountConnections(); got != n+1 {
		t.Fatalf("expected %d connections, got %d", n+1, got)
	}

	for i := 0; i < n-1; i++ {
		r.Unregister(fmt.Sprintf("c%d", i))
		if !r.IsOnline("u1") {
			t.Fatalf("u1 went offline after dropping %d of %d connections", i+1, n)
		}
		if got := r.CountUsers(); got != 2 {
			t.Fatalf("user count changed to %d before last connection dropped", got)
		}
	}

	r.Unregister(fmt.Sprintf("c%d", n-1))
	if r.IsOnline("u1") {
		t.Fatal("u1 should be offline after last connection dropped")
	}
	if got := r.CountUsers(); got != 1 {
		t.Fatalf("expected user count to drop by exactly 1, got %d users", got)
	}
}

func TestUnregisterUnknownConnectionIsNoOp(t *testing.T) {
	r := newTestRegistry()
	r.Unregister("missing")
	if got := r.CountConnections(); got != 0 {
		t.Fatalf("expected 0 connections, got %d", got)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	sender := &fakeSender{}
	r.Register("c1", "u1", "", "", sender)

	r.Join("c1", models.SuiteRoom("s1"))
	r.Join("c1", models.SuiteRoom("s1"))

	r.BroadcastToRoom(models.SuiteRoom("s1"), models.NewEnvelope("test", "suite", nil, ""))
	if got := len(sender.kinds()); got != 1 {
		t.Fatalf("double join produced %d deliveries, want 1", got)
	}
}

func TestJoinUnknownConnectionIgnored(t *testing.T) {
	r := newTestRegistry()
	r.Join("ghost", models.SuiteRoom("s1"))

	sender := &fakeSender{}
	r.Register("c1", "u1", "", "", sender)
	r.Join("c1", models.SuiteRoom("s1"))
	r.BroadcastToRoom(models.SuiteRoom("s1"), models.NewEnvelope("test", "suite", nil, ""))
	if got := len(sender.kinds()); got != 1 {
		t.Fatalf("expected 1 delivery, got %d", got)
	}
}

func TestUnregisterLeavesJoinedRooms(t *testing.T) {
	r := newTestRegistry()
	sender := &fakeSender{}
	r.Register("c1", "u1", "", "", sender)
	r.Join("c1", models.TaskRoom("t1"))
	r.Unregister("c1")

	r.BroadcastToRoom(models.TaskRoom("t1"), models.NewEnvelope("test", "task", nil, ""))
	r.BroadcastToRoom(models.RoomAllStaff, models.NewEnvelope("test", "task", nil, ""))
	if got := len(sender.kinds()); got != 0 {
		t.Fatalf("unregistered connection still received %d deliveries", got)
	}
}

func TestSendToUserFansOutAcrossDevices(t *testing.T) {
	r := newTestRegistry()
	s1, s2, other := &fakeSender{}, &fakeSender{}, &fakeSender{}
	r.Register("c1", "u1", "", "", s1)
	r.Register("c2", "u1", "", "", s2)
	r.Register("c3", "u2", "", "", other)

	r.SendToUser("u1", models.NewEnvelope("direct", "task", nil, ""))

	if len(s1.kinds()) != 1 || len(s2.kinds()) != 1 {
		t.Fatalf("expected delivery on both of u1's connections, got %d and %d", len(s1.kinds()), len(s2.kinds()))
	}
	if len(other.kinds()) != 0 {
		t.Fatal("u2 should not receive a direct send to u1")
	}
}

func TestBroadcastExceptSkipsEveryActorConnection(t *testing.T) {
	r := newTestRegistry()
	actorTab1, actorTab2, bystander := &fakeSender{}, &fakeSender{}, &fakeSender{}
	r.Register("a1", "actor", "", "", actorTab1)
	r.Register("a2", "actor", "", "", actorTab2)
	r.Register("b1", "bystander", "", "", bystander)

	r.BroadcastToRoomExcept(models.RoomAllStaff, "actor", models.NewEnvelope("change", "task", nil, "actor"))

	if len(actorTab1.kinds()) != 0 || len(actorTab2.kinds()) != 0 {
		t.Fatal("exclusion must cover every connection of the acting user")
	}
	if len(bystander.kinds()) != 1 {
		t.Fatalf("bystander expected 1 delivery, got %d", len(bystander.kinds()))
	}
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	r := newTestRegistry()
	dead := &fakeSender{fail: true}
	alive := &fakeSender{}
	r.Register("c1", "u1", "", "", dead)
	r.Register("c2", "u2", "", "", alive)

	r.BroadcastToRoom(models.RoomAllStaff, models.NewEnvelope("test", "task", nil, ""))

	if got := len(alive.kinds()); got != 1 {
		t.Fatalf("a dead connection must not block delivery to others, got %d", got)
	}
}
