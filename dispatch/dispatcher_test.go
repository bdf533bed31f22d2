package dispatch

import (
	"errors"
	"testing"

	vrpn "vrpn"
)

func TestNewDispatcherPreregistersLifecycleTypes(t *testing.T) {
	d := NewTypeDispatcher()
	if _, ok := d.GetSenderId(ControlSenderName); !ok {
		t.Fatal("expected CONTROL sender to be pre-registered")
	}
	for _, name := range lifecycleTypeNames {
		if _, ok := d.GetTypeId(name); !ok {
			t.Fatalf("expected lifecycle type %q to be pre-registered", name)
		}
	}
	if len(d.types) != len(lifecycleTypeNames) {
		t.Fatalf("expected exactly %d pre-registered types, got %d", len(lifecycleTypeNames), len(d.types))
	}
}

func TestRegisterTypeAndSenderAreIdempotent(t *testing.T) {
	d := NewTypeDispatcher()
	a, isNew, err := d.RegisterType("vrpn_Tracker Position")
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Fatal("expected first registration to be new")
	}
	b, isNew, err := d.RegisterType("vrpn_Tracker Position")
	if err != nil {
		t.Fatal(err)
	}
	if isNew {
		t.Fatal("expected second registration to report not-new")
	}
	if a != b {
		t.Fatalf("expected same id for repeated name, got %v and %v", a, b)
	}
}

func TestCallFiresGenericBeforeTyped(t *testing.T) {
	d := NewTypeDispatcher()
	typeId, _, _ := d.RegisterType("vrpn_Tracker Position")

	var order []string
	d.AddHandler(func(msg Message) (HandlerCode, error) {
		order = append(order, "generic")
		return ContinueProcessing, nil
	})
	d.AddTypedHandler(typeId, func(msg Message) (HandlerCode, error) {
		order = append(order, "typed")
		return ContinueProcessing, nil
	})

	d.Call(Message{Type: typeId})

	if len(order) != 2 || order[0] != "generic" || order[1] != "typed" {
		t.Fatalf("expected [generic typed], got %v", order)
	}
}

func TestCallRespectsSenderFilter(t *testing.T) {
	d := NewTypeDispatcher()
	typeId, _, _ := d.RegisterType("vrpn_Tracker Position")
	senderA, _, _ := d.RegisterSender("Tracker0")
	senderB, _, _ := d.RegisterSender("Tracker1")

	fired := false
	d.AddTypedHandlerFiltered(typeId, senderA, func(msg Message) (HandlerCode, error) {
		fired = true
		return ContinueProcessing, nil
	})

	d.Call(Message{Type: typeId, Sender: senderB})
	if fired {
		t.Fatal("handler filtered to senderA should not fire for senderB")
	}

	d.Call(Message{Type: typeId, Sender: senderA})
	if !fired {
		t.Fatal("handler filtered to senderA should fire for senderA")
	}
}

func TestInsertionOrderSurvivesRemoval(t *testing.T) {
	d := NewTypeDispatcher()
	typeId, _, _ := d.RegisterType("vrpn_Tracker Position")

	var order []string
	mk := func(tag string) Handler {
		return func(msg Message) (HandlerCode, error) {
			order = append(order, tag)
			return ContinueProcessing, nil
		}
	}
	h1, err := d.AddTypedHandler(typeId, mk("h1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddTypedHandler(typeId, mk("h2")); err != nil {
		t.Fatal(err)
	}

	d.Call(Message{Type: typeId})
	if len(order) != 2 || order[0] != "h1" || order[1] != "h2" {
		t.Fatalf("expected [h1 h2], got %v", order)
	}

	if err := d.RemoveHandler(h1); err != nil {
		t.Fatalf("RemoveHandler: %v", err)
	}
	if _, err := d.AddTypedHandler(typeId, mk("h3")); err != nil {
		t.Fatal(err)
	}

	order = nil
	d.Call(Message{Type: typeId})
	if len(order) != 2 || order[0] != "h2" || order[1] != "h3" {
		t.Fatalf("expected [h2 h3] after removal and re-registration, got %v", order)
	}
}

func TestRemoveHandlerStopsFutureDispatch(t *testing.T) {
	d := NewTypeDispatcher()
	typeId, _, _ := d.RegisterType("vrpn_Tracker Position")

	calls := 0
	h, err := d.AddTypedHandler(typeId, func(msg Message) (HandlerCode, error) {
		calls++
		return ContinueProcessing, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	d.Call(Message{Type: typeId})
	if err := d.RemoveHandler(h); err != nil {
		t.Fatalf("expected RemoveHandler to succeed the first time, got %v", err)
	}
	d.Call(Message{Type: typeId})

	if calls != 1 {
		t.Fatalf("expected exactly 1 call before removal, got %d", calls)
	}
	if err := d.RemoveHandler(h); !errors.Is(err, ErrHandlerNotFound) {
		t.Fatalf("expected ErrHandlerNotFound on an already-removed handle, got %v", err)
	}
}

func TestAddTypedHandlerRejectsUnknownType(t *testing.T) {
	d := NewTypeDispatcher()
	bogus := vrpn.LocalId[vrpn.TypeId]{Id: 99}
	if _, err := d.AddTypedHandler(bogus, func(msg Message) (HandlerCode, error) {
		return ContinueProcessing, nil
	}); !errors.Is(err, ErrInvalidId) {
		t.Fatalf("expected ErrInvalidId for an unregistered type, got %v", err)
	}
}

func TestAddHandlerForNameRegistersAndRoutes(t *testing.T) {
	d := NewTypeDispatcher()

	fired := 0
	if _, err := d.AddHandlerForName("vrpn_Tracker Velocity", func(msg Message) (HandlerCode, error) {
		fired++
		return ContinueProcessing, nil
	}); err != nil {
		t.Fatal(err)
	}

	typeId, ok := d.GetTypeId("vrpn_Tracker Velocity")
	if !ok {
		t.Fatal("expected AddHandlerForName to have registered the type")
	}
	d.Call(Message{Type: typeId})
	if fired != 1 {
		t.Fatalf("expected handler to fire once, got %d", fired)
	}
}

func TestHandlerSelfRemovesViaRemoveThisHandler(t *testing.T) {
	d := NewTypeDispatcher()
	typeId, _, _ := d.RegisterType("vrpn_Tracker Position")

	calls := 0
	d.AddTypedHandler(typeId, func(msg Message) (HandlerCode, error) {
		calls++
		return RemoveThisHandler, nil
	})

	d.Call(Message{Type: typeId})
	d.Call(Message{Type: typeId})
	d.Call(Message{Type: typeId})

	if calls != 1 {
		t.Fatalf("expected handler to fire exactly once before self-removing, got %d", calls)
	}
}

func TestCallCollectsHandlerErrorsWithoutStopping(t *testing.T) {
	d := NewTypeDispatcher()
	typeId, _, _ := d.RegisterType("vrpn_Tracker Position")

	secondRan := false
	d.AddTypedHandler(typeId, func(msg Message) (HandlerCode, error) {
		return ContinueProcessing, errors.New("boom")
	})
	d.AddTypedHandler(typeId, func(msg Message) (HandlerCode, error) {
		secondRan = true
		return ContinueProcessing, nil
	})

	d.Call(Message{Type: typeId})
	if !secondRan {
		t.Fatal("expected second handler to run even though the first returned an error")
	}
}

func TestGenericHandlerFiresForEveryType(t *testing.T) {
	d := NewTypeDispatcher()
	t1, _, _ := d.RegisterType("vrpn_Tracker Position")
	t2, _, _ := d.RegisterType("vrpn_Tracker Velocity")

	seen := map[vrpn.TypeId]int{}
	d.AddHandler(func(msg Message) (HandlerCode, error) {
		seen[msg.Type.Id]++
		return ContinueProcessing, nil
	})

	d.Call(Message{Type: t1})
	d.Call(Message{Type: t2})

	if seen[t1.Id] != 1 || seen[t2.Id] != 1 {
		t.Fatalf("expected generic handler to fire once per type, got %v", seen)
	}
}

func TestHandlesAreNeverReused(t *testing.T) {
	var c CallbackCollection
	h1, err := c.Add(func(msg Message) (HandlerCode, error) { return ContinueProcessing, nil })
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Remove(h1); err != nil {
		t.Fatal(err)
	}
	h2, err := c.Add(func(msg Message) (HandlerCode, error) { return ContinueProcessing, nil })
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Fatal("expected a fresh handle after removal, got a reused one")
	}
}
