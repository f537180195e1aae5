package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(nil, nil)

	ch := bus.Subscribe("agent-1", []Type{AgentStatusChanged})

	event := New(AgentStatusChanged, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{
		"status": "ONLINE",
	})
	bus.Publish(event)

	select {
	case received := <-ch:
		if received.ID != event.ID {
			t.Errorf("Expected event ID %s, got %s", event.ID, received.ID)
		}
		if received.Type != AgentStatusChanged {
			t.Errorf("Expected event type %s, got %s", AgentStatusChanged, received.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Did not receive event within timeout")
	}

	bus.Unsubscribe("agent-1", ch)
}

func TestBus_FilterByType(t *testing.T) {
	bus := NewBus(nil, nil)

	ch := bus.Subscribe("agent-1", []Type{TaskCreated})

	taskEvent := New(TaskCreated, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{
		"task_id": "task-1",
	})
	bus.Publish(taskEvent)

	select {
	case received := <-ch:
		if received.Type != TaskCreated {
			t.Errorf("Expected event type %s, got %s", TaskCreated, received.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Did not receive task event")
	}

	statusEvent := New(AgentStatusChanged, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{
		"status": "OFFLINE",
	})
	bus.Publish(statusEvent)

	select {
	case received := <-ch:
		t.Errorf("Should not have received event type %s", received.Type)
	case <-time.After(100 * time.Millisecond):
		// expected timeout
	}

	bus.Unsubscribe("agent-1", ch)
}

func TestBus_BroadcastAll(t *testing.T) {
	bus := NewBus(nil, nil)

	ch1 := bus.Subscribe("agent-1", []Type{TaskCreated})
	ch2 := bus.Subscribe("agent-2", []Type{TaskCreated})
	ch3 := bus.Subscribe("agent-3", []Type{TaskCreated})

	event := New(TaskCreated, "orchestrator", "all", PriorityNormal, map[string]interface{}{
		"broadcast": true,
	})
	bus.Publish(event)

	agents := []struct {
		name string
		ch   <-chan Event
	}{
		{"agent-1", ch1},
		{"agent-2", ch2},
		{"agent-3", ch3},
	}

	for _, agent := range agents {
		select {
		case received := <-agent.ch:
			if received.ID != event.ID {
				t.Errorf("%s: Expected event ID %s, got %s", agent.name, event.ID, received.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("%s: Did not receive broadcast event", agent.name)
		}
	}

	bus.Unsubscribe("agent-1", ch1)
	bus.Unsubscribe("agent-2", ch2)
	bus.Unsubscribe("agent-3", ch3)
}

func TestBus_AllSubscriber(t *testing.T) {
	bus := NewBus(nil, nil)

	allCh := bus.Subscribe("all", []Type{TaskCreated})
	agent1Ch := bus.Subscribe("agent-1", []Type{TaskCreated})

	event := New(TaskCreated, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{
		"task_id": "task-1",
	})
	bus.Publish(event)

	select {
	case received := <-agent1Ch:
		if received.ID != event.ID {
			t.Errorf("agent-1: Expected event ID %s, got %s", event.ID, received.ID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("agent-1 did not receive event")
	}

	select {
	case received := <-allCh:
		if received.ID != event.ID {
			t.Errorf("all subscriber: Expected event ID %s, got %s", event.ID, received.ID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("all subscriber did not receive event")
	}

	bus.Unsubscribe("all", allCh)
	bus.Unsubscribe("agent-1", agent1Ch)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil, nil)

	ch := bus.Subscribe("agent-1", []Type{TaskCreated})

	event1 := New(TaskCreated, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{"seq": 1})
	bus.Publish(event1)

	select {
	case <-ch:
		// expected
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Did not receive first event")
	}

	bus.Unsubscribe("agent-1", ch)

	event2 := New(TaskCreated, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{"seq": 2})
	bus.Publish(event2)

	select {
	case event, ok := <-ch:
		if ok {
			t.Errorf("Should not have received event after unsubscribe: %+v", event)
		}
	case <-time.After(100 * time.Millisecond):
		// also acceptable
	}
}

func TestBus_MultipleSubscriptionsSameTarget(t *testing.T) {
	bus := NewBus(nil, nil)

	ch1 := bus.Subscribe("agent-1", []Type{TaskCreated})
	ch2 := bus.Subscribe("agent-1", []Type{TaskCreated})

	event := New(TaskCreated, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{})
	bus.Publish(event)

	select {
	case <-ch1:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("ch1 did not receive event")
	}

	select {
	case <-ch2:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("ch2 did not receive event")
	}

	bus.Unsubscribe("agent-1", ch1)
	bus.Unsubscribe("agent-1", ch2)
}

func TestBus_NoTypeFilter(t *testing.T) {
	bus := NewBus(nil, nil)

	ch := bus.Subscribe("agent-1", nil)

	bus.Publish(New(TaskCreated, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{}))
	bus.Publish(New(AgentStatusChanged, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{}))
	bus.Publish(New(ProposalSubmitted, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{}))

	receivedTypes := make(map[Type]bool)
	for i := 0; i < 3; i++ {
		select {
		case event := <-ch:
			receivedTypes[event.Type] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatal("Did not receive all events")
		}
	}

	if !receivedTypes[TaskCreated] {
		t.Error("Did not receive task created event")
	}
	if !receivedTypes[AgentStatusChanged] {
		t.Error("Did not receive agent status changed event")
	}
	if !receivedTypes[ProposalSubmitted] {
		t.Error("Did not receive proposal submitted event")
	}

	bus.Unsubscribe("agent-1", ch)
}

func TestBus_FullChannelNonBlocking(t *testing.T) {
	bus := NewBus(nil, nil)

	ch := bus.Subscribe("agent-1", []Type{TaskCreated})

	for i := 0; i < 100; i++ {
		bus.Publish(New(TaskCreated, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{"index": i}))
	}

	done := make(chan bool)
	go func() {
		bus.Publish(New(TaskCreated, "orchestrator", "agent-1", PriorityNormal, map[string]interface{}{"index": 100}))
		done <- true
	}()

	select {
	case <-done:
		// expected — publish should not block
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked on full channel")
	}

	bus.Unsubscribe("agent-1", ch)
}
