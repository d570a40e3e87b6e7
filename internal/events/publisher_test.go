package events

import "testing"

func TestPublish_ReachesTaskSubscriber(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	ch := p.Subscribe("TASK-001")
	p.Publish(New(TypePhase, "TASK-001", PhaseUpdate{Phase: "implement", Status: "started"}))

	ev := <-ch
	if ev.Type != TypePhase || ev.TaskID != "TASK-001" {
		t.Errorf("event = %+v", ev)
	}
	data, ok := ev.Data.(PhaseUpdate)
	if !ok || data.Phase != "implement" {
		t.Errorf("data = %+v", ev.Data)
	}
}

func TestPublish_DoesNotCrossTasks(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	other := p.Subscribe("TASK-002")
	p.Publish(New(TypeState, "TASK-001", nil))

	select {
	case ev := <-other:
		t.Errorf("unexpected event for other task: %+v", ev)
	default:
	}
}

func TestPublish_GlobalSubscriberSeesAll(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	global := p.Subscribe(GlobalTaskID)
	p.Publish(New(TypeComplete, "TASK-001", nil))
	p.Publish(New(TypeComplete, "TASK-002", nil))

	first := <-global
	second := <-global
	if first.TaskID != "TASK-001" || second.TaskID != "TASK-002" {
		t.Errorf("events = %s, %s", first.TaskID, second.TaskID)
	}
}

func TestPublish_FullBufferDoesNotBlock(t *testing.T) {
	p := NewMemoryPublisher(WithBufferSize(1))
	defer p.Close()

	p.Subscribe("TASK-001")
	// Two publishes against a buffer of one: the second must be dropped,
	// not deadlock the publisher.
	p.Publish(New(TypeState, "TASK-001", nil))
	p.Publish(New(TypeState, "TASK-001", nil))
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	ch := p.Subscribe("TASK-001")
	p.Unsubscribe("TASK-001", ch)

	if _, open := <-ch; open {
		t.Error("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe is a no-op.
	p.Publish(New(TypeState, "TASK-001", nil))
}

func TestClose_DrainsSubscribers(t *testing.T) {
	p := NewMemoryPublisher()
	ch := p.Subscribe("TASK-001")
	p.Close()

	if _, open := <-ch; open {
		t.Error("channel should be closed after Close")
	}

	// Subscribing after close yields an already-closed channel.
	late := p.Subscribe("TASK-001")
	if _, open := <-late; open {
		t.Error("post-close subscription should be closed")
	}

	// Double close is safe.
	p.Close()
}
