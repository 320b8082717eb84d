package streaming

import (
	"testing"
	"time"

	"github.com/shawkridge/athena-sub002/internal/models"
)

func TestPublishReachesSubscriber(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("task-1", 4)
	defer m.Unsubscribe("task-1", ch)

	m.Publish("task-1", Event{Type: EventTaskStarted, Message: "go"})

	select {
	case evt := <-ch:
		if evt.Type != EventTaskStarted {
			t.Fatalf("type = %s, want %s", evt.Type, EventTaskStarted)
		}
		if evt.Seq != 1 {
			t.Fatalf("seq = %d, want 1", evt.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("task-1", 1)
	defer m.Unsubscribe("task-1", ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			m.Publish("task-1", Event{Type: EventFindingsBatch})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestReplaySince(t *testing.T) {
	m := NewManager(16)
	for i := 0; i < 5; i++ {
		m.Publish("task-1", Event{Type: EventFindingsBatch})
	}

	events := m.ReplaySince("task-1", 2)
	if len(events) != 3 {
		t.Fatalf("replayed %d events, want 3", len(events))
	}
	if events[0].Seq != 3 {
		t.Fatalf("first replayed seq = %d, want 3", events[0].Seq)
	}
}

func TestReplayWrapsRing(t *testing.T) {
	m := NewManager(4)
	for i := 0; i < 10; i++ {
		m.Publish("task-1", Event{Type: EventFindingsBatch})
	}

	events := m.ReplaySince("task-1", 0)
	if len(events) != 4 {
		t.Fatalf("replayed %d events, want 4", len(events))
	}
	if events[0].Seq != 7 || events[3].Seq != 10 {
		t.Fatalf("replayed seqs %d..%d, want 7..10", events[0].Seq, events[3].Seq)
	}
}

func TestForgetDropsHistory(t *testing.T) {
	m := NewManager(16)
	m.Publish("task-1", Event{Type: EventTaskStarted})
	m.Forget("task-1")

	if events := m.ReplaySince("task-1", 0); len(events) != 0 {
		t.Fatalf("replayed %d events after forget, want 0", len(events))
	}
}

func TestCollectorFlushesAtBatchSize(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("task-1", 8)
	defer m.Unsubscribe("task-1", ch)

	c := NewCollector("task-1", 3, m, NewLiveAgentMonitor())
	for i := 0; i < 2; i++ {
		c.Add(models.RawFinding{Source: "github", Title: "t"})
	}
	select {
	case <-ch:
		t.Fatal("flushed before batch size reached")
	default:
	}

	c.Add(models.RawFinding{Source: "github", Title: "t"})
	evt := mustReceive(t, ch)
	update, ok := evt.Payload.(Update)
	if !ok {
		t.Fatalf("payload type %T, want Update", evt.Payload)
	}
	if len(update.NewFindings) != 3 || update.TotalSoFar != 3 {
		t.Fatalf("update = %d new / %d total, want 3/3", len(update.NewFindings), update.TotalSoFar)
	}
	if update.Completed {
		t.Fatal("batch update marked completed")
	}
}

func TestCollectorAgentDoneFlushesPartialBatch(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("task-1", 8)
	defer m.Unsubscribe("task-1", ch)

	c := NewCollector("task-1", 5, m, NewLiveAgentMonitor())
	c.Add(models.RawFinding{Source: "arxiv", Title: "t"})
	c.AgentDone()

	evt := mustReceive(t, ch)
	update := evt.Payload.(Update)
	if len(update.NewFindings) != 1 {
		t.Fatalf("flushed %d findings, want 1", len(update.NewFindings))
	}

	// An empty buffer produces no update.
	c.AgentDone()
	select {
	case <-ch:
		t.Fatal("empty AgentDone emitted an update")
	default:
	}
}

func TestCollectorFinalizeAlwaysEmits(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("task-1", 8)
	defer m.Unsubscribe("task-1", ch)

	c := NewCollector("task-1", 5, m, NewLiveAgentMonitor())
	c.Finalize()

	evt := mustReceive(t, ch)
	update := evt.Payload.(Update)
	if !update.Completed {
		t.Fatal("final update not marked completed")
	}
	if len(update.NewFindings) != 0 {
		t.Fatalf("final update carried %d findings, want 0", len(update.NewFindings))
	}
}

func TestMonitorSnapshotAndETA(t *testing.T) {
	mon := NewLiveAgentMonitor()
	now := time.Unix(1700000000, 0)
	mon.now = func() time.Time { return now }

	mon.AgentStarted("github")
	mon.AgentStarted("arxiv")
	now = now.Add(2 * time.Second)
	mon.AgentCompleted("github", 4)
	mon.AgentSkipped("reddit", "excluded by constraints")

	snap := mon.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d agents, want 3", len(snap))
	}
	if snap["github"].Status != models.AgentCompleted || snap["github"].FindingsCount != 4 {
		t.Fatalf("github progress = %+v", snap["github"])
	}
	if snap["arxiv"].Status != models.AgentRunning {
		t.Fatalf("arxiv status = %s, want running", snap["arxiv"].Status)
	}
	if snap["reddit"].Status != models.AgentSkipped || snap["reddit"].Error == "" {
		t.Fatalf("reddit progress = %+v", snap["reddit"])
	}

	if eta := mon.ETA(); eta != 2*time.Second {
		t.Fatalf("eta = %s, want 2s", eta)
	}
	if rate := mon.Rate(); rate != 2.0 {
		t.Fatalf("rate = %f findings/sec, want 2", rate)
	}

	now = now.Add(time.Second)
	mon.AgentCompleted("arxiv", 0)
	if eta := mon.ETA(); eta != 0 {
		t.Fatalf("eta with nothing running = %s, want 0", eta)
	}
}

func TestSinkObservesEveryPublish(t *testing.T) {
	m := NewManager(8)

	var seen []Event
	m.SetSink(func(evt Event) { seen = append(seen, evt) })

	m.Publish("task-1", Event{Type: EventTaskStarted})
	m.Publish("task-1", Event{Type: EventFindingsBatch})
	m.Publish("task-2", Event{Type: EventTaskStarted})

	if len(seen) != 3 {
		t.Fatalf("sink saw %d events, want 3", len(seen))
	}
	if seen[0].Seq != 1 || seen[1].Seq != 2 {
		t.Fatalf("sink events missing sequence numbers: %+v", seen[:2])
	}
	if seen[2].TaskID != "task-2" {
		t.Fatalf("sink event task = %q, want task-2", seen[2].TaskID)
	}
}

func mustReceive(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}
