package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/actiongate/internal/config"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

const testTimeout = 2 * time.Second

func setupBus(t *testing.T, capacity, buffer int) *Bus {
	t.Helper()
	b := New(config.BusConfig{HistoryCapacity: capacity, SubscriberBuffer: buffer}, zaptest.NewLogger(t))
	t.Cleanup(b.Close)
	return b
}

func mustSubscribe(t *testing.T, b *Bus, id string, f Filter) *Subscription {
	t.Helper()
	sub, err := b.Subscribe(id, f)
	require.NoError(t, err)
	return sub
}

func TestPublish_AssignsIDAndTimestamp(t *testing.T) {
	b := setupBus(t, 10, 10)
	sub := mustSubscribe(t, b, "obs", Filter{})

	sent, err := b.Publish(Message{SenderRole: RolePlanner, SenderID: "p1", Type: TypePlan, TaskID: "t1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sent.ID)
	assert.False(t, sent.Timestamp.IsZero())

	got, err := sub.Receive(context.Background(), testTimeout)
	require.NoError(t, err)
	if diff := cmp.Diff(sent, got); diff != "" {
		t.Errorf("delivered message differs (-sent +got):\n%s", diff)
	}

	_, err = b.Publish(Message{SenderRole: RolePlanner})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestPublish_FilterSelectsOnlyMatchingSubscribers(t *testing.T) {
	b := setupBus(t, 100, 10)

	const nonMatching = 8
	var others []*Subscription
	for i := 0; i < nonMatching; i++ {
		others = append(others, mustSubscribe(t, b, fmt.Sprintf("other-%d", i), Filter{TaskID: fmt.Sprintf("task-%d", i)}))
	}
	target := mustSubscribe(t, b, "target", Filter{TaskID: "wanted"})

	_, err := b.Publish(Message{Type: TypeStatusUpdate, TaskID: "wanted"})
	require.NoError(t, err)

	assert.Equal(t, 1, target.Len())
	for _, s := range others {
		assert.Zero(t, s.Len())
	}
	st := b.Statistics()
	assert.Equal(t, uint64(1), st.Sent)
	assert.Equal(t, uint64(1), st.Received)
	assert.Equal(t, nonMatching+1, st.SubscriberCount)
}

func TestPublish_FanOutDeliversToEveryMatch(t *testing.T) {
	b := setupBus(t, 10, 10)
	a := mustSubscribe(t, b, "a", Filter{Types: []MessageType{TypeThought}})
	c := mustSubscribe(t, b, "c", Filter{})

	_, err := b.Publish(Message{Type: TypeThought})
	require.NoError(t, err)

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, uint64(1), b.Statistics().Sent)
	assert.Equal(t, uint64(2), b.Statistics().Received)
}

func TestRoleAddressing(t *testing.T) {
	b := setupBus(t, 10, 10)
	validator := mustSubscribe(t, b, "v1", Filter{Role: RoleValidator})
	executor := mustSubscribe(t, b, "e1", Filter{Role: RoleExecutor})
	executor2 := mustSubscribe(t, b, "e2", Filter{Role: RoleExecutor})

	_, err := b.Publish(Message{Type: TypePlan, RecipientRole: RoleValidator})
	require.NoError(t, err)
	_, err = b.Broadcast(Message{Type: TypeConsensusRequest, RecipientRole: RoleExecutor, RecipientID: "e1"})
	require.NoError(t, err)
	_, err = b.Publish(Message{Type: TypeActionApproval, RecipientRole: RoleExecutor, RecipientID: "e2"})
	require.NoError(t, err)

	assert.Equal(t, 2, validator.Len(), "validator gets its PLAN and the broadcast")
	assert.Equal(t, 1, executor.Len(), "e1 only gets the broadcast")
	assert.Equal(t, 2, executor2.Len())

	first, _ := validator.TryReceive()
	second, _ := validator.TryReceive()
	assert.Equal(t, TypePlan, first.Type)
	assert.Equal(t, TypeConsensusRequest, second.Type)
	assert.True(t, second.IsBroadcast())
}

func TestPublish_NeverBlocksOnFullQueue(t *testing.T) {
	b := setupBus(t, 10, 1)
	slow := mustSubscribe(t, b, "slow", Filter{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_, _ = b.Publish(Message{Type: TypeThought})
		}
	}()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("Publish blocked on a full subscriber queue")
	}

	assert.Equal(t, 1, slow.Len())
	assert.Equal(t, uint64(4), slow.Dropped())
	st := b.Statistics()
	assert.Equal(t, uint64(5), st.Sent)
	assert.Equal(t, uint64(1), st.Received)
	assert.Equal(t, uint64(4), st.Dropped)
	require.Len(t, st.Subscribers, 1)
	assert.Equal(t, 1, st.Subscribers[0].Pending)
}

func TestHistory_BoundedAndOrdered(t *testing.T) {
	b := setupBus(t, 3, 10)
	for i := 0; i < 5; i++ {
		_, err := b.Publish(Message{Type: TypeStatusUpdate, StepID: fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
	}

	var steps []string
	for _, m := range b.History(Filter{}) {
		steps = append(steps, m.StepID)
	}
	assert.Equal(t, []string{"s2", "s3", "s4"}, steps)

	st := b.Statistics()
	assert.Equal(t, 3, st.HistorySize)
	assert.Equal(t, 3, st.HistoryCapacity)
	assert.Equal(t, uint64(5), st.Sent)

	b.ClearHistory()
	assert.Empty(t, b.History(Filter{}))
	assert.Equal(t, uint64(5), b.Statistics().Sent, "clearing history keeps counters")
}

func TestHistory_Filters(t *testing.T) {
	b := setupBus(t, 100, 10)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "1", Type: TypePlan, SenderRole: RolePlanner, TaskID: "t", StepID: "a", Priority: PriorityNormal, Timestamp: base},
		{ID: "2", Type: TypeThought, SenderRole: RolePlanner, TaskID: "t", StepID: "a", Priority: PriorityLow, Timestamp: base.Add(time.Second)},
		{ID: "3", Type: TypeValidationResult, SenderRole: RoleValidator, RecipientRole: RolePlanner, TaskID: "t", StepID: "b", Priority: PriorityHigh, Timestamp: base.Add(2 * time.Second)},
		{ID: "4", Type: TypeError, SenderRole: RoleExecutor, TaskID: "u", StepID: "a", Priority: PriorityCritical, Timestamp: base.Add(3 * time.Second)},
	}
	for _, m := range msgs {
		_, err := b.Publish(m)
		require.NoError(t, err)
	}

	ids := func(f Filter) []string {
		var out []string
		for _, m := range b.History(f) {
			out = append(out, m.ID)
		}
		return out
	}

	assert.Equal(t, []string{"1", "2"}, ids(Filter{SenderRole: RolePlanner}))
	assert.Equal(t, []string{"1", "2", "4"}, ids(Filter{StepID: "a"}))
	assert.Equal(t, []string{"3", "4"}, ids(Filter{MinPriority: PriorityHigh}))
	assert.Equal(t, []string{"2", "3"}, ids(Filter{Since: base.Add(time.Second), Until: base.Add(2 * time.Second)}))
	assert.Equal(t, []string{"1", "2", "3"}, ids(Filter{TaskID: "t"}))
	assert.Equal(t, []string{"1", "3"}, ids(Filter{Types: []MessageType{TypePlan, TypeValidationResult}}))
	assert.Equal(t, []string{"1", "2", "4"}, ids(Filter{Role: RoleExecutor}), "broadcasts match any role")
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(Filter{Role: RolePlanner}))
}

func TestSubscription_ReceiveOutcomes(t *testing.T) {
	b := setupBus(t, 10, 10)
	sub := mustSubscribe(t, b, "s", Filter{})

	_, err := sub.Receive(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sub.Receive(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = b.Publish(Message{Type: TypeThought})
	require.NoError(t, err)
	assert.Equal(t, 1, sub.Drain())

	sub.Close()
	sub.Close()
	_, err = sub.Receive(context.Background(), testTimeout)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, b.Statistics().SubscriberCount)

	_, err = b.Publish(Message{Type: TypeThought})
	assert.NoError(t, err, "publishing after an unsubscribe is fine")
}

func TestClose(t *testing.T) {
	b := New(config.BusConfig{}, zaptest.NewLogger(t))
	sub := mustSubscribe(t, b, "s", Filter{})

	b.Close()
	b.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	_, err := b.Publish(Message{Type: TypeThought})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.Subscribe("late", Filter{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, defaultHistoryCapacity, b.Statistics().HistoryCapacity)
}

// Each subscriber must see every publisher's messages in that publisher's order.
func TestOrdering_PerPublisherFIFO(t *testing.T) {
	defer goleak.VerifyNone(t)

	const publishers, perPublisher = 4, 200
	b := New(config.BusConfig{HistoryCapacity: 50, SubscriberBuffer: publishers * perPublisher}, zaptest.NewLogger(t))
	defer b.Close()
	subs := []*Subscription{
		mustSubscribe(t, b, "x", Filter{}),
		mustSubscribe(t, b, "y", Filter{Types: []MessageType{TypeThought}}),
	}

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				_, err := b.Publish(Message{Type: TypeThought, SenderID: fmt.Sprintf("pub-%d", p), Payload: i})
				assert.NoError(t, err)
			}
		}(p)
	}

	// Concurrent readers must only ever observe complete messages.
	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
				for _, m := range b.History(Filter{}) {
					assert.Equal(t, TypeThought, m.Type)
				}
				_ = b.Statistics()
			}
		}
	}()
	wg.Wait()
	close(stop)
	readers.Wait()

	for _, sub := range subs {
		require.Equal(t, publishers*perPublisher, sub.Len())
		next := make(map[string]int)
		for sub.Len() > 0 {
			m, ok := sub.TryReceive()
			require.True(t, ok)
			assert.Equal(t, next[m.SenderID], m.Payload, "out of order for %s", m.SenderID)
			next[m.SenderID]++
		}
	}
	assert.LessOrEqual(t, b.Statistics().HistorySize, 50)
}

func TestDefaultBusLifecycle(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	_, err := Instance()
	assert.ErrorIs(t, err, ErrNotInitialized)

	first := Init(config.BusConfig{HistoryCapacity: 5, SubscriberBuffer: 5}, zaptest.NewLogger(t))
	second := Init(config.BusConfig{HistoryCapacity: 99}, zaptest.NewLogger(t))
	assert.Same(t, first, second)

	got, err := Instance()
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, 5, got.Statistics().HistoryCapacity)

	ResetForTest()
	_, err = Instance()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = first.Publish(Message{Type: TypeThought})
	assert.ErrorIs(t, err, ErrClosed, "reset closes the old bus")
}

func TestHistory_RoundTripPreservesEveryField(t *testing.T) {
	b := setupBus(t, 10, 10)
	in := Message{
		ID:               "msg-42",
		SenderRole:       RolePlanner,
		SenderID:         "planner-task-7-abcd",
		RecipientRole:    RoleValidator,
		RecipientID:      "validator-task-7-ef01",
		Type:             TypePlan,
		Payload:          map[string]interface{}{"confidence": 0.9, "steps": []string{"click(submit)"}},
		TaskID:           "task-7",
		StepID:           "step-3",
		Priority:         PriorityHigh,
		Timestamp:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		InResponseTo:     "msg-41",
		RequiresResponse: true,
	}
	sent, err := b.Publish(in)
	require.NoError(t, err)
	if diff := cmp.Diff(in, sent); diff != "" {
		t.Errorf("publish altered a fully populated message (-in +sent):\n%s", diff)
	}

	hist := b.History(Filter{Role: RoleValidator, SenderRole: RolePlanner, Types: []MessageType{TypePlan}, TaskID: "task-7", StepID: "step-3"})
	require.Len(t, hist, 1)
	if diff := cmp.Diff(in, hist[0], cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("history entry differs (-in +history):\n%s", diff)
	}
}
