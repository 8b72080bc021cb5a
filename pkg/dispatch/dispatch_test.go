package dispatch

import (
	"testing"
	"time"

	"github.com/Mindburn-Labs/uclse/pkg/jobstore"
	"github.com/Mindburn-Labs/uclse/pkg/queue"
	"github.com/stretchr/testify/require"
)

type staticResolver struct{ pool string }

func (r staticResolver) WorkerPoolID(string) (string, error) { return r.pool, nil }

func TestDispatchReturnsJobWithParentLinkage(t *testing.T) {
	jobs := jobstore.NewInMemoryJobStore()
	parent, err := jobs.Create("", "parent-code", "pool-1")
	require.NoError(t, err)

	d := NewDispatcher(NewInMemoryActionStore(), jobs, queue.NewBroker(), staticResolver{pool: "pool-1"})

	child, err := d.Dispatch(parent.ID, "submitter-key", "inner-func", map[string]interface{}{"x": 1})
	require.NoError(t, err)
	require.Equal(t, parent.ID, child.ParentJobID)
	require.Equal(t, "pool-1", child.WorkerPoolID)

	lease, err := d.Leases().Get(child.ID)
	require.NoError(t, err)
	require.Equal(t, LeasePending, lease.Status)
}

func TestDispatchPublishesOnAPICallTopic(t *testing.T) {
	jobs := jobstore.NewInMemoryJobStore()
	broker := queue.NewBroker()
	received := make(chan queue.Message, 1)
	broker.Subscribe(APICallTopic, func(m queue.Message) { received <- m })

	d := NewDispatcher(NewInMemoryActionStore(), jobs, broker, staticResolver{pool: ""})
	_, err := d.Dispatch("", "key", "func", nil)
	require.NoError(t, err)

	select {
	case msg := <-received:
		require.Equal(t, APICallTopic, msg.Topic)
		require.NotEmpty(t, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published action")
	}
}

func TestLeaseLifecycle(t *testing.T) {
	r := NewLeaseRegistry()
	r.Register("job-1")

	_, err := r.AtomicLease("job-1", "worker-a", 0)
	require.NoError(t, err)

	for i := 0; i < MaxAttempts-1; i++ {
		_, err = r.Fail("job-1")
		require.NoError(t, err)
		l, _ := r.Get("job-1")
		require.Equal(t, LeasePending, l.Status)
		_, err = r.AtomicLease("job-1", "worker-a", 0)
		require.NoError(t, err)
	}

	l, err := r.Fail("job-1")
	require.NoError(t, err)
	require.Equal(t, LeaseEscalated, l.Status)
}
