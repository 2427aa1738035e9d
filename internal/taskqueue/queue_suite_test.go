package taskqueue

import (
	"context"
	"encoding/gob"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/petrijr/flowstate/pkg/api"
)

// custom struct used as a payload in tests
type testPayload struct {
	A string
	B int
}

func init() {
	gob.Register(testPayload{})
}

// QueueSuite checks the Queue contract; every implementation runs it.
type QueueSuite struct {
	suite.Suite
	newQueue func() Queue

	q Queue
}

func (s *QueueSuite) SetupTest() {
	s.q = s.newQueue()
}

func (s *QueueSuite) TestEnqueueDequeueFIFO() {
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		s.Require().NoError(s.q.Enqueue(ctx, Task{
			ID:         fmt.Sprintf("t-%d", i),
			Type:       TaskTypeTransition,
			InstanceID: fmt.Sprintf("wf-%d", i),
			Operation:  api.OpValidate,
		}))
	}
	s.Equal(3, s.q.Len())

	for i := 1; i <= 3; i++ {
		got, err := s.q.Dequeue(ctx)
		s.Require().NoError(err)
		s.Equal(fmt.Sprintf("t-%d", i), got.ID)
		s.Equal(fmt.Sprintf("wf-%d", i), got.InstanceID)
		s.Equal(api.OpValidate, got.Operation)
	}
	s.Equal(0, s.q.Len())
}

func (s *QueueSuite) TestCreateTaskKeepsPayload() {
	ctx := context.Background()

	s.Require().NoError(s.q.Enqueue(ctx, Task{
		ID:         "t-1",
		Type:       TaskTypeCreate,
		InstanceID: "wf-1",
		Payload:    testPayload{A: "foo", B: 42},
		EnqueuedAt: time.Now(),
	}))

	got, err := s.q.Dequeue(ctx)
	s.Require().NoError(err)
	s.Equal(TaskTypeCreate, got.Type)
	s.Equal(testPayload{A: "foo", B: 42}, got.Payload)
	s.False(got.EnqueuedAt.IsZero())
}

func (s *QueueSuite) TestDequeueBlocksUntilTaskArrives() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resultCh := make(chan *Task, 1)
	errCh := make(chan error, 1)
	go func() {
		tk, err := s.q.Dequeue(ctx)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- tk
	}()

	time.Sleep(50 * time.Millisecond)
	s.Require().NoError(s.q.Enqueue(context.Background(), Task{
		ID:         "late",
		Type:       TaskTypeTransition,
		InstanceID: "wf-late",
		Operation:  api.OpFail,
	}))

	select {
	case err := <-errCh:
		s.FailNow("Dequeue returned error", "%v", err)
	case tk := <-resultCh:
		s.Equal("late", tk.ID)
		s.Equal(api.OpFail, tk.Operation)
	case <-ctx.Done():
		s.FailNow("timeout waiting for Dequeue to return")
	}
}

func (s *QueueSuite) TestDequeueHonorsContextCancellation() {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.q.Dequeue(ctx)
	s.Error(err)
}

func (s *QueueSuite) TestConcurrentDequeueNoDuplicates() {
	ctx := context.Background()

	const n = 20
	for i := 0; i < n; i++ {
		s.Require().NoError(s.q.Enqueue(ctx, Task{ID: fmt.Sprintf("t-%d", i), Type: TaskTypeTransition}))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	const workers = 4
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				dctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
				tk, err := s.q.Dequeue(dctx)
				cancel()
				if err != nil {
					return
				}
				mu.Lock()
				seen[tk.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Len(seen, n)
	for id, count := range seen {
		s.Equal(1, count, "task %s delivered %d times", id, count)
	}
}
