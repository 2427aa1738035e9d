package persistence

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/petrijr/flowstate/pkg/api"
)

type samplePayload struct {
	Msg string
	N   int
}

func init() {
	gob.Register(samplePayload{})
}

// StoreSuite exercises the InstanceStore contract. Each backend runs it with
// its own factory; newStore must return an empty store.
type StoreSuite struct {
	suite.Suite
	newStore func() InstanceStore

	store InstanceStore
	ctx   context.Context
	base  time.Time
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
	s.base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) snapshot(id string, offset int) api.InstanceSnapshot {
	created := s.base.Add(time.Duration(offset) * time.Second)
	return api.InstanceSnapshot{
		ID:        id,
		Payload:   samplePayload{Msg: "hello " + id, N: offset},
		State:     api.StateCreated,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func (s *StoreSuite) record(op api.Operation, from, to api.State, offset int) api.TransitionRecord {
	return api.TransitionRecord{
		From:      from,
		To:        to,
		Operation: op,
		At:        s.base.Add(time.Minute + time.Duration(offset)*time.Second),
	}
}

func (s *StoreSuite) TestSaveAndGet() {
	snap := s.snapshot("wf-1", 0)
	s.Require().NoError(s.store.SaveInstance(s.ctx, snap))

	got, err := s.store.GetInstance(s.ctx, "wf-1")
	s.Require().NoError(err)

	s.Equal("wf-1", got.ID)
	s.Equal(api.StateCreated, got.State)
	s.Empty(got.History)
	s.True(got.CreatedAt.Equal(snap.CreatedAt), "created_at %v != %v", got.CreatedAt, snap.CreatedAt)
	s.Equal(samplePayload{Msg: "hello wf-1", N: 0}, got.Payload)
}

func (s *StoreSuite) TestSaveNilPayload() {
	snap := s.snapshot("wf-nil", 0)
	snap.Payload = nil
	s.Require().NoError(s.store.SaveInstance(s.ctx, snap))

	got, err := s.store.GetInstance(s.ctx, "wf-nil")
	s.Require().NoError(err)
	s.Nil(got.Payload)
}

func (s *StoreSuite) TestSaveDuplicate() {
	s.Require().NoError(s.store.SaveInstance(s.ctx, s.snapshot("wf-1", 0)))

	err := s.store.SaveInstance(s.ctx, s.snapshot("wf-1", 1))
	s.ErrorIs(err, ErrInstanceExists)
}

func (s *StoreSuite) TestSaveWithHistory() {
	snap := s.snapshot("wf-h", 0)
	snap.State = api.StateProcessing
	snap.History = []api.TransitionRecord{
		s.record(api.OpValidate, api.StateCreated, api.StateValidated, 0),
		s.record(api.OpStartProcessing, api.StateValidated, api.StateProcessing, 1),
	}
	s.Require().NoError(s.store.SaveInstance(s.ctx, snap))

	got, err := s.store.GetInstance(s.ctx, "wf-h")
	s.Require().NoError(err)
	s.Equal(api.StateProcessing, got.State)
	s.Require().Len(got.History, 2)
	s.Equal(api.OpStartProcessing, got.History[1].Operation)
}

func (s *StoreSuite) TestGetNotFound() {
	_, err := s.store.GetInstance(s.ctx, "missing")
	s.ErrorIs(err, ErrInstanceNotFound)
}

func (s *StoreSuite) TestAppendTransition() {
	s.Require().NoError(s.store.SaveInstance(s.ctx, s.snapshot("wf-1", 0)))

	steps := []api.TransitionRecord{
		s.record(api.OpValidate, api.StateCreated, api.StateValidated, 0),
		s.record(api.OpStartProcessing, api.StateValidated, api.StateProcessing, 1),
		s.record(api.OpComplete, api.StateProcessing, api.StateCompleted, 2),
	}
	for _, rec := range steps {
		s.Require().NoError(s.store.AppendTransition(s.ctx, "wf-1", rec))
	}

	got, err := s.store.GetInstance(s.ctx, "wf-1")
	s.Require().NoError(err)
	s.Equal(api.StateCompleted, got.State)
	s.Require().Len(got.History, 3)
	for i, rec := range steps {
		s.Equal(rec.From, got.History[i].From)
		s.Equal(rec.To, got.History[i].To)
		s.Equal(rec.Operation, got.History[i].Operation)
		s.True(rec.At.Equal(got.History[i].At), "record %d time %v != %v", i, got.History[i].At, rec.At)
	}
	s.True(got.UpdatedAt.Equal(steps[2].At))
}

func (s *StoreSuite) TestAppendTransitionConflict() {
	s.Require().NoError(s.store.SaveInstance(s.ctx, s.snapshot("wf-1", 0)))

	// Stored state is CREATED, record claims VALIDATED.
	err := s.store.AppendTransition(s.ctx, "wf-1",
		s.record(api.OpStartProcessing, api.StateValidated, api.StateProcessing, 0))
	s.ErrorIs(err, ErrStateConflict)

	got, err := s.store.GetInstance(s.ctx, "wf-1")
	s.Require().NoError(err)
	s.Equal(api.StateCreated, got.State)
	s.Empty(got.History)
}

func (s *StoreSuite) TestAppendTransitionNotFound() {
	err := s.store.AppendTransition(s.ctx, "missing",
		s.record(api.OpValidate, api.StateCreated, api.StateValidated, 0))
	s.ErrorIs(err, ErrInstanceNotFound)
}

func (s *StoreSuite) TestListInstances() {
	for i := 0; i < 4; i++ {
		s.Require().NoError(s.store.SaveInstance(s.ctx, s.snapshot(fmt.Sprintf("wf-%d", i), i)))
	}
	s.Require().NoError(s.store.AppendTransition(s.ctx, "wf-1",
		s.record(api.OpValidate, api.StateCreated, api.StateValidated, 0)))
	s.Require().NoError(s.store.AppendTransition(s.ctx, "wf-3",
		s.record(api.OpFail, api.StateCreated, api.StateFailed, 0)))

	all, err := s.store.ListInstances(s.ctx, InstanceFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	for i, snap := range all {
		s.Equal(fmt.Sprintf("wf-%d", i), snap.ID, "expected creation order")
	}
	s.Len(all[1].History, 1)

	created, err := s.store.ListInstances(s.ctx, InstanceFilter{State: api.StateCreated})
	s.Require().NoError(err)
	s.Len(created, 2)

	failed, err := s.store.ListInstances(s.ctx, InstanceFilter{State: api.StateFailed})
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal("wf-3", failed[0].ID)

	limited, err := s.store.ListInstances(s.ctx, InstanceFilter{Limit: 2})
	s.Require().NoError(err)
	s.Len(limited, 2)

	none, err := s.store.ListInstances(s.ctx, InstanceFilter{State: api.StateCompleted})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *StoreSuite) TestConcurrentAppendOnlyOneWins() {
	s.Require().NoError(s.store.SaveInstance(s.ctx, s.snapshot("wf-race", 0)))

	const racers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			err := s.store.AppendTransition(s.ctx, "wf-race",
				s.record(api.OpValidate, api.StateCreated, api.StateValidated, i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrStateConflict):
			default:
				others = append(others, err)
			}
		}(i)
	}
	wg.Wait()

	s.Empty(others)
	s.Equal(1, successes)

	got, err := s.store.GetInstance(s.ctx, "wf-race")
	s.Require().NoError(err)
	s.Len(got.History, 1)
}

func (s *StoreSuite) TestReturnedSnapshotsAreDetached() {
	s.Require().NoError(s.store.SaveInstance(s.ctx, s.snapshot("wf-1", 0)))
	s.Require().NoError(s.store.AppendTransition(s.ctx, "wf-1",
		s.record(api.OpValidate, api.StateCreated, api.StateValidated, 0)))

	got, err := s.store.GetInstance(s.ctx, "wf-1")
	s.Require().NoError(err)
	got.History[0].To = api.StateFailed
	got.State = api.StateFailed

	again, err := s.store.GetInstance(s.ctx, "wf-1")
	s.Require().NoError(err)
	s.Equal(api.StateValidated, again.State)
	s.Equal(api.StateValidated, again.History[0].To)
}

// Restoring what the store returns must always produce a valid instance.
func (s *StoreSuite) TestStoredHistoryRestores() {
	inst := api.Create("wf-r", samplePayload{Msg: "r"})
	s.Require().NoError(s.store.SaveInstance(s.ctx, inst.Snapshot()))

	for _, op := range []api.Operation{api.OpValidate, api.OpStartProcessing} {
		rec, err := inst.Apply(op)
		s.Require().NoError(err)
		s.Require().NoError(s.store.AppendTransition(s.ctx, "wf-r", rec))
	}

	snap, err := s.store.GetInstance(s.ctx, "wf-r")
	s.Require().NoError(err)

	restored, err := api.Restore(snap)
	s.Require().NoError(err)
	s.Equal(api.StateProcessing, restored.CurrentState())
	s.Equal(2, restored.HistoryLen())
}

// Readers racing a writer must always see a state that matches the end of
// the history they got with it.
func (s *StoreSuite) TestGetInstanceDuringTransitions() {
	const (
		instances = 20
		readers   = 4
	)
	ops := []api.Operation{api.OpValidate, api.OpStartProcessing, api.OpComplete}

	for i := 0; i < instances; i++ {
		inst := api.Create(fmt.Sprintf("wf-read-%d", i), nil)
		s.Require().NoError(s.store.SaveInstance(s.ctx, inst.Snapshot()))
	}

	done := make(chan struct{})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		readErr []error
	)
	wg.Add(readers)
	for r := 0; r < readers; r++ {
		go func(r int) {
			defer wg.Done()
			for n := 0; ; n++ {
				select {
				case <-done:
					return
				default:
				}
				id := fmt.Sprintf("wf-read-%d", (n+r)%instances)
				snap, err := s.store.GetInstance(s.ctx, id)
				if err == nil {
					_, err = api.Restore(snap)
				}
				if err != nil {
					mu.Lock()
					readErr = append(readErr, fmt.Errorf("%s: %w", id, err))
					mu.Unlock()
				}
			}
		}(r)
	}

	for i := 0; i < instances; i++ {
		inst, err := api.Restore(s.mustGet(fmt.Sprintf("wf-read-%d", i)))
		s.Require().NoError(err)
		for _, op := range ops {
			rec, err := inst.Apply(op)
			s.Require().NoError(err)
			s.Require().NoError(s.store.AppendTransition(s.ctx, inst.ID(), rec))
		}
	}
	close(done)
	wg.Wait()

	s.Empty(readErr)

	all, err := s.store.ListInstances(s.ctx, InstanceFilter{State: api.StateCompleted})
	s.Require().NoError(err)
	s.Len(all, instances)
}

func (s *StoreSuite) mustGet(id string) api.InstanceSnapshot {
	snap, err := s.store.GetInstance(s.ctx, id)
	s.Require().NoError(err)
	return snap
}

func (s *StoreSuite) TestConcurrentSaveOnlyOneWins() {
	const racers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			err := s.store.SaveInstance(s.ctx, s.snapshot("wf-dup", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInstanceExists):
			default:
				others = append(others, err)
			}
		}(i)
	}
	wg.Wait()

	s.Empty(others)
	s.Equal(1, successes)
}
