package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/flowstate/internal/persistence"
	"github.com/petrijr/flowstate/pkg/api"
)

// DefaultMaxConflictRetries is how many times a transition that lost a race
// is re-evaluated against the fresh state before giving up.
const DefaultMaxConflictRetries = 3

// engineImpl applies transitions to instances kept in an InstanceStore.
//
// Every transition is a load, validate and compare-and-set cycle. The store
// only accepts a record whose From state is still the stored state, so two
// racing callers can never both move an instance out of the same state.
type engineImpl struct {
	store      persistence.InstanceStore
	table      *api.TransitionTable
	observer   api.Observer
	now        func() time.Time
	newID      func() string
	maxRetries int
}

// Config describes how to construct an engine.
type Config struct {
	Store    persistence.InstanceStore
	Table    *api.TransitionTable
	Observer api.Observer
	Clock    func() time.Time

	// IDGenerator produces IDs for instances created with an empty ID.
	IDGenerator func() string

	// MaxConflictRetries bounds re-evaluation after a lost race. Zero means
	// DefaultMaxConflictRetries, a negative value disables retries.
	MaxConflictRetries int
}

// Option adjusts a Config before the engine is built.
type Option func(*Config)

// WithObserver sets the observer notified about instance events.
func WithObserver(obs api.Observer) Option {
	return func(c *Config) { c.Observer = obs }
}

// WithTransitionTable makes the engine validate against t instead of the
// default workflow table.
func WithTransitionTable(t *api.TransitionTable) Option {
	return func(c *Config) { c.Table = t }
}

// WithClock sets the clock used for creation and transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Clock = now }
}

// WithIDGenerator sets the generator used when Create is called with an
// empty ID.
func WithIDGenerator(gen func() string) Option {
	return func(c *Config) { c.IDGenerator = gen }
}

// WithMaxConflictRetries sets Config.MaxConflictRetries.
func WithMaxConflictRetries(n int) Option {
	return func(c *Config) { c.MaxConflictRetries = n }
}

func NewInMemoryEngine(opts ...Option) api.Engine {
	return NewEngine(persistence.NewInMemoryStore(), opts...)
}

func NewSQLiteEngine(db *sql.DB, opts ...Option) (api.Engine, error) {
	store, err := persistence.NewSQLiteInstanceStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(store, opts...), nil
}

func NewPostgresEngine(db *sql.DB, opts ...Option) (api.Engine, error) {
	store, err := persistence.NewPostgresInstanceStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(store, opts...), nil
}

// NewRedisEngine creates an engine that keeps instances in Redis under the
// "flowstate:" key prefix.
func NewRedisEngine(client *redis.Client, opts ...Option) api.Engine {
	return NewEngine(persistence.NewRedisInstanceStore(client, "flowstate:"), opts...)
}

// NewMongoEngine creates an engine that keeps instances in the
// flowstate.instances collection.
func NewMongoEngine(client *mongo.Client, opts ...Option) api.Engine {
	return NewEngine(persistence.NewMongoInstanceStore(client, "", ""), opts...)
}

// NewEngine creates an engine on top of an arbitrary InstanceStore.
func NewEngine(store persistence.InstanceStore, opts ...Option) api.Engine {
	cfg := Config{Store: store}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewEngineWithConfig(cfg)
}

// NewEngineWithConfig creates a new Engine using the given configuration.
// A nil Store falls back to an in-memory store.
func NewEngineWithConfig(cfg Config) api.Engine {
	e := &engineImpl{
		store:      cfg.Store,
		table:      cfg.Table,
		observer:   cfg.Observer,
		now:        cfg.Clock,
		newID:      cfg.IDGenerator,
		maxRetries: cfg.MaxConflictRetries,
	}
	if e.store == nil {
		e.store = persistence.NewInMemoryStore()
	}
	if e.table == nil {
		e.table = api.DefaultTransitionTable()
	}
	if e.observer == nil {
		e.observer = api.NoopObserver{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	switch {
	case e.maxRetries == 0:
		e.maxRetries = DefaultMaxConflictRetries
	case e.maxRetries < 0:
		e.maxRetries = 0
	}
	return e
}

func (e *engineImpl) Table() *api.TransitionTable {
	return e.table
}

func (e *engineImpl) instanceOptions() []api.InstanceOption {
	return []api.InstanceOption{
		api.WithTransitionTable(e.table),
		api.WithClock(e.now),
	}
}

func (e *engineImpl) Create(ctx context.Context, id string, payload any) (*api.WorkflowInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		id = e.newID()
	}

	inst := api.Create(id, payload, e.instanceOptions()...)
	if err := e.store.SaveInstance(ctx, inst.Snapshot()); err != nil {
		if errors.Is(err, persistence.ErrInstanceExists) {
			return nil, fmt.Errorf("%w: %s", api.ErrInstanceExists, id)
		}
		return nil, err
	}

	e.observer.OnInstanceCreated(ctx, inst)
	return inst, nil
}

// load reads an instance from the store and rebuilds it against the
// engine's table.
func (e *engineImpl) load(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	snap, err := e.store.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
		}
		return nil, err
	}
	return api.Restore(snap, e.instanceOptions()...)
}

func (e *engineImpl) Transition(ctx context.Context, id string, op api.Operation) (*api.WorkflowInstance, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		inst, err := e.load(ctx, id)
		if err != nil {
			return nil, err
		}

		rec, err := inst.Apply(op)
		if err != nil {
			e.observer.OnTransitionRejected(ctx, inst, op, err)
			return nil, err
		}

		err = e.store.AppendTransition(ctx, id, rec)
		switch {
		case err == nil:
			e.observer.OnTransition(ctx, inst, rec)
			return inst, nil
		case errors.Is(err, persistence.ErrStateConflict):
			if attempt >= e.maxRetries {
				return nil, fmt.Errorf("%w: %s: %s lost %d races",
					api.ErrConcurrentModification, id, op, attempt+1)
			}
			// Someone else moved the instance; judge op against the new state.
		case errors.Is(err, persistence.ErrInstanceNotFound):
			return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
		default:
			return nil, err
		}
	}
}

func (e *engineImpl) Validate(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	return e.Transition(ctx, id, api.OpValidate)
}

func (e *engineImpl) StartProcessing(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	return e.Transition(ctx, id, api.OpStartProcessing)
}

func (e *engineImpl) Complete(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	return e.Transition(ctx, id, api.OpComplete)
}

func (e *engineImpl) Fail(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	return e.Transition(ctx, id, api.OpFail)
}

func (e *engineImpl) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.load(ctx, id)
}

func (e *engineImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.WorkflowInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snaps, err := e.store.ListInstances(ctx, persistence.InstanceFilter{
		State: opts.State,
		Limit: opts.Limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*api.WorkflowInstance, 0, len(snaps))
	for _, snap := range snaps {
		inst, err := api.Restore(snap, e.instanceOptions()...)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (e *engineImpl) History(ctx context.Context, id string) ([]api.TransitionRecord, error) {
	inst, err := e.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	return slices.Collect(inst.History()), nil
}
