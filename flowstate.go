package flowstate

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/flowstate/internal/engine"
	"github.com/petrijr/flowstate/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine                 = api.Engine
	WorkflowInstance       = api.WorkflowInstance
	InstanceSnapshot       = api.InstanceSnapshot
	InstanceOption         = api.InstanceOption
	InstanceListOptions    = api.InstanceListOptions
	State                  = api.State
	Operation              = api.Operation
	TransitionRecord       = api.TransitionRecord
	TransitionTable        = api.TransitionTable
	Edge                   = api.Edge
	InvalidTransitionError = api.InvalidTransitionError
	Observer               = api.Observer
	LoggingObserver        = api.LoggingObserver
	BasicMetrics           = api.BasicMetrics
	BasicMetricsSnapshot   = api.BasicMetricsSnapshot
	CompositeObserver      = api.CompositeObserver
	NoopObserver           = api.NoopObserver
)

// Re-export states and operations of the default table.

const (
	StateCreated    = api.StateCreated
	StateValidated  = api.StateValidated
	StateProcessing = api.StateProcessing
	StateCompleted  = api.StateCompleted
	StateFailed     = api.StateFailed

	OpValidate        = api.OpValidate
	OpStartProcessing = api.OpStartProcessing
	OpComplete        = api.OpComplete
	OpFail            = api.OpFail
)

var (
	ErrInvalidTransition      = api.ErrInvalidTransition
	ErrCorruptHistory         = api.ErrCorruptHistory
	ErrInvalidTable           = api.ErrInvalidTable
	ErrInstanceNotFound       = api.ErrInstanceNotFound
	ErrInstanceExists         = api.ErrInstanceExists
	ErrConcurrentModification = api.ErrConcurrentModification
)

// Re-export standalone instance, table and observer helpers.

var (
	Create                 = api.Create
	WithInstanceTable      = api.WithTransitionTable
	WithInstanceClock      = api.WithClock
	Restore                = api.Restore
	DefaultTransitionTable = api.DefaultTransitionTable
	NewTransitionTable     = api.NewTransitionTable
	ParseTransitionTable   = api.ParseTransitionTable
	LoadTransitionTable    = api.LoadTransitionTable

	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Option configures an Engine.
type Option = engine.Option

var (
	WithObserver           = engine.WithObserver
	WithTransitionTable    = engine.WithTransitionTable
	WithClock              = engine.WithClock
	WithIDGenerator        = engine.WithIDGenerator
	WithMaxConflictRetries = engine.WithMaxConflictRetries
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine(opts ...Option) Engine {
	return engine.NewInMemoryEngine(opts...)
}

// NewSQLiteEngine returns an Engine that persists instances in a SQLite
// database.
func NewSQLiteEngine(db *sql.DB, opts ...Option) (Engine, error) {
	return engine.NewSQLiteEngine(db, opts...)
}

// NewPostgresEngine returns an Engine that persists instances in PostgreSQL.
func NewPostgresEngine(db *sql.DB, opts ...Option) (Engine, error) {
	return engine.NewPostgresEngine(db, opts...)
}

// NewRedisEngine returns an Engine that persists instances in Redis.
func NewRedisEngine(client *redis.Client, opts ...Option) Engine {
	return engine.NewRedisEngine(client, opts...)
}

// NewMongoEngine returns an Engine that persists instances in MongoDB.
func NewMongoEngine(client *mongo.Client, opts ...Option) Engine {
	return engine.NewMongoEngine(client, opts...)
}

// Convenience helpers that just forward to the underlying Engine.

// Transition applies op to the instance with the given ID.
func Transition(ctx context.Context, eng Engine, id string, op Operation) (*WorkflowInstance, error) {
	return eng.Transition(ctx, id, op)
}

// GetInstance fetches an instance by ID.
func GetInstance(ctx context.Context, eng Engine, id string) (*WorkflowInstance, error) {
	return eng.GetInstance(ctx, id)
}

// ListInstances lists workflow instances according to the given options.
func ListInstances(ctx context.Context, eng Engine, opts InstanceListOptions) ([]*WorkflowInstance, error) {
	return eng.ListInstances(ctx, opts)
}
