package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/logger"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// OpType identifies a journaled mutation.
type OpType string

const (
	OpTypeCreate OpType = "CREATE"
	OpTypeUpdate OpType = "UPDATE"
	OpTypeDelete OpType = "DELETE"
)

// TxStatus is the lifecycle of one batch transaction.
type TxStatus string

const (
	TxPending         TxStatus = "PENDING"
	TxCommitted       TxStatus = "COMMITTED"
	TxRolledBack      TxStatus = "ROLLED_BACK"
	TxPartialRollback TxStatus = "PARTIAL_ROLLBACK"
)

// Op is one reversible mutation. Previous state snapshots are stored as-is
// and restored as-is, relation columns included.
type Op struct {
	Type       OpType
	EntityType string
	EntityID   string
	Previous   map[string]any
	New        map[string]any
}

// Tx is an in-memory ordered operation log for one batch. Append-only
// until the transaction reaches a terminal status.
type Tx struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	status TxStatus
	ops    []Op
}

// Status returns the transaction's current lifecycle state.
func (t *Tx) Status() TxStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Len returns the number of journaled operations.
func (t *Tx) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// Record appends an operation. Fails once the transaction is terminal.
func (t *Tx) Record(op Op) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TxPending {
		return sluiceerrors.NewJournalError(t.ID, fmt.Errorf("transaction is %s", t.status))
	}
	t.ops = append(t.ops, op)
	return nil
}

// RollbackResult counts the outcome of replaying a transaction backwards.
type RollbackResult struct {
	Rolled int
	Failed int
}

// Journal is the process-wide batch rollback service. Mutation is
// single-writer (the orchestrator); stale transactions are swept on an
// interval.
type Journal struct {
	entities entity.Service
	log      *logger.Logger

	maxAge        time.Duration
	cleanInterval time.Duration

	mu   sync.Mutex
	txs  map[string]*Tx
	stop chan struct{}
	done chan struct{}
}

// JournalOptions tunes transaction retention.
type JournalOptions struct {
	MaxTransactionAge time.Duration
	CleanupInterval   time.Duration
}

// NewJournal creates a rollback journal over the entity store.
func NewJournal(entities entity.Service, log *logger.Logger, opts JournalOptions) *Journal {
	if opts.MaxTransactionAge <= 0 {
		opts.MaxTransactionAge = 30 * time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 5 * time.Minute
	}
	return &Journal{
		entities:      entities,
		log:           log,
		maxAge:        opts.MaxTransactionAge,
		cleanInterval: opts.CleanupInterval,
		txs:           make(map[string]*Tx),
	}
}

// Begin opens a new pending transaction.
func (j *Journal) Begin() *Tx {
	tx := &Tx{ID: uuid.NewString(), CreatedAt: time.Now(), status: TxPending}
	j.mu.Lock()
	j.txs[tx.ID] = tx
	j.mu.Unlock()
	return tx
}

// Get returns a transaction by id.
func (j *Journal) Get(txID string) (*Tx, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	tx, ok := j.txs[txID]
	if !ok {
		return nil, sluiceerrors.NewJournalError(txID, fmt.Errorf("transaction not found"))
	}
	return tx, nil
}

// Commit marks a transaction terminal-successful.
func (j *Journal) Commit(txID string) error {
	tx, err := j.Get(txID)
	if err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.status != TxPending {
		return sluiceerrors.NewJournalError(txID, fmt.Errorf("transaction is %s", tx.status))
	}
	tx.status = TxCommitted
	return nil
}

// Rollback replays the whole transaction in reverse insertion order:
// CREATE is deleted, UPDATE restores the previous state, DELETE is
// re-inserted.
func (j *Journal) Rollback(ctx context.Context, txID string) (RollbackResult, error) {
	return j.rollbackFrom(ctx, txID, 0, TxRolledBack)
}

// PartialRollback rewinds only the suffix of operations starting at
// fromIndex (inclusive, in insertion order).
func (j *Journal) PartialRollback(ctx context.Context, txID string, fromIndex int) (RollbackResult, error) {
	return j.rollbackFrom(ctx, txID, fromIndex, TxPartialRollback)
}

func (j *Journal) rollbackFrom(ctx context.Context, txID string, fromIndex int, terminal TxStatus) (RollbackResult, error) {
	tx, err := j.Get(txID)
	if err != nil {
		return RollbackResult{}, err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.status != TxPending {
		return RollbackResult{}, sluiceerrors.NewJournalError(txID, fmt.Errorf("transaction is %s", tx.status))
	}
	if fromIndex < 0 || fromIndex > len(tx.ops) {
		return RollbackResult{}, sluiceerrors.NewJournalError(txID, fmt.Errorf("fromIndex %d out of range", fromIndex))
	}

	var result RollbackResult
	for i := len(tx.ops) - 1; i >= fromIndex; i-- {
		op := tx.ops[i]
		if err := j.undo(ctx, op); err != nil {
			result.Failed++
			j.log.Error(err, fmt.Sprintf("rollback of %s %s/%s failed", op.Type, op.EntityType, op.EntityID))
			continue
		}
		result.Rolled++
	}

	tx.ops = tx.ops[:fromIndex]
	tx.status = terminal
	return result, nil
}

func (j *Journal) undo(ctx context.Context, op Op) error {
	switch op.Type {
	case OpTypeCreate:
		return j.entities.Delete(ctx, op.EntityType, op.EntityID)
	case OpTypeUpdate:
		return j.entities.Restore(ctx, op.EntityType, op.EntityID, op.Previous)
	case OpTypeDelete:
		return j.entities.Restore(ctx, op.EntityType, op.EntityID, op.Previous)
	default:
		return fmt.Errorf("unknown op type %q", op.Type)
	}
}

// StartSweeper launches the stale-transaction collector. Call Close to
// stop it.
func (j *Journal) StartSweeper() {
	j.mu.Lock()
	if j.stop != nil {
		j.mu.Unlock()
		return
	}
	j.stop = make(chan struct{})
	j.done = make(chan struct{})
	stop, done := j.stop, j.done
	j.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(j.cleanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

// Close stops the sweeper. Pending transactions stay in memory for the
// caller to roll back or abandon.
func (j *Journal) Close() {
	j.mu.Lock()
	stop, done := j.stop, j.done
	j.stop = nil
	j.done = nil
	j.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Sweep removes transactions that are terminal or older than the max age.
func (j *Journal) Sweep() {
	cutoff := time.Now().Add(-j.maxAge)

	j.mu.Lock()
	defer j.mu.Unlock()
	for id, tx := range j.txs {
		status := tx.Status()
		if status != TxPending || tx.CreatedAt.Before(cutoff) {
			delete(j.txs, id)
		}
	}
}

// Size returns the number of retained transactions.
func (j *Journal) Size() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.txs)
}
