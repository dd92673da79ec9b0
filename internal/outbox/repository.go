package outbox

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/thermowatch/internal/errors"
	"codeberg.org/mutker/thermowatch/internal/logger"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	mu     sync.Mutex
	closed bool
}

// Open creates or opens the outbox database at cfg.DBPath.
func Open(cfg Config) (Store, error) {
	errFactory := errors.New()
	log := logger.Component("outbox")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err).WithData(struct {
			Phase string
			Path  string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err).WithData("open_database")
	}
	// One connection keeps WAL writes serialized.
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err).WithData("schema_version")
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Outbox initialized")

	return &repository{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (r *repository) Enqueue(ctx context.Context, payload []byte, createdAt time.Time) (string, error) {
	errFactory := errors.New()

	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx, insertRecordSQL, id, createdAt.UnixMilli(), payload); err != nil {
		return "", errFactory.Wrap(ErrTransactionFailed, err).WithData("enqueue")
	}

	return id, nil
}

func (r *repository) Pending(ctx context.Context, limit int) ([]Record, error) {
	errFactory := errors.New()

	if limit <= 0 {
		return []Record{}, nil
	}

	rows, err := r.db.QueryContext(ctx, selectPendingSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec       Record
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &createdAt, &rec.Payload, &rec.Attempts); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return records, nil
}

func (r *repository) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.PrepareContext(ctx, deleteRecordSQL)
	if err != nil {
		r.rollback(tx)
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			r.rollback(tx)
			return errFactory.Wrap(ErrTransactionFailed, err).WithData(id)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(ids)).Msg("Acknowledged outbox records")

	return nil
}

func (r *repository) MarkAttempt(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, markAttemptSQL, id); err != nil {
		return errors.New().Wrap(ErrTransactionFailed, err).WithData(id)
	}
	return nil
}

func (r *repository) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	errFactory := errors.New()

	res, err := r.db.ExecContext(ctx, pruneRecordsSQL, cutoff.UnixMilli())
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err).WithData("prune")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err).WithData("prune")
	}

	return int(n), nil
}

func (r *repository) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countRecordsSQL).Scan(&n); err != nil {
		return 0, errors.New().Wrap(ErrQueryFailed, err)
	}
	return n, nil
}

func (r *repository) Close() error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec(checkpointWALSQL); err != nil {
		r.db.Close()
		return errFactory.Wrap(ErrStorageClose, err).WithData("checkpoint_wal")
	}

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err).WithData("close_database")
	}

	r.logger.Info().Msg("Outbox closed gracefully")

	return nil
}

func (r *repository) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		r.logger.Error().Err(err).Msg("Failed to roll back transaction")
	}
}
