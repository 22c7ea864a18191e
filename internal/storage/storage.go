// Package storage is the transactional data store behind the draw engine.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"raffle/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLSTATE postgres returns when a serializable transaction lost a race.
const pgSerializationFailure = "40001"

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a guarded update matched no row.
	ErrConflict = errors.New("guarded update matched no rows")
)

// Store owns the database handle.
type Store struct {
	db     *gorm.DB
	driver string
}

// Open connects to the configured database and migrates the schema.
// An empty sqlite dsn opens a private in-memory database; any other sqlite
// dsn is a file path.
func Open(driver, dsn string) (*Store, error) {
	cfg := &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	}
	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		db, err = gorm.Open(sqlite.Open(sqliteDSN(dsn)), cfg)
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; one connection serializes transactions.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, driver)
}

// New wraps an already opened gorm handle and migrates the schema.
func New(db *gorm.DB, driver string) (*Store, error) {
	for _, model := range models.MigrateModels {
		if err := db.AutoMigrate(model); err != nil {
			return nil, fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	logger.Infof("storage ready (driver=%s)", driver)
	return &Store{db: db, driver: driver}, nil
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return ":memory:"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, fs.ModePerm); err != nil {
			logger.Warningf("could not create data dir %s: %v", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
}

// DB exposes the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside one database transaction. Any error returned by
// fn rolls every write back. Postgres transactions run serializable and a
// serialization failure is reported as ErrConflict.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	var opts []*sql.TxOptions
	if s.driver == DriverPostgres {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Tx{db: db})
	}, opts...)
	return conflict(err)
}

// conflict maps a lost serializable race to ErrConflict so callers can retry.
func conflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// Reader returns a non-transactional view for reads and independent writes.
func (s *Store) Reader(ctx context.Context) *Tx {
	return &Tx{db: s.db.WithContext(ctx)}
}

// Tx groups the queries the engine runs, either in a transaction or not.
type Tx struct {
	db *gorm.DB
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (t *Tx) CreateRaffle(r *models.Raffle) error {
	return t.db.Create(r).Error
}

func (t *Tx) GetRaffle(id string) (*models.Raffle, error) {
	var r models.Raffle
	if err := t.db.Where("id = ?", id).First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ReserveTickets advances sold_tickets from expectedSold by quantity. The
// update only matches when no other purchase moved the counter first, the
// raffle is still active and capacity is not exceeded.
func (t *Tx) ReserveTickets(raffleID string, expectedSold, quantity int) error {
	res := t.db.Model(&models.Raffle{}).
		Where("id = ? AND status = ? AND sold_tickets = ? AND sold_tickets + ? <= total_tickets",
			raffleID, models.RaffleActive, expectedSold, quantity).
		Update("sold_tickets", gorm.Expr("sold_tickets + ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

// MarkRaffleDrawn ends the raffle and records its winner unless it has
// already ended.
func (t *Tx) MarkRaffleDrawn(raffleID, winnerID string, ticket int) error {
	res := t.db.Model(&models.Raffle{}).
		Where("id = ? AND status <> ?", raffleID, models.RaffleEnded).
		Updates(map[string]any{
			"status":                models.RaffleEnded,
			"winner_id":             winnerID,
			"winning_ticket_number": ticket,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

func (t *Tx) CreateEntry(e *models.Entry) error {
	return t.db.Create(e).Error
}

func (t *Tx) GetEntry(id string) (*models.Entry, error) {
	var e models.Entry
	if err := t.db.Where("id = ?", id).First(&e).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// SettlePayment moves a pending entry to its final payment status.
func (t *Tx) SettlePayment(entryID string, status models.PaymentStatus) error {
	res := t.db.Model(&models.Entry{}).
		Where("id = ? AND payment_status = ?", entryID, models.PaymentPending).
		Update("payment_status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

// CompletedEntries returns the paid entries of a raffle ordered by ticket.
func (t *Tx) CompletedEntries(raffleID string) ([]models.Entry, error) {
	var entries []models.Entry
	err := t.db.
		Where("raffle_id = ? AND payment_status = ?", raffleID, models.PaymentCompleted).
		Order("first_ticket ASC").
		Find(&entries).Error
	return entries, err
}

func (t *Tx) CreateDrawAudit(a *models.DrawAudit) error {
	return t.db.Create(a).Error
}

func (t *Tx) GetDrawAudit(id string) (*models.DrawAudit, error) {
	var a models.DrawAudit
	if err := t.db.Where("id = ?", id).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// LatestCommitment returns the newest commitment row of a raffle.
func (t *Tx) LatestCommitment(raffleID string) (*models.DrawAudit, error) {
	var a models.DrawAudit
	err := t.db.
		Where("raffle_id = ? AND draw_method = ? AND winning_ticket_number IS NULL",
			raffleID, models.MethodPreCommitted).
		Order("timestamp DESC").
		First(&a).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (t *Tx) ListDrawAudits(raffleID string) ([]models.DrawAudit, error) {
	var audits []models.DrawAudit
	err := t.db.Where("raffle_id = ?", raffleID).Order("timestamp ASC").Find(&audits).Error
	return audits, err
}

// MarkAuditVerified flips the verified flag once.
func (t *Tx) MarkAuditVerified(id string, at time.Time) error {
	res := t.db.Model(&models.DrawAudit{}).
		Where("id = ? AND is_verified = ?", id, false).
		Updates(map[string]any{"is_verified": true, "verified_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

func (t *Tx) AppendComplianceLog(e *models.ComplianceLogEntry) error {
	return t.db.Create(e).Error
}

func (t *Tx) ListComplianceLog(raffleID string) ([]models.ComplianceLogEntry, error) {
	var entries []models.ComplianceLogEntry
	err := t.db.Where("raffle_id = ?", raffleID).Order("created_at ASC").Find(&entries).Error
	return entries, err
}
