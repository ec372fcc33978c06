package storage

import (
	"context"
	"errors"

	"raffleengine/internal/logger"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type SqliteStorage struct {
	db *gorm.DB
}

func NewSqliteStorage(path string) (*SqliteStorage, error) {

	logger.Debug("initializing database...", zap.String("path", path))
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer; one connection serializes transactions.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&Raffle{},
		&Ticket{},
		&Slots{},
		&Event{},
		&EventCursor{},
		&ParkedEvent{},
		&ConsumedNonce{},
		&RefundObligation{},
	)
	if err != nil {
		return nil, err
	}

	logger.Debug("initializing database... done")
	return &SqliteStorage{
		db: db,
	}, nil
}

func (s *SqliteStorage) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqliteTx{db: tx})
	})
}

func (s *SqliteStorage) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqliteTx{db: tx})
	})
}

func (s *SqliteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqliteTx struct {
	db *gorm.DB
}

func first[T any](db *gorm.DB, conditions ...any) (*T, error) {
	var record T
	err := db.First(&record, conditions...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// limitOrAll maps a non-positive limit to no limit.
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (t *sqliteTx) exists(model any, conditions ...any) (bool, error) {
	var count int64
	err := t.db.Model(model).Where(conditions[0], conditions[1:]...).Count(&count).Error
	return count > 0, err
}

func (t *sqliteTx) GetRaffle(id Address) (*Raffle, error) {
	return first[Raffle](t.db, "id = ?", id)
}

func (t *sqliteTx) CreateRaffle(raffle *Raffle) error {
	found, err := t.exists(&Raffle{}, "id = ?", raffle.ID)
	if err != nil {
		return err
	}
	if found {
		return ErrAlreadyExists
	}
	return t.db.Create(raffle).Error
}

func (t *sqliteTx) SaveRaffle(raffle *Raffle) error {
	return t.db.Save(raffle).Error
}

func (t *sqliteTx) ListRafflesByStatus(status RaffleStatus, limit int) ([]*Raffle, error) {
	var raffles []*Raffle
	err := t.db.Where("status = ?", status).Order("opened_at, id").Limit(limitOrAll(limit)).Find(&raffles).Error
	if err != nil {
		return nil, err
	}
	return raffles, nil
}

func (t *sqliteTx) GetTicket(id Address) (*Ticket, error) {
	return first[Ticket](t.db, "id = ?", id)
}

func (t *sqliteTx) CreateTicket(ticket *Ticket) error {
	found, err := t.exists(&Ticket{}, "id = ?", ticket.ID)
	if err != nil {
		return err
	}
	if found {
		return ErrAlreadyExists
	}
	return t.db.Create(ticket).Error
}

func (t *sqliteTx) SaveTicket(ticket *Ticket) error {
	return t.db.Save(ticket).Error
}

func (t *sqliteTx) ListTickets(raffle Address) ([]*Ticket, error) {
	var tickets []*Ticket
	err := t.db.Where("raffle = ?", raffle).Order("start").Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (t *sqliteTx) GetSlots(id Address) (*Slots, error) {
	return first[Slots](t.db, "id = ?", id)
}

func (t *sqliteTx) SaveSlots(slots *Slots) error {
	return t.db.Save(slots).Error
}

func (t *sqliteTx) AppendEvent(event *Event) error {
	return t.db.Create(event).Error
}

func (t *sqliteTx) GetEvent(seq uint64) (*Event, error) {
	return first[Event](t.db, "seq = ?", seq)
}

func (t *sqliteTx) ListEvents(afterSeq uint64, limit int) ([]*Event, error) {
	var events []*Event
	err := t.db.Where("seq > ?", afterSeq).Order("seq").Limit(limitOrAll(limit)).Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (t *sqliteTx) GetEventCursor(consumer string) (uint64, error) {
	var seq uint64
	err := t.db.Raw(`
		select coalesce(max(seq), 0) as seq
		from event_cursors
		where consumer = ?
	`, consumer).Scan(&seq).Error
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (t *sqliteTx) SaveEventCursor(cursor *EventCursor) error {
	logger.Debug("update event cursor...", zap.String("consumer", cursor.Consumer), zap.Uint64("seq", cursor.Seq))
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "consumer"}},
		DoUpdates: clause.AssignmentColumns([]string{"seq"}),
	}).Create(cursor).Error
	if err != nil {
		return err
	}

	logger.Debug("update event cursor... done")
	return nil
}

func (t *sqliteTx) ParkEvent(parked *ParkedEvent) error {
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "consumer"}, {Name: "seq"}},
		DoUpdates: clause.AssignmentColumns([]string{"attempts", "last_error"}),
	}).Create(parked).Error
}

func (t *sqliteTx) ListParkedEvents(consumer string, limit int) ([]*ParkedEvent, error) {
	var parked []*ParkedEvent
	err := t.db.Where("consumer = ?", consumer).Order("seq").Limit(limitOrAll(limit)).Find(&parked).Error
	if err != nil {
		return nil, err
	}
	return parked, nil
}

func (t *sqliteTx) DeleteParkedEvent(consumer string, seq uint64) error {
	return t.db.Where("consumer = ? and seq = ?", consumer, seq).Delete(&ParkedEvent{}).Error
}

func (t *sqliteTx) ConsumeNonce(nonce *ConsumedNonce) error {
	found, err := t.exists(&ConsumedNonce{}, "holder = ? and nonce = ?", nonce.Holder, nonce.Nonce)
	if err != nil {
		return err
	}
	if found {
		return ErrNonceConsumed
	}
	return t.db.Create(nonce).Error
}

func (t *sqliteTx) DeleteExpiredNonces(now int64) (int64, error) {
	result := t.db.Where("expiry <= ?", now).Delete(&ConsumedNonce{})
	return result.RowsAffected, result.Error
}

func (t *sqliteTx) CreateObligation(obligation *RefundObligation) error {
	found, err := t.exists(&RefundObligation{}, "id = ? or ticket = ?", obligation.ID, obligation.Ticket)
	if err != nil {
		return err
	}
	if found {
		return ErrAlreadyExists
	}
	return t.db.Create(obligation).Error
}

func (t *sqliteTx) GetObligation(id string) (*RefundObligation, error) {
	return first[RefundObligation](t.db, "id = ?", id)
}

func (t *sqliteTx) SaveObligation(obligation *RefundObligation) error {
	return t.db.Save(obligation).Error
}

func (t *sqliteTx) ListPendingObligations(limit int) ([]*RefundObligation, error) {
	var obligations []*RefundObligation
	err := t.db.Where("fulfilled = ?", false).Order("requested_at, id").Limit(limitOrAll(limit)).Find(&obligations).Error
	if err != nil {
		return nil, err
	}
	return obligations, nil
}
