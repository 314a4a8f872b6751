package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/napomni/napomni/pkg/recurrence"
	"github.com/napomni/napomni/pkg/user"
)

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	StoreEvent(ctx context.Context, e Event) (int, error)
	GetEvent(ctx context.Context, id int) (Event, error)
	UpdateEvent(ctx context.Context, e Event) (Event, error)
	DeleteEvent(ctx context.Context, id int) (Event, error)
	FindCandidates(ctx context.Context, f CandidateFilter) ([]Event, error)
	FindByUTCMinutes(ctx context.Context, minutesOfDay []int, limit, offset int) ([]Event, error)
	StoreCancellation(ctx context.Context, eventID int, date recurrence.LocalDate) error
	StoreParticipant(ctx context.Context, eventID int, participantUserID int, ref user.PlatformRef) error
}

type RepositoryImpl struct {
	db *sql.DB
	tx *sql.Tx
}

func NewRepository(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db, tx: nil}
}

// getQueryer returns the appropriate database interface for queries (either tx or db)
func (r *RepositoryImpl) getQueryer() interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *RepositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	txRepo := &RepositoryImpl{db: r.db, tx: tx}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const eventColumns = `id, description, emoji, start_at, stop_at, single_event, daily, weekly, monthly,
	annual_day, annual_month, user_id, creator_user_id, tg_id, max_id, creator_tg_id, creator_max_id`

func scanEvent(row interface{ Scan(dest ...interface{}) error }) (Event, error) {
	var e Event
	var emoji sql.NullString
	var stopAt, ownerID, creatorID sql.NullInt64
	var startAt int64
	var weekly, monthly, annualDay, annualMonth sql.NullInt64
	var tgID, maxID, creatorTgID, creatorMaxID sql.NullInt64

	err := row.Scan(&e.ID, &e.Description, &emoji, &startAt, &stopAt,
		&e.Rule.Single, &e.Rule.Daily, &weekly, &monthly, &annualDay, &annualMonth,
		&ownerID, &creatorID, &tgID, &maxID, &creatorTgID, &creatorMaxID)
	if err != nil {
		return Event{}, err
	}

	e.Emoji = emoji.String
	e.StartAt = time.UnixMilli(startAt).UTC()
	if stopAt.Valid {
		e.StopAt = time.UnixMilli(stopAt.Int64).UTC()
	}
	e.Rule.Weekday = intPtr(weekly)
	e.Rule.MonthDay = intPtr(monthly)
	e.Rule.YearDay = intPtr(annualDay)
	e.Rule.YearMonth = intPtr(annualMonth)
	e.OwnerID = int(ownerID.Int64)
	e.CreatorID = int(creatorID.Int64)
	e.Owner = user.PlatformRef{TelegramID: tgID.Int64, MaxID: maxID.Int64}
	e.Creator = user.PlatformRef{TelegramID: creatorTgID.Int64, MaxID: creatorMaxID.Int64}
	return e, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullUserID(id int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func (r *RepositoryImpl) StoreEvent(ctx context.Context, e Event) (int, error) {
	query := `INSERT INTO events (description, emoji, start_at, stop_at, single_event, daily, weekly, monthly,
				annual_day, annual_month, user_id, creator_user_id, tg_id, max_id, creator_tg_id, creator_max_id, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.getQueryer().ExecContext(ctx, query,
		e.Description,
		sql.NullString{String: e.Emoji, Valid: e.Emoji != ""},
		e.StartAt.UnixMilli(),
		nullMillis(e.StopAt),
		e.Rule.Single,
		e.Rule.Daily,
		nullInt(e.Rule.Weekday),
		nullInt(e.Rule.MonthDay),
		nullInt(e.Rule.YearDay),
		nullInt(e.Rule.YearMonth),
		nullUserID(e.OwnerID),
		nullUserID(e.CreatorID),
		nullID(e.Owner.TelegramID),
		nullID(e.Owner.MaxID),
		nullID(e.Creator.TelegramID),
		nullID(e.Creator.MaxID),
		time.Now().UnixMilli(),
	)
	if err != nil {
		log.Errorf("failed to store event: %v", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("could not read inserted event id: %w", err)
	}
	return int(id), nil
}

func (r *RepositoryImpl) GetEvent(ctx context.Context, id int) (Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	e, err := scanEvent(r.getQueryer().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	} else if err != nil {
		log.Errorf("failed to get event %d: %v", id, err)
		return Event{}, err
	}
	if err := r.attachCancellations(ctx, []*Event{&e}); err != nil {
		return Event{}, err
	}
	return e, nil
}

func (r *RepositoryImpl) UpdateEvent(ctx context.Context, e Event) (Event, error) {
	query := `UPDATE events SET description = ?, emoji = ?, start_at = ?, stop_at = ?,
				single_event = ?, daily = ?, weekly = ?, monthly = ?, annual_day = ?, annual_month = ?
				WHERE id = ?`
	res, err := r.getQueryer().ExecContext(ctx, query,
		e.Description,
		sql.NullString{String: e.Emoji, Valid: e.Emoji != ""},
		e.StartAt.UnixMilli(),
		nullMillis(e.StopAt),
		e.Rule.Single,
		e.Rule.Daily,
		nullInt(e.Rule.Weekday),
		nullInt(e.Rule.MonthDay),
		nullInt(e.Rule.YearDay),
		nullInt(e.Rule.YearMonth),
		e.ID,
	)
	if err != nil {
		log.Errorf("failed to update event %d: %v", e.ID, err)
		return Event{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Event{}, fmt.Errorf("could not read affected rows: %w", err)
	}
	if affected == 0 {
		return Event{}, ErrNotFound
	}
	return r.GetEvent(ctx, e.ID)
}

// DeleteEvent removes the row and returns it for confirmation messaging.
// Cancellation exceptions cascade with the event.
func (r *RepositoryImpl) DeleteEvent(ctx context.Context, id int) (Event, error) {
	e, err := r.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if _, err := r.getQueryer().ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		log.Errorf("failed to delete event %d: %v", id, err)
		return Event{}, err
	}
	return e, nil
}

func (r *RepositoryImpl) FindCandidates(ctx context.Context, f CandidateFilter) ([]Event, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + eventColumns + ` FROM events
		WHERE ((tg_id = ? AND ? <> 0) OR (max_id = ? AND ? <> 0))
		AND start_at <= ?
		AND (
			(single_event = TRUE AND start_at >= ?)
			OR daily = TRUE
			OR weekly IS NOT NULL
			OR monthly IS NOT NULL
			OR (annual_month IS NOT NULL`)
	args := []interface{}{
		f.Owner.TelegramID, f.Owner.TelegramID,
		f.Owner.MaxID, f.Owner.MaxID,
		f.StartBefore.UnixMilli(),
		f.SingleAfter.UnixMilli(),
	}
	if len(f.AnnualMonths) > 0 {
		sb.WriteString(` AND annual_month IN (` + placeholders(len(f.AnnualMonths)) + `)`)
		for _, m := range f.AnnualMonths {
			args = append(args, m)
		}
	}
	sb.WriteString(`)
		)
		ORDER BY start_at`)

	return r.queryEvents(ctx, sb.String(), args...)
}

// FindByUTCMinutes selects events whose stored start instant falls on one of
// the given minutes of the UTC day. Used by the reminder dispatcher as a
// coarse pre-filter before exact occurrence matching; the dispatcher passes
// several minutes because a DST shift in the owner's zone moves the
// occurrence away from the stored UTC minute.
func (r *RepositoryImpl) FindByUTCMinutes(ctx context.Context, minutesOfDay []int, limit, offset int) ([]Event, error) {
	if len(minutesOfDay) == 0 {
		return nil, nil
	}
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE ((start_at % 86400000) / 60000) IN (` + placeholders(len(minutesOfDay)) + `)
		ORDER BY id
		LIMIT ? OFFSET ?`
	args := make([]interface{}, 0, len(minutesOfDay)+2)
	for _, m := range minutesOfDay {
		args = append(args, m)
	}
	args = append(args, limit, offset)
	return r.queryEvents(ctx, query, args...)
}

func (r *RepositoryImpl) queryEvents(ctx context.Context, query string, args ...interface{}) ([]Event, error) {
	rows, err := r.getQueryer().QueryContext(ctx, query, args...)
	if err != nil {
		log.Errorf("failed to query events: %v", err)
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0, 10)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			log.Errorf("failed to scan event row: %v", err)
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]*Event, len(events))
	for i := range events {
		refs[i] = &events[i]
	}
	if err := r.attachCancellations(ctx, refs); err != nil {
		return nil, err
	}
	return events, nil
}

// attachCancellations loads the cancellation exceptions of the given events
// in one query, so an event and its cancellation set always come from the
// same snapshot.
func (r *RepositoryImpl) attachCancellations(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	byID := make(map[int]*Event, len(events))
	args := make([]interface{}, 0, len(events))
	for _, e := range events {
		byID[e.ID] = e
		args = append(args, e.ID)
	}

	query := `SELECT event_id, cancel_date FROM canceled_events WHERE event_id IN (` + placeholders(len(args)) + `)`
	rows, err := r.getQueryer().QueryContext(ctx, query, args...)
	if err != nil {
		log.Errorf("failed to query cancellations: %v", err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var eventID int
		var raw string
		if err := rows.Scan(&eventID, &raw); err != nil {
			return fmt.Errorf("could not scan cancellation row: %w", err)
		}
		date, err := recurrence.ParseDate(raw)
		if err != nil {
			log.Errorf("skipping unreadable cancellation of event %d: %v", eventID, err)
			continue
		}
		if e, ok := byID[eventID]; ok {
			e.Canceled = append(e.Canceled, date)
		}
	}
	return rows.Err()
}

func (r *RepositoryImpl) StoreCancellation(ctx context.Context, eventID int, date recurrence.LocalDate) error {
	query := `INSERT INTO canceled_events (event_id, cancel_date) VALUES (?, ?)`
	if _, err := r.getQueryer().ExecContext(ctx, query, eventID, date.String()); err != nil {
		log.Errorf("failed to store cancellation (%d, %s): %v", eventID, date, err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) StoreParticipant(ctx context.Context, eventID int, participantUserID int, ref user.PlatformRef) error {
	query := `INSERT INTO event_participants (event_id, participant_user_id, participant_tg_id, participant_max_id, created_at)
				VALUES (?, ?, ?, ?, ?)`
	_, err := r.getQueryer().ExecContext(ctx, query,
		eventID,
		nullUserID(participantUserID),
		nullID(ref.TelegramID),
		nullID(ref.MaxID),
		time.Now().UnixMilli(),
	)
	if err != nil {
		log.Errorf("failed to store participant of event %d: %v", eventID, err)
		return err
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
