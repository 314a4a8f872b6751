package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

type Repo interface {
	WithTransaction(ctx context.Context, fn func(repo Repo) error) error
	CreateUser(ctx context.Context, user User) (int, error)
	GetUser(ctx context.Context, id int) (User, error)
	FindByPlatformID(ctx context.Context, platform Platform, externalID int64) (User, error)
	UpdateUser(ctx context.Context, id int, user User) error
	DeleteUser(ctx context.Context, id int) error
	ClearPlatformIDs(ctx context.Context, id int) error
	AddRelation(ctx context.Context, userID, relatedID int) error
	RepointRelations(ctx context.Context, fromID, toID int) error
	RepointOwnership(ctx context.Context, fromID, toID int) error
	BackfillEventPlatformIDs(ctx context.Context, u User) error
}

type RepoImpl struct {
	db *sql.DB
	tx *sql.Tx
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db, tx: nil}
}

// getQueryer returns the appropriate database interface for queries (either tx or db)
func (r *RepoImpl) getQueryer() interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *RepoImpl) WithTransaction(ctx context.Context, fn func(repo Repo) error) error {
	if r.tx != nil {
		// Already inside a transaction, reuse it.
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// The Rollback will be a no-op if the transaction was already committed
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	txRepo := &RepoImpl{db: r.db, tx: tx}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const userColumns = `id, tg_id, max_id, is_active, username, first_name, last_name, time_zone, language_code`

func scanUser(row interface{ Scan(dest ...interface{}) error }) (User, error) {
	var u User
	var tgID, maxID sql.NullInt64
	var username, firstName, lastName, timezone, langCode sql.NullString
	err := row.Scan(&u.ID, &tgID, &maxID, &u.IsActive, &username, &firstName, &lastName, &timezone, &langCode)
	if err != nil {
		return User{}, err
	}
	u.TelegramID = tgID.Int64
	u.MaxID = maxID.Int64
	u.Username = username.String
	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.Timezone = timezone.String
	u.LanguageCode = langCode.String
	return u, nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *RepoImpl) CreateUser(ctx context.Context, user User) (int, error) {
	if user.Ref().IsZero() {
		return 0, ErrNoIdentity
	}
	query := `INSERT INTO users (tg_id, max_id, is_active, username, first_name, last_name, time_zone, language_code, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UnixMilli()
	res, err := r.getQueryer().ExecContext(ctx, query,
		nullID(user.TelegramID),
		nullID(user.MaxID),
		user.IsActive,
		nullStr(user.Username),
		nullStr(user.FirstName),
		nullStr(user.LastName),
		nullStr(user.Timezone),
		nullStr(user.LanguageCode),
		now,
		now,
	)
	if err != nil {
		log.Errorf("failed to create user: %v", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("could not read inserted user id: %w", err)
	}
	return int(id), nil
}

func (r *RepoImpl) GetUser(ctx context.Context, id int) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	u, err := scanUser(r.getQueryer().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	} else if err != nil {
		log.Errorf("failed to get user %d: %v", id, err)
		return User{}, err
	}
	return u, nil
}

func (r *RepoImpl) FindByPlatformID(ctx context.Context, platform Platform, externalID int64) (User, error) {
	column := "tg_id"
	if platform == Max {
		column = "max_id"
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`
	u, err := scanUser(r.getQueryer().QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	} else if err != nil {
		log.Errorf("failed to find user by %s id %d: %v", platform, externalID, err)
		return User{}, err
	}
	return u, nil
}

func (r *RepoImpl) UpdateUser(ctx context.Context, id int, user User) error {
	if user.Ref().IsZero() {
		return ErrNoIdentity
	}
	query := `UPDATE users SET tg_id = ?, max_id = ?, is_active = ?, username = ?, first_name = ?, last_name = ?,
				time_zone = ?, language_code = ?, updated_at = ? WHERE id = ?`
	res, err := r.getQueryer().ExecContext(ctx, query,
		nullID(user.TelegramID),
		nullID(user.MaxID),
		user.IsActive,
		nullStr(user.Username),
		nullStr(user.FirstName),
		nullStr(user.LastName),
		nullStr(user.Timezone),
		nullStr(user.LanguageCode),
		time.Now().UnixMilli(),
		id,
	)
	if err != nil {
		log.Errorf("failed to update user %d: %v", id, err)
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoImpl) DeleteUser(ctx context.Context, id int) error {
	res, err := r.getQueryer().ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		log.Errorf("failed to delete user %d: %v", id, err)
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearPlatformIDs nulls both identity columns on a row. Used by the
// reconciler to free the secondary row's unique identities before they are
// attached to the primary row.
func (r *RepoImpl) ClearPlatformIDs(ctx context.Context, id int) error {
	_, err := r.getQueryer().ExecContext(ctx, `UPDATE users SET tg_id = NULL, max_id = NULL WHERE id = ?`, id)
	if err != nil {
		log.Errorf("failed to clear platform ids of user %d: %v", id, err)
		return err
	}
	return nil
}

func (r *RepoImpl) AddRelation(ctx context.Context, userID, relatedID int) error {
	query := `INSERT INTO user_relations (user_id, related_user_id)
				SELECT ?, ?
				WHERE NOT EXISTS (SELECT 1 FROM user_relations WHERE user_id = ? AND related_user_id = ?)`
	_, err := r.getQueryer().ExecContext(ctx, query, userID, relatedID, userID, relatedID)
	if err != nil {
		log.Errorf("failed to add relation %d -> %d: %v", userID, relatedID, err)
		return err
	}
	return nil
}

// RepointRelations moves both directions of the contact-relation table from
// one internal user id to another, dropping rows that would collide after
// the move.
func (r *RepoImpl) RepointRelations(ctx context.Context, fromID, toID int) error {
	q := r.getQueryer()
	steps := []struct {
		query string
		args  []interface{}
	}{
		// Drop would-be duplicates and self-references first.
		{`DELETE FROM user_relations WHERE user_id = ? AND related_user_id IN
			(SELECT related_user_id FROM user_relations WHERE user_id = ?)`, []interface{}{fromID, toID}},
		{`DELETE FROM user_relations WHERE related_user_id = ? AND user_id IN
			(SELECT user_id FROM user_relations WHERE related_user_id = ?)`, []interface{}{fromID, toID}},
		{`DELETE FROM user_relations WHERE (user_id = ? AND related_user_id = ?) OR (user_id = ? AND related_user_id = ?)`,
			[]interface{}{fromID, toID, toID, fromID}},
		{`UPDATE user_relations SET user_id = ? WHERE user_id = ?`, []interface{}{toID, fromID}},
		{`UPDATE user_relations SET related_user_id = ? WHERE related_user_id = ?`, []interface{}{toID, fromID}},
	}
	for _, s := range steps {
		if _, err := q.ExecContext(ctx, s.query, s.args...); err != nil {
			log.Errorf("failed to repoint relations %d -> %d: %v", fromID, toID, err)
			return err
		}
	}
	return nil
}

// RepointOwnership re-points the owner/creator fields on events and the
// participant field on event_participants from one internal user id to
// another.
func (r *RepoImpl) RepointOwnership(ctx context.Context, fromID, toID int) error {
	q := r.getQueryer()
	steps := []string{
		`UPDATE events SET user_id = ? WHERE user_id = ?`,
		`UPDATE events SET creator_user_id = ? WHERE creator_user_id = ?`,
		`UPDATE event_participants SET participant_user_id = ? WHERE participant_user_id = ?`,
	}
	for _, query := range steps {
		if _, err := q.ExecContext(ctx, query, toID, fromID); err != nil {
			log.Errorf("failed to repoint ownership %d -> %d: %v", fromID, toID, err)
			return err
		}
	}
	return nil
}

// BackfillEventPlatformIDs fills the missing platform id column on event and
// participant rows that carry only one of the user's two identities, so
// queries filtered by either platform surface the same rows.
func (r *RepoImpl) BackfillEventPlatformIDs(ctx context.Context, u User) error {
	if u.TelegramID == 0 || u.MaxID == 0 {
		return nil
	}
	q := r.getQueryer()
	steps := []struct {
		query string
		args  []interface{}
	}{
		{`UPDATE events SET max_id = ? WHERE tg_id = ? AND max_id IS NULL`, []interface{}{u.MaxID, u.TelegramID}},
		{`UPDATE events SET tg_id = ? WHERE max_id = ? AND tg_id IS NULL`, []interface{}{u.TelegramID, u.MaxID}},
		{`UPDATE events SET creator_max_id = ? WHERE creator_tg_id = ? AND creator_max_id IS NULL`, []interface{}{u.MaxID, u.TelegramID}},
		{`UPDATE events SET creator_tg_id = ? WHERE creator_max_id = ? AND creator_tg_id IS NULL`, []interface{}{u.TelegramID, u.MaxID}},
		{`UPDATE event_participants SET participant_max_id = ? WHERE participant_tg_id = ? AND participant_max_id IS NULL`,
			[]interface{}{u.MaxID, u.TelegramID}},
		{`UPDATE event_participants SET participant_tg_id = ? WHERE participant_max_id = ? AND participant_tg_id IS NULL`,
			[]interface{}{u.TelegramID, u.MaxID}},
	}
	for _, s := range steps {
		if _, err := q.ExecContext(ctx, s.query, s.args...); err != nil {
			log.Errorf("failed to backfill platform ids for user %d: %v", u.ID, err)
			return err
		}
	}
	return nil
}
