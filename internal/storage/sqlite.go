package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/birthdaybot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

const dateLayout = "2006-01-02"

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS birthdays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			birth_date TEXT NOT NULL,
			birth_month INTEGER NOT NULL,
			birth_day INTEGER NOT NULL,
			has_year INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_birthdays_chat_id ON birthdays(chat_id)`,
		`CREATE INDEX IF NOT EXISTS idx_birthdays_month_day ON birthdays(birth_month, birth_day)`,
		// One row per reminder already delivered for the current occurrence
		`CREATE TABLE IF NOT EXISTS birthday_reminder_flags (
			birthday_id INTEGER NOT NULL,
			days_before INTEGER NOT NULL,
			announced_at DATETIME NOT NULL,
			PRIMARY KEY (birthday_id, days_before),
			FOREIGN KEY (birthday_id) REFERENCES birthdays(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS chat_settings (
			chat_id INTEGER PRIMARY KEY,
			language TEXT NOT NULL DEFAULT 'en',
			reminder_days TEXT NOT NULL DEFAULT '0,1,3,7',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS backup_pings (
			chat_id INTEGER PRIMARY KEY,
			last_fired_at DATETIME NOT NULL,
			interval_minutes INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backup_pings_active ON backup_pings(is_active)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// BackupTo writes a consistent copy of the database to path.
func (s *Storage) BackupTo(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}

// === Birthdays ===

const birthdayColumns = `b.id, b.chat_id, b.name, b.birth_date, b.has_year, b.created_at,
	COALESCE((SELECT group_concat(f.days_before) FROM birthday_reminder_flags f WHERE f.birthday_id = b.id), '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBirthday(row rowScanner) (*domain.Birthday, error) {
	b := &domain.Birthday{}
	var date, flags string
	if err := row.Scan(&b.ID, &b.ChatID, &b.Name, &date, &b.HasYear, &b.CreatedAt, &flags); err != nil {
		return nil, err
	}

	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("birthday %d: bad birth_date %q: %w", b.ID, date, err)
	}
	b.Date = d

	b.Announced = make(map[int]bool)
	for _, f := range strings.Split(flags, ",") {
		if f == "" {
			continue
		}
		days, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("birthday %d: bad flag %q: %w", b.ID, f, err)
		}
		b.Announced[days] = true
	}
	return b, nil
}

func (s *Storage) queryBirthdays(ctx context.Context, query string, args ...any) ([]*domain.Birthday, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var birthdays []*domain.Birthday
	for rows.Next() {
		b, err := scanBirthday(rows)
		if err != nil {
			return nil, err
		}
		birthdays = append(birthdays, b)
	}
	return birthdays, rows.Err()
}

// CreateBirthdays inserts all birthdays in one transaction and fills in
// their ids. Either every record is stored or none is.
func (s *Storage) CreateBirthdays(ctx context.Context, birthdays []*domain.Birthday) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO birthdays (chat_id, name, birth_date, birth_month, birth_day, has_year, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, b := range birthdays {
		res, err := stmt.ExecContext(ctx,
			b.ChatID, b.Name, b.Date.Format(dateLayout), int(b.Date.Month()), b.Date.Day(), b.HasYear, now,
		)
		if err != nil {
			return fmt.Errorf("insert birthday %q: %w", b.Name, err)
		}
		id, _ := res.LastInsertId()
		b.ID = id
		b.CreatedAt = now
		if b.Announced == nil {
			b.Announced = make(map[int]bool)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Storage) GetBirthday(ctx context.Context, id int64) (*domain.Birthday, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+birthdayColumns+` FROM birthdays b WHERE b.id = ?`, id)
	b, err := scanBirthday(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// ListBirthdaysByChat returns the chat's birthdays in insertion order.
func (s *Storage) ListBirthdaysByChat(ctx context.Context, chatID int64) ([]*domain.Birthday, error) {
	return s.queryBirthdays(ctx,
		`SELECT `+birthdayColumns+` FROM birthdays b WHERE b.chat_id = ? ORDER BY b.id`,
		chatID,
	)
}

// ListAllBirthdays returns every chat's birthdays grouped by chat.
func (s *Storage) ListAllBirthdays(ctx context.Context) ([]*domain.Birthday, error) {
	return s.queryBirthdays(ctx, `SELECT `+birthdayColumns+` FROM birthdays b ORDER BY b.chat_id, b.id`)
}

// DeleteBirthdays removes the given ids owned by chatID. Ids that do not
// exist or belong to another chat are reported in notFound.
func (s *Storage) DeleteBirthdays(ctx context.Context, chatID int64, ids []int64) (deleted, notFound []int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `DELETE FROM birthdays WHERE id = ? AND chat_id = ?`, id, chatID)
		if err != nil {
			return nil, nil, fmt.Errorf("delete birthday %d: %w", id, err)
		}
		n, _ := res.RowsAffected()
		if n > 0 {
			deleted = append(deleted, id)
		} else {
			notFound = append(notFound, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return deleted, notFound, nil
}

// === Reminder flags ===

// BirthdaysOn returns birthdays falling on any of the given month-days.
func (s *Storage) BirthdaysOn(ctx context.Context, days []domain.MonthDay) ([]*domain.Birthday, error) {
	if len(days) == 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(days))
	args := make([]any, 0, 2*len(days))
	for _, md := range days {
		conds = append(conds, `(b.birth_month = ? AND b.birth_day = ?)`)
		args = append(args, int(md.Month), md.Day)
	}

	return s.queryBirthdays(ctx,
		`SELECT `+birthdayColumns+` FROM birthdays b WHERE `+strings.Join(conds, " OR ")+` ORDER BY b.id`,
		args...,
	)
}

// AnnouncedBirthdays returns birthdays with at least one announced flag.
func (s *Storage) AnnouncedBirthdays(ctx context.Context) ([]*domain.Birthday, error) {
	return s.queryBirthdays(ctx,
		`SELECT `+birthdayColumns+` FROM birthdays b
		 WHERE EXISTS (SELECT 1 FROM birthday_reminder_flags f WHERE f.birthday_id = b.id)
		 ORDER BY b.id`,
	)
}

func (s *Storage) SetAnnounced(ctx context.Context, id int64, daysBefore int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO birthday_reminder_flags (birthday_id, days_before, announced_at) VALUES (?, ?, ?)`,
		id, daysBefore, at.UTC(),
	)
	return err
}

func (s *Storage) ClearAnnounced(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM birthday_reminder_flags WHERE birthday_id = ?`, id)
	return err
}

// === Chat settings ===

func (s *Storage) GetChatSettings(ctx context.Context, chatID int64) (*domain.ChatSettings, error) {
	cs := &domain.ChatSettings{ChatID: chatID}
	var days string
	err := s.db.QueryRowContext(ctx,
		`SELECT language, reminder_days FROM chat_settings WHERE chat_id = ?`,
		chatID,
	).Scan(&cs.Language, &days)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cs.Thresholds, err = domain.ParseThresholds(days)
	if err != nil {
		return nil, fmt.Errorf("chat %d: reminder_days %q: %w", chatID, days, err)
	}
	return cs, nil
}

func (s *Storage) SaveChatSettings(ctx context.Context, cs *domain.ChatSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_settings (chat_id, language, reminder_days, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(chat_id) DO UPDATE SET
			language = excluded.language,
			reminder_days = excluded.reminder_days,
			updated_at = excluded.updated_at`,
		cs.ChatID, cs.Language, cs.Thresholds.String(),
	)
	return err
}

// === Backup pings ===

func scanBackupPing(row rowScanner) (*domain.BackupPing, error) {
	p := &domain.BackupPing{}
	if err := row.Scan(&p.ChatID, &p.LastFiredAt, &p.IntervalMinutes, &p.IsActive); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Storage) GetBackupPing(ctx context.Context, chatID int64) (*domain.BackupPing, error) {
	p, err := scanBackupPing(s.db.QueryRowContext(ctx,
		`SELECT chat_id, last_fired_at, interval_minutes, is_active FROM backup_pings WHERE chat_id = ?`,
		chatID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *Storage) SaveBackupPing(ctx context.Context, p *domain.BackupPing) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backup_pings (chat_id, last_fired_at, interval_minutes, is_active) VALUES (?, ?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
			last_fired_at = excluded.last_fired_at,
			interval_minutes = excluded.interval_minutes,
			is_active = excluded.is_active`,
		p.ChatID, p.LastFiredAt.UTC(), p.IntervalMinutes, p.IsActive,
	)
	return err
}

func (s *Storage) ListActiveBackupPings(ctx context.Context) ([]*domain.BackupPing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, last_fired_at, interval_minutes, is_active FROM backup_pings WHERE is_active = 1 ORDER BY chat_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pings []*domain.BackupPing
	for rows.Next() {
		p, err := scanBackupPing(rows)
		if err != nil {
			return nil, err
		}
		pings = append(pings, p)
	}
	return pings, rows.Err()
}
