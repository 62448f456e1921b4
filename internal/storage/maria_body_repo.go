package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MariaBodyRepo реализует BodyRepo для MariaDB/MySQL.
// Тела хранятся в таблице bodies, по строке на тело.
type MariaBodyRepo struct {
	db *sql.DB
}

// NewMariaBodyRepo подключается к базе и создает таблицу, если её нет.
//
// dsn - строка подключения (user:pass@tcp(host:port)/dbname)
func NewMariaBodyRepo(ctx context.Context, dsn string) (*MariaBodyRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaBodyRepo{db: db}
	if err := repo.createTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *MariaBodyRepo) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS bodies (
			id         BIGINT UNSIGNED PRIMARY KEY,
			type       VARCHAR(16)     NOT NULL,
			mode       VARCHAR(16)     NOT NULL,
			cx DOUBLE NOT NULL, cy DOUBLE NOT NULL, cz DOUBLE NOT NULL,
			rx DOUBLE NOT NULL, ry DOUBLE NOT NULL, rz DOUBLE NOT NULL,
			vx DOUBLE NOT NULL, vy DOUBLE NOT NULL, vz DOUBLE NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы bodies: %w", err)
	}
	return nil
}

const upsertBody = `
	INSERT INTO bodies (id, type, mode, cx, cy, cz, rx, ry, rz, vx, vy, vz)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		type = VALUES(type), mode = VALUES(mode),
		cx = VALUES(cx), cy = VALUES(cy), cz = VALUES(cz),
		rx = VALUES(rx), ry = VALUES(ry), rz = VALUES(rz),
		vx = VALUES(vx), vy = VALUES(vy), vz = VALUES(vz)
`

const selectBodies = `SELECT id, type, mode, cx, cy, cz, rx, ry, rz, vx, vy, vz FROM bodies`

func bodyArgs(rec BodyRecord) []any {
	return []any{
		rec.ID, rec.Type, rec.Mode,
		rec.Center[0], rec.Center[1], rec.Center[2],
		rec.Radius[0], rec.Radius[1], rec.Radius[2],
		rec.Velocity[0], rec.Velocity[1], rec.Velocity[2],
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBody(row rowScanner) (BodyRecord, error) {
	var rec BodyRecord
	err := row.Scan(&rec.ID, &rec.Type, &rec.Mode,
		&rec.Center[0], &rec.Center[1], &rec.Center[2],
		&rec.Radius[0], &rec.Radius[1], &rec.Radius[2],
		&rec.Velocity[0], &rec.Velocity[1], &rec.Velocity[2])
	return rec, err
}

// Save сохраняет тело, используя INSERT ... ON DUPLICATE KEY UPDATE
func (r *MariaBodyRepo) Save(ctx context.Context, rec BodyRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertBody, bodyArgs(rec)...); err != nil {
		return fmt.Errorf("ошибка сохранения тела %d: %w", rec.ID, err)
	}
	return nil
}

// Load загружает тело по ID
func (r *MariaBodyRepo) Load(ctx context.Context, id uint64) (BodyRecord, bool, error) {
	rec, err := scanBody(r.db.QueryRowContext(ctx, selectBodies+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return BodyRecord{}, false, nil
	}
	if err != nil {
		return BodyRecord{}, false, fmt.Errorf("ошибка загрузки тела %d: %w", id, err)
	}
	return rec, true, nil
}

// LoadAll загружает все тела в порядке ID
func (r *MariaBodyRepo) LoadAll(ctx context.Context) ([]BodyRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectBodies+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки тел: %w", err)
	}
	defer rows.Close()

	var recs []BodyRecord
	for rows.Next() {
		rec, err := scanBody(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения тела: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Delete удаляет тело
func (r *MariaBodyRepo) Delete(ctx context.Context, id uint64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM bodies WHERE id = ?`, id); err != nil {
		return fmt.Errorf("ошибка удаления тела %d: %w", id, err)
	}
	return nil
}

// BatchSave сохраняет тела в одной транзакции
func (r *MariaBodyRepo) BatchSave(ctx context.Context, recs []BodyRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertBody)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if err := rec.validate(); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, bodyArgs(rec)...); err != nil {
			return fmt.Errorf("ошибка сохранения тела %d в batch: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// Close закрывает соединение с базой данных
func (r *MariaBodyRepo) Close() error {
	return r.db.Close()
}
