// Package journal keeps a small sqlite log of fills, center-price moves and
// maintenance passes for offline profit bookkeeping.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Journal struct {
	db *sql.DB
}

func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite：单连接更稳定
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			worker TEXT NOT NULL,
			side TEXT NOT NULL,
			price REAL NOT NULL,
			amount REAL NOT NULL,
			ts INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS center_shifts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			worker TEXT NOT NULL,
			old_price REAL NOT NULL,
			new_price REAL NOT NULL,
			ts INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS passes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			worker TEXT NOT NULL,
			ops INTEGER NOT NULL,
			center REAL NOT NULL,
			spread REAL NOT NULL,
			ts INTEGER NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return fmt.Errorf("journal migrate: %w", err)
		}
	}
	return nil
}

func (j *Journal) RecordFill(worker, side string, price, amount float64) error {
	if j == nil {
		return nil
	}
	_, err := j.db.Exec(`INSERT INTO fills (worker, side, price, amount, ts) VALUES (?, ?, ?, ?, ?)`,
		worker, side, price, amount, time.Now().Unix())
	return err
}

func (j *Journal) RecordCenterShift(worker string, oldPrice, newPrice float64) error {
	if j == nil {
		return nil
	}
	_, err := j.db.Exec(`INSERT INTO center_shifts (worker, old_price, new_price, ts) VALUES (?, ?, ?, ?)`,
		worker, oldPrice, newPrice, time.Now().Unix())
	return err
}

func (j *Journal) RecordPass(worker string, ops int, center, spread float64) error {
	if j == nil {
		return nil
	}
	_, err := j.db.Exec(`INSERT INTO passes (worker, ops, center, spread, ts) VALUES (?, ?, ?, ?, ?)`,
		worker, ops, center, spread, time.Now().Unix())
	return err
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
