// Package journal 记录已完成的步骤条目（sqlite），中断后重跑同一 StepSequence 时跳过已完成部分
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/betbot/gorouter/router/types"
)

var log = logrus.WithField("component", "journal")

// Entry 一条已完成的步骤条目
type Entry struct {
	SequenceID  string
	StepID      string
	ItemIndex   int
	Kind        types.StepKind
	Result      string
	CompletedAt time.Time
}

// Journal sqlite 步骤记录
type Journal struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库文件；path 为 ":memory:" 时使用内存库
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close 关闭数据库
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS step_items (
  sequence_id TEXT NOT NULL,
  step_id TEXT NOT NULL,
  item_index INTEGER NOT NULL,
  kind TEXT NOT NULL,
  result TEXT NOT NULL,
  completed_at TEXT NOT NULL,
  PRIMARY KEY (sequence_id, step_id, item_index)
);`,
		`CREATE INDEX IF NOT EXISTS idx_step_items_sequence ON step_items(sequence_id, completed_at);`,
	}
	for _, q := range stmts {
		if _, err := j.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate exec failed: %w", err)
		}
	}
	return nil
}

// MarkComplete 记录条目完成；重复记录覆盖结果
func (j *Journal) MarkComplete(ctx context.Context, sequenceID, stepID string, index int, kind types.StepKind, result string) error {
	if sequenceID == "" || stepID == "" {
		return types.InvalidArgf("journal entry needs sequence and step id")
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO step_items (sequence_id, step_id, item_index, kind, result, completed_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(sequence_id, step_id, item_index) DO UPDATE SET
  kind=excluded.kind, result=excluded.result, completed_at=excluded.completed_at
`, sequenceID, stepID, index, string(kind), result, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert step item: %w", err)
	}
	log.WithFields(logrus.Fields{"sequence": sequenceID, "step": stepID}).Debugf("条目 %d 已记录", index)
	return nil
}

// IsComplete 条目是否已记录
func (j *Journal) IsComplete(ctx context.Context, sequenceID, stepID string, index int) (bool, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM step_items WHERE sequence_id=? AND step_id=? AND item_index=?
`, sequenceID, stepID, index).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query step item: %w", err)
	}
	return n > 0, nil
}

// Results 按完成顺序返回某个序列的全部条目
func (j *Journal) Results(ctx context.Context, sequenceID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT sequence_id, step_id, item_index, kind, result, completed_at
FROM step_items
WHERE sequence_id=?
ORDER BY completed_at ASC, rowid ASC
`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			kind        string
			completedAt string
		)
		if err := rows.Scan(&e.SequenceID, &e.StepID, &e.ItemIndex, &kind, &e.Result, &completedAt); err != nil {
			return nil, err
		}
		e.Kind = types.StepKind(kind)
		e.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Forget 删除某个序列的记录，返回删除条数
func (j *Journal) Forget(ctx context.Context, sequenceID string) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM step_items WHERE sequence_id=?`, sequenceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
