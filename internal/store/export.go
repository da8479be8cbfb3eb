package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rcliao/apogeemind/internal/model"
)

// ExportNamespace dumps every table for ns in insertion order.
func (s *SQLiteStore) ExportNamespace(ctx context.Context, ns string) (*model.Export, error) {
	e := &model.Export{Namespace: ns}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatColumns+` FROM chat_history WHERE namespace = ? ORDER BY timestamp, chat_id`, ns)
	if err != nil {
		return nil, fmt.Errorf("export chat history: %w", err)
	}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		e.ChatHistory = append(e.ChatHistory, c)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT `+shortTermColumns+` FROM short_term_memory WHERE namespace = ? ORDER BY created_at, memory_id`, ns)
	if err != nil {
		return nil, fmt.Errorf("export short-term: %w", err)
	}
	e.ShortTermMemory, err = collectShortTerm(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT `+longTermColumns+` FROM long_term_memory WHERE namespace = ? ORDER BY created_at, memory_id`, ns)
	if err != nil {
		return nil, fmt.Errorf("export long-term: %w", err)
	}
	e.LongTermMemory, err = collectLongTerm(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules_memory WHERE namespace = ? ORDER BY created_at, rule_id`, ns)
	if err != nil {
		return nil, fmt.Errorf("export rules: %w", err)
	}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		e.RulesMemory = append(e.RulesMemory, r)
	}
	rows.Close()

	return e, nil
}

// ImportNamespace loads an export in one transaction, skipping rows whose IDs
// already exist. When ns is non-empty every row is rewritten into that
// namespace. Returns the number of rows actually inserted.
func (s *SQLiteStore) ImportNamespace(ctx context.Context, ns string, e *model.Export) (int, error) {
	if e == nil {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	imported, err := importRows(ctx, tx, ns, e)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("import commit: %w", err)
	}
	return imported, nil
}

func importRows(ctx context.Context, tx *sql.Tx, ns string, e *model.Export) (int, error) {
	target := func(orig string) string {
		if ns != "" {
			return ns
		}
		if orig != "" {
			return orig
		}
		return e.Namespace
	}

	imported := 0
	for _, c := range e.ChatHistory {
		if c.ChatID == "" {
			continue
		}
		c.Namespace = target(c.Namespace)
		if c.Timestamp.IsZero() {
			c.Timestamp = time.Now()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO chat_history (chat_id, session_id, namespace, user_input, ai_output, model, timestamp, tokens_used)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(chat_id) DO NOTHING`,
			c.ChatID, c.SessionID, c.Namespace, c.UserInput, c.AIOutput, nullString(c.Model),
			formatTime(c.Timestamp), c.TokensUsed)
		if err != nil {
			return imported, fmt.Errorf("import chat %s: %w", c.ChatID, err)
		}
		imported += countInserted(res)
	}

	for _, m := range e.LongTermMemory {
		if m.MemoryID == "" {
			continue
		}
		m.Namespace = target(m.Namespace)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		n, err := insertLongTerm(ctx, tx, m, "ON CONFLICT(memory_id) DO NOTHING")
		if err != nil {
			return imported, fmt.Errorf("import long-term %s: %w", m.MemoryID, err)
		}
		imported += int(n)
	}

	for _, m := range e.ShortTermMemory {
		if m.MemoryID == "" {
			continue
		}
		m.Namespace = target(m.Namespace)
		res, err := insertShortTerm(ctx, tx, m)
		if err != nil {
			return imported, err
		}
		if res == Inserted {
			imported++
		}
	}

	for _, r := range e.RulesMemory {
		if r.RuleID == "" {
			continue
		}
		r.Namespace = target(r.Namespace)
		res, err := insertRule(ctx, tx, r)
		if err != nil {
			return imported, err
		}
		if res == Inserted {
			imported++
		}
	}

	return imported, nil
}

func countInserted(res interface{ RowsAffected() (int64, error) }) int {
	n, _ := res.RowsAffected()
	return int(n)
}
