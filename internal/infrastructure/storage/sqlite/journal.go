package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"coinbook/internal/domain/model"
)

// Journal appends ledger events to the ledger_events table of a Repo database.
type Journal struct {
	db *sql.DB
}

func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// JournalEntry is one row of ledger_events.
type JournalEntry struct {
	ID        int64
	Namespace string
	Type      string
	Side      string
	Currency  string
	Value     string
	Detail    string
	Timestamp int64
}

func (j *Journal) insert(e JournalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO ledger_events(namespace, type, side, currency, value, detail, ts_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, e.Namespace, e.Type, e.Side, e.Currency, e.Value, e.Detail, time.Now().UnixMilli())
	if err != nil {
		log.Warn().Err(err).Str("namespace", e.Namespace).Str("type", e.Type).Msg("journal insert failed")
	}
}

func (j *Journal) TradeExecuted(namespace, side, currency string, baseValue decimal.Decimal) {
	j.insert(JournalEntry{Namespace: namespace, Type: "trade", Side: side, Currency: currency, Value: baseValue.String()})
}

func (j *Journal) OperationFailed(namespace, op, kind string) {
	j.insert(JournalEntry{Namespace: namespace, Type: "failure", Detail: op + ":" + kind})
}

func (j *Journal) BalanceObserved(sheet *model.BalanceSheet) {
	j.insert(JournalEntry{Namespace: sheet.Namespace, Type: "balance", Currency: sheet.Base, Value: sheet.Total.String()})
}

func (j *Journal) CycleCompleted(report *model.CycleReport) {
	j.insert(JournalEntry{
		Namespace: report.Namespace,
		Type:      "cycle",
		Detail:    fmt.Sprintf("%s %s evaluated=%d failures=%d", report.ID, report.Kind, report.Evaluated, len(report.Failures)),
	})
}

// Recent returns the latest limit events of namespace, newest first.
func (j *Journal) Recent(ctx context.Context, namespace string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, namespace, type, side, currency, value, detail, ts_ms
		FROM ledger_events
		WHERE namespace = ?
		ORDER BY ts_ms DESC, id DESC
		LIMIT ?
	`, namespace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Namespace, &e.Type, &e.Side, &e.Currency, &e.Value, &e.Detail, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
