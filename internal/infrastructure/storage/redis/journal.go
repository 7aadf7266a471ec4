package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"coinbook/internal/domain/model"
)

// Journal publishes ledger events to a Redis stream and a pub/sub channel so that
// external consumers can follow trades without polling the ledger keys.
type Journal struct {
	rdb     *redis.Client
	stream  string
	channel string
	maxLen  int64
	timeout time.Duration
}

func NewJournal(rdb *redis.Client, prefix, stream, channel string, maxLen int64) *Journal {
	if strings.TrimSpace(prefix) == "" {
		prefix = "coinbook"
	}
	if strings.TrimSpace(stream) == "" {
		stream = prefix + ":events"
	}
	if strings.TrimSpace(channel) == "" {
		channel = prefix + ":events:pub"
	}
	return &Journal{
		rdb:     rdb,
		stream:  stream,
		channel: channel,
		maxLen:  maxLen,
		timeout: 2 * time.Second,
	}
}

func (j *Journal) Stream() string  { return j.stream }
func (j *Journal) Channel() string { return j.channel }

// Event is the payload of one journal entry.
type Event struct {
	Type      string `json:"type"`
	Namespace string `json:"namespace"`
	Side      string `json:"side,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Value     string `json:"value,omitempty"`
	Op        string `json:"op,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Cycle     string `json:"cycle,omitempty"`
	Failures  int    `json:"failures,omitempty"`
	TsMs      int64  `json:"ts_ms"`
}

func (j *Journal) publish(ev Event) {
	ev.TsMs = time.Now().UnixMilli()
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	// 1) Stream: XADD <stream> MAXLEN ~ n * type namespace payload
	args := &redis.XAddArgs{
		Stream: j.stream,
		Values: map[string]any{
			"type":      ev.Type,
			"namespace": ev.Namespace,
			"payload":   string(payload),
		},
	}
	if j.maxLen > 0 {
		args.MaxLen = j.maxLen
		args.Approx = true
	}
	if err := j.rdb.XAdd(ctx, args).Err(); err != nil {
		log.Warn().Err(err).Str("stream", j.stream).Msg("journal xadd failed")
		return
	}

	// 2) PubSub: PUBLISH <channel> json
	if err := j.rdb.Publish(ctx, j.channel, payload).Err(); err != nil {
		log.Warn().Err(err).Str("channel", j.channel).Msg("journal publish failed")
	}
}

func (j *Journal) TradeExecuted(namespace, side, currency string, baseValue decimal.Decimal) {
	j.publish(Event{Type: "trade", Namespace: namespace, Side: side, Currency: currency, Value: baseValue.String()})
}

func (j *Journal) OperationFailed(namespace, op, kind string) {
	j.publish(Event{Type: "failure", Namespace: namespace, Op: op, Kind: kind})
}

func (j *Journal) BalanceObserved(sheet *model.BalanceSheet) {
	j.publish(Event{Type: "balance", Namespace: sheet.Namespace, Value: sheet.Total.String()})
}

func (j *Journal) CycleCompleted(report *model.CycleReport) {
	j.publish(Event{Type: "cycle", Namespace: report.Namespace, Op: string(report.Kind), Cycle: report.ID, Failures: len(report.Failures)})
}
