// Package ledger tracks per-day analysis spend and authorizes paid requests.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/evandepol/homewatch/telemetry"
	"github.com/evandepol/homewatch/types"
)

var (
	bucketUsage = []byte("usage")
	bucketMeta  = []byte("meta")
)

const (
	dateFormat        = "2006-01-02"
	retentionDays     = 30
	maxRequestsPerDay = 100
)

// RequestRecord is one audited request inside a day's usage.
type RequestRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model"`
	Tokens    int       `json:"tokens"`
	CostUSD   float64   `json:"cost_usd"`
}

// DailyUsage accumulates one calendar day of analysis usage.
type DailyUsage struct {
	TotalCost    float64         `json:"total_cost"`
	RequestCount int             `json:"request_count"`
	TokensUsed   int             `json:"tokens_used"`
	Requests     []RequestRecord `json:"requests"`
}

// Summary reports usage across trailing windows plus request headroom.
type Summary struct {
	Today             DailyUsage `json:"today"`
	CostLimitUSD      float64    `json:"cost_limit_usd"`
	RequestLimit      int        `json:"request_limit"`
	RemainingCostUSD  float64    `json:"remaining_cost_usd"`
	RemainingRequests int        `json:"remaining_requests"`
	WeekTotal         float64    `json:"week_total"`
	MonthTotal        float64    `json:"month_total"`
	CanMakeRequest    bool       `json:"can_make_request"`
}

// Ledger persists daily usage in bbolt and enforces daily spend and
// request-count ceilings. The in-memory map is authoritative; a failed disk
// write is logged and swallowed.
type Ledger struct {
	mu        sync.Mutex
	db        *bbolt.DB
	logger    *telemetry.Logger
	costLimit float64
	reqLimit  int
	days      map[string]*DailyUsage
	now       func() time.Time
}

// Open creates or opens the cost ledger under dir. A corrupt or unreadable
// backing store initializes an empty ledger rather than failing the process.
func Open(dir string, costLimitUSD float64, requestLimit int) (*Ledger, error) {
	dbPath := filepath.Join(dir, "costs.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open cost ledger: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketUsage, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cost ledger buckets: %w", err)
	}

	l := &Ledger{
		db:        db,
		logger:    telemetry.NewLogger("ledger"),
		costLimit: costLimitUSD,
		reqLimit:  requestLimit,
		days:      make(map[string]*DailyUsage),
		now:       time.Now,
	}

	l.loadAndPrune()

	return l, nil
}

// Close closes the backing store.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// loadAndPrune reads persisted days into memory, dropping records older than
// the retention window. Unparseable records are skipped, not fatal.
func (l *Ledger) loadAndPrune() {
	cutoff := l.now().AddDate(0, 0, -retentionDays).Format(dateFormat)

	var stale [][]byte
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsage).ForEach(func(k, v []byte) error {
			date := string(k)
			if date < cutoff {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			var usage DailyUsage
			if err := json.Unmarshal(v, &usage); err != nil {
				l.logger.Warn().Err(err).Str("date", date).Msg("skipping corrupt usage record")
				return nil
			}
			l.days[date] = &usage
			return nil
		})
	})
	if err != nil {
		l.logger.Warn().Err(err).Msg("cost ledger unreadable, starting empty")
		l.days = make(map[string]*DailyUsage)
		return
	}

	if len(stale) == 0 {
		return
	}
	err = l.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketUsage)
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.logger.LogPersistenceError(context.Background(), "prune_usage", err)
	}
}

// CanMakeRequest reports whether today's accumulated cost and request count
// are both below their daily ceilings.
func (l *Ledger) CanMakeRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canMakeRequestLocked()
}

func (l *Ledger) canMakeRequestLocked() bool {
	today := l.todayLocked()

	if today.TotalCost >= l.costLimit {
		l.logger.Warn().
			Float64("total_cost", today.TotalCost).
			Float64("limit", l.costLimit).
			Msg("daily cost limit reached")
		return false
	}
	if today.RequestCount >= l.reqLimit {
		l.logger.Warn().
			Int("request_count", today.RequestCount).
			Int("limit", l.reqLimit).
			Msg("daily request limit reached")
		return false
	}
	return true
}

// RecordRequest appends one call's cost to today's totals and persists
// synchronously. Zero-cost records (mock/local tiers) are recorded too.
func (l *Ledger) RecordRequest(cost types.CostInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()

	date := l.now().Format(dateFormat)

	usage, ok := l.days[date]
	if !ok {
		usage = &DailyUsage{}
		l.days[date] = usage
	}

	usage.TotalCost += cost.CostUSD
	usage.RequestCount++
	usage.TokensUsed += cost.TokensUsed
	usage.Requests = append(usage.Requests, RequestRecord{
		Timestamp: l.now(),
		Model:     cost.Model,
		Tokens:    cost.TokensUsed,
		CostUSD:   cost.CostUSD,
	})
	if len(usage.Requests) > maxRequestsPerDay {
		usage.Requests = usage.Requests[len(usage.Requests)-maxRequestsPerDay:]
	}

	l.persistDay(date, usage)

	l.logger.Debug().
		Str("model", cost.Model).
		Float64("cost_usd", cost.CostUSD).
		Int("tokens", cost.TokensUsed).
		Msg("recorded analysis request")
}

func (l *Ledger) persistDay(date string, usage *DailyUsage) {
	err := l.db.Update(func(tx *bbolt.Tx) error {
		value, err := json.Marshal(usage)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketUsage).Put([]byte(date), value)
	})
	if err != nil {
		l.logger.LogPersistenceError(context.Background(), "persist_usage", err)
	}
}

// UsageSummary reports today's usage, trailing-week and trailing-month
// totals, and whether another paid request is allowed. Windows use
// calendar-day granularity; a partial day counts fully.
func (l *Ledger) UsageSummary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.todayLocked()
	now := l.now()

	var weekTotal, monthTotal float64
	for date, usage := range l.days {
		day, err := time.Parse(dateFormat, date)
		if err != nil {
			continue
		}
		daysAgo := int(now.Sub(day).Hours() / 24)
		if daysAgo <= 7 {
			weekTotal += usage.TotalCost
		}
		if daysAgo <= 30 {
			monthTotal += usage.TotalCost
		}
	}

	remainingCost := l.costLimit - today.TotalCost
	if remainingCost < 0 {
		remainingCost = 0
	}
	remainingReqs := l.reqLimit - today.RequestCount
	if remainingReqs < 0 {
		remainingReqs = 0
	}

	return Summary{
		Today:             today,
		CostLimitUSD:      l.costLimit,
		RequestLimit:      l.reqLimit,
		RemainingCostUSD:  remainingCost,
		RemainingRequests: remainingReqs,
		WeekTotal:         weekTotal,
		MonthTotal:        monthTotal,
		CanMakeRequest:    l.canMakeRequestLocked(),
	}
}

func (l *Ledger) todayLocked() DailyUsage {
	if usage, ok := l.days[l.now().Format(dateFormat)]; ok {
		return *usage
	}
	return DailyUsage{}
}
