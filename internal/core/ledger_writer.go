package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const timestampLayout = "2006-01-02 15:04:05"

// Sink persists a ledger entry.
type Sink interface {
	Write(ctx context.Context, entry LedgerEntry) error
}

// DBSink writes to the production ledger. An existing row counts as written.
type DBSink struct {
	store LedgerStore
}

func NewDBSink(store LedgerStore) *DBSink {
	return &DBSink{store: store}
}

func (s *DBSink) Write(ctx context.Context, entry LedgerEntry) error {
	if _, err := s.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("ledger insert for payment %s: %w", entry.PaymentID, err)
	}
	return nil
}

var csvHeader = []string{"timestamp", "learning_user_id", "course_id", "ledger_db_name", "payment_id", "cost", "method", "processed"}

// CSVSink appends semicolon-delimited rows to a flat file, writing the header
// when the file is new or empty.
type CSVSink struct {
	path string
	loc  *time.Location
	mu   sync.Mutex
}

func NewCSVSink(path string, loc *time.Location) *CSVSink {
	if loc == nil {
		loc = time.Local
	}
	return &CSVSink{path: path, loc: loc}
}

func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) Write(_ context.Context, entry LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create test output dir: %w", err)
		}
	}

	writeHeader := true
	if info, err := os.Stat(s.path); err == nil && info.Size() > 0 {
		writeHeader = false
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open test output %s: %w", s.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if writeHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("write test output header: %w", err)
		}
	}
	if err := w.Write([]string{
		entry.EffectiveDate.In(s.loc).Format(timestampLayout),
		strconv.FormatInt(entry.LearningUserID, 10),
		strconv.FormatInt(entry.CourseID, 10),
		entry.LedgerDB,
		entry.PaymentID,
		entry.UnitCost.StringFixed(2),
		entry.Method,
		"0",
	}); err != nil {
		return fmt.Errorf("write test output row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// LedgerWriter owns duplicate suppression and routes writes to the sink
// selected by the run mode.
type LedgerWriter struct {
	store    LedgerStore
	prodSink Sink
	testSink Sink
	now      func() time.Time
}

func NewLedgerWriter(store LedgerStore, testSink Sink) *LedgerWriter {
	w := &LedgerWriter{store: store, testSink: testSink, now: time.Now}
	if store != nil {
		w.prodSink = NewDBSink(store)
	}
	return w
}

// AlreadyQueued reports whether the ledger holds any row for the payment in
// ledgerDB. Any error answers true so an uncertain check never causes a duplicate.
func (w *LedgerWriter) AlreadyQueued(ctx context.Context, rc RunContext, paymentID, ledgerDB string) bool {
	if w.store == nil {
		rc.logger().Error("ledger store not configured, treating payment as queued", zap.String("payment_id", paymentID))
		return true
	}
	exists, err := w.store.HasPayment(ctx, paymentID, ledgerDB)
	if err != nil {
		rc.logger().Error("idempotency check failed, treating payment as queued",
			zap.String("payment_id", paymentID), zap.String("ledger_db", ledgerDB), zap.Error(err))
		return true
	}
	return exists
}

// Write persists one entry, filling an unset effective date with the current time.
func (w *LedgerWriter) Write(ctx context.Context, rc RunContext, entry LedgerEntry) error {
	if entry.EffectiveDate.IsZero() {
		entry.EffectiveDate = w.now()
	}

	sink := w.prodSink
	if rc.Mode == RunModeTest {
		sink = w.testSink
	}
	if sink == nil {
		return errors.New("no ledger sink configured for run mode " + string(rc.Mode))
	}

	if err := sink.Write(ctx, entry); err != nil {
		rc.logger().Error("ledger write failed",
			zap.Int64("course_id", entry.CourseID), zap.Int("unit", entry.UnitIndex), zap.Error(err))
		return err
	}
	rc.logger().Debug("ledger entry written",
		zap.String("mode", string(rc.Mode)),
		zap.Int64("user_id", entry.LearningUserID),
		zap.Int64("course_id", entry.CourseID),
		zap.Int("unit", entry.UnitIndex),
		zap.String("cost", entry.UnitCost.StringFixed(2)),
	)
	return nil
}
