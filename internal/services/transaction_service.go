package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"ridestore/internal/models"
	"ridestore/internal/store"
	"ridestore/internal/utils"
	"ridestore/pkg/events"
	"ridestore/pkg/logger"
	"ridestore/pkg/metrics"
)

type TransactionService interface {
	// Transaction lifecycle
	Begin(ctx context.Context) (*TxInfo, error)
	Commit(ctx context.Context, txID string) (*store.CommitResult, error)
	Abort(ctx context.Context, txID string) error

	// Staged mutations
	Insert(ctx context.Context, txID string, table string, row json.RawMessage) (models.Key, error)
	Update(ctx context.Context, txID string, table string, key models.Key, patch map[string]interface{}) error
	Delete(ctx context.Context, txID string, table string, key models.Key, cascade bool) error

	// Committed reads
	Get(ctx context.Context, table string, key models.Key) (models.Record, error)
	QueryByForeignKey(ctx context.Context, table, column string, value int64) ([]models.Record, error)

	Close() error
}

type TxInfo struct {
	TxID      string    `json:"tx_id"`
	BaseSeq   uint64    `json:"base_seq"`
	StartedAt time.Time `json:"started_at"`
}

type txEntry struct {
	tx       *store.Tx
	lastUsed time.Time
	open     bool
}

type transactionService struct {
	store     *store.Store
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	audit     *logger.AuditLogger
	idleTTL   time.Duration
	now       func() time.Time

	mu  sync.Mutex
	txs map[string]*txEntry

	stop chan struct{}
	wg   sync.WaitGroup
}

type TransactionServiceOptions struct {
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
	Audit     *logger.AuditLogger
	// IdleTTL aborts transactions untouched for that long. Zero disables the
	// sweeper.
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

func NewTransactionService(s *store.Store, opts TransactionServiceOptions) TransactionService {
	svc := &transactionService{
		store:     s,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		audit:     opts.Audit,
		idleTTL:   opts.IdleTTL,
		now:       time.Now,
		txs:       make(map[string]*txEntry),
		stop:      make(chan struct{}),
	}
	if svc.publisher == nil {
		svc.publisher = events.NewNopPublisher()
	}
	if svc.metrics == nil {
		svc.metrics = metrics.New()
	}
	if svc.logger == nil {
		svc.logger = logger.NewNop()
	}

	if svc.idleTTL > 0 {
		interval := opts.SweepInterval
		if interval <= 0 {
			interval = utils.TxSweepInterval
		}
		svc.wg.Add(1)
		go svc.sweepLoop(interval)
	}
	return svc
}

// Transaction lifecycle
func (s *transactionService) Begin(ctx context.Context) (*TxInfo, error) {
	tx := s.store.Begin()

	s.mu.Lock()
	s.txs[tx.ID()] = &txEntry{tx: tx, lastUsed: s.now(), open: true}
	s.mu.Unlock()

	s.metrics.ActiveTransactions.Inc()
	s.logger.WithContext(ctx).WithTxID(tx.ID()).Debug("Transaction started")

	return &TxInfo{
		TxID:      tx.ID(),
		BaseSeq:   tx.BaseSeq(),
		StartedAt: tx.StartedAt(),
	}, nil
}

func (s *transactionService) Commit(ctx context.Context, txID string) (*store.CommitResult, error) {
	entry, err := s.lookup(txID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := entry.tx.Commit(ctx)
	s.settle(entry)
	if err != nil {
		kind := utils.KindOf(err)
		if kind == "" {
			kind = "Internal"
		}
		s.metrics.CommitFailuresTotal.WithLabelValues(string(kind)).Inc()
		s.logger.WithContext(ctx).WithTxID(txID).WithError(err).Warn("Commit failed")
		return nil, err
	}

	s.metrics.CommitDuration.Observe(time.Since(started).Seconds())
	if len(result.Mutations) == 0 {
		return result, nil
	}
	s.metrics.CommitsTotal.Inc()
	for _, m := range result.Mutations {
		s.metrics.MutationsTotal.WithLabelValues(string(m.Table), string(m.Op)).Inc()
		if s.audit != nil {
			s.audit.LogDataAccess(string(m.Table), string(m.Op), txID, m.Key.String(), isSensitive(m.Table))
		}
	}
	for _, w := range result.Warnings {
		s.metrics.ConsistencyWarnings.WithLabelValues(w.Rule).Inc()
	}
	s.logRideEvents(result)
	s.publish(ctx, result)

	return result, nil
}

func (s *transactionService) Abort(ctx context.Context, txID string) error {
	entry, err := s.lookup(txID)
	if err != nil {
		return err
	}
	wasOpen := entry.tx.Status() == store.TxOpen
	entry.tx.Abort()
	s.settle(entry)
	if wasOpen {
		s.metrics.AbortsTotal.WithLabelValues("caller").Inc()
	}
	return nil
}

// Staged mutations
func (s *transactionService) Insert(ctx context.Context, txID string, table string, row json.RawMessage) (models.Key, error) {
	t, err := parseTable(table)
	if err != nil {
		return models.Key{}, err
	}
	entry, err := s.lookup(txID)
	if err != nil {
		return models.Key{}, err
	}
	rec, err := models.DecodeRecord(t, row)
	if err != nil {
		return models.Key{}, decodeError(t, err)
	}
	key, err := entry.tx.Insert(t, rec)
	s.settle(entry)
	return key, err
}

func (s *transactionService) Update(ctx context.Context, txID string, table string, key models.Key, patch map[string]interface{}) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}
	entry, err := s.lookup(txID)
	if err != nil {
		return err
	}
	err = entry.tx.Update(t, key, patch)
	s.settle(entry)
	return err
}

func (s *transactionService) Delete(ctx context.Context, txID string, table string, key models.Key, cascade bool) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}
	entry, err := s.lookup(txID)
	if err != nil {
		return err
	}
	if cascade {
		err = entry.tx.DeleteCascade(t, key)
	} else {
		err = entry.tx.Delete(t, key)
	}
	s.settle(entry)
	return err
}

// Committed reads
func (s *transactionService) Get(ctx context.Context, table string, key models.Key) (models.Record, error) {
	t, err := parseTable(table)
	if err != nil {
		return nil, err
	}
	rec, ok := s.store.Get(t, key)
	if !ok {
		return nil, utils.NewStoreError(utils.KindNotFound, string(t), key.String(), "record not found")
	}
	return rec, nil
}

func (s *transactionService) QueryByForeignKey(ctx context.Context, table, column string, value int64) ([]models.Record, error) {
	t, err := parseTable(table)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.QueryByForeignKey(t, column, value)
	if err != nil {
		return nil, err
	}
	return slices.Collect(rows), nil
}

// Close stops the sweeper and aborts every open transaction.
func (s *transactionService) Close() error {
	select {
	case <-s.stop:
		return nil
	default:
		close(s.stop)
	}
	s.wg.Wait()

	s.mu.Lock()
	entries := make([]*txEntry, 0, len(s.txs))
	for _, entry := range s.txs {
		entries = append(entries, entry)
	}
	s.txs = make(map[string]*txEntry)
	s.mu.Unlock()

	for _, entry := range entries {
		entry.tx.Abort()
		s.settle(entry)
	}
	return s.publisher.Close()
}

func (s *transactionService) lookup(txID string) (*txEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.txs[txID]
	if !ok {
		return nil, utils.NewStoreError(utils.KindNotFound, "", txID, utils.ErrTransactionNotFound)
	}
	entry.lastUsed = s.now()
	return entry, nil
}

// settle updates the open gauge once a transaction leaves the open state.
// Without a sweeper nothing else would forget the entry, so it is dropped
// here and later calls with its id get NotFound instead of TxClosed.
func (s *transactionService) settle(entry *txEntry) {
	if entry.tx.Status() == store.TxOpen {
		return
	}
	s.mu.Lock()
	wasOpen := entry.open
	entry.open = false
	if s.idleTTL <= 0 {
		delete(s.txs, entry.tx.ID())
	}
	s.mu.Unlock()
	if wasOpen {
		s.metrics.ActiveTransactions.Dec()
	}
}

func (s *transactionService) sweepLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

// sweep aborts idle open transactions and forgets closed ones that have sat
// for a full TTL.
func (s *transactionService) sweep() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	var expired []*txEntry
	for id, entry := range s.txs {
		if entry.lastUsed.After(cutoff) {
			continue
		}
		expired = append(expired, entry)
		delete(s.txs, id)
	}
	s.mu.Unlock()

	for _, entry := range expired {
		if entry.tx.Status() != store.TxOpen {
			continue
		}
		entry.tx.Abort()
		s.settle(entry)
		s.metrics.AbortsTotal.WithLabelValues("idle").Inc()
		s.logger.WithTxID(entry.tx.ID()).Info("Idle transaction aborted")
	}
}

func (s *transactionService) publish(ctx context.Context, result *store.CommitResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), utils.EventPublishTimeout)
	defer cancel()

	event := models.NewCommitEvent(utils.EventTransactionCommitted, result.Entry())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.PublishFailures.Inc()
		s.logger.WithTxID(result.TxID).WithError(err).Error("Failed to publish commit event")
	}
}

// logRideEvents reports rides and incidents an update moved into a final
// status. Later edits of a row already in a final status are not events.
func (s *transactionService) logRideEvents(result *store.CommitResult) {
	for _, m := range result.Mutations {
		if m.Op != models.OpUpdate {
			continue
		}
		if m.Table != models.TableRides && m.Table != models.TableIncidents {
			continue
		}
		rec, err := models.DecodeRecord(m.Table, m.Record)
		if err != nil {
			continue
		}
		before, err := models.DecodeRecord(m.Table, m.Before)
		if err != nil {
			continue
		}

		details := map[string]interface{}{
			"tx_id": result.TxID,
			"seq":   result.Seq,
		}
		switch row := rec.(type) {
		case models.Ride:
			if before.(models.Ride).Status.IsTerminal() {
				continue
			}
			details["driver_id"] = row.DriverID
			switch row.Status {
			case models.RideStatusCompleted:
				s.logger.LogRideEvent(row.ID, utils.EventRideCompleted, details)
			case models.RideStatusCanceled:
				s.logger.LogRideEvent(row.ID, utils.EventRideCanceled, details)
			}
		case models.Incident:
			if before.(models.Incident).Status.IsTerminal() || !row.Status.IsTerminal() {
				continue
			}
			details["incident_id"] = row.ID
			s.logger.LogRideEvent(row.RideID, utils.EventIncidentResolved, details)
		}
	}
}

func parseTable(name string) (models.Table, error) {
	t, ok := models.ParseTable(name)
	if !ok {
		return "", utils.NewStoreError(utils.KindUnknownTable, name, "", fmt.Sprintf("unknown table %q", name))
	}
	return t, nil
}

func decodeError(table models.Table, err error) error {
	var unknown *models.UnknownColumnError
	if errors.As(err, &unknown) {
		return &utils.StoreError{
			Kind:    utils.KindDomainRuleViolation,
			Table:   string(table),
			Rule:    fmt.Sprintf("%s.unknown_column", table),
			Field:   unknown.Column,
			Message: unknown.Error(),
		}
	}
	return &utils.StoreError{
		Kind:    utils.KindDomainRuleViolation,
		Table:   string(table),
		Rule:    fmt.Sprintf("%s.invalid_record", table),
		Message: err.Error(),
	}
}

func isSensitive(table models.Table) bool {
	return table == models.TablePassengers || table == models.TableDrivers
}
