package syncservice

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/interfaces"
	"github.com/customeros/feedsync/internal/batch"
	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/metrics"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/tracing"
	"github.com/customeros/feedsync/internal/utils"
	"github.com/customeros/feedsync/services/events"
	"github.com/customeros/feedsync/services/reader"
)

const (
	DefaultBatchDelay = 10 * time.Second
	DefaultQuickDelay = 1 * time.Second
	DefaultPageSize   = 150
)

// Service mirrors local news state changes to the aggregation service. Every
// change is written to the store first and removed only once the request
// carrying it succeeded.
type Service struct {
	connection interfaces.ConnectionService
	store      interfaces.SyncItemStore
	bus        *events.Bus
	prompt     interfaces.LoginPrompt
	loginURI   *url.URL
	editTagURI *url.URL
	prefs      interfaces.PreferenceStore
	log        logger.Logger
	now        func() time.Time

	buffer *batch.Buffer[models.SyncItem]

	inFlight   atomic.Bool
	rerun      atomic.Bool
	forceQuick atomic.Bool
	loginMu    sync.Mutex
	pending    sync.WaitGroup

	mu          sync.Mutex
	status      models.SyncStatus
	runCtx      context.Context
	cancelRun   context.CancelFunc
	unsubscribe []func()
}

func NewService(connection interfaces.ConnectionService, store interfaces.SyncItemStore, bus *events.Bus,
	prompt interfaces.LoginPrompt, loginURI *url.URL, prefs interfaces.PreferenceStore, log logger.Logger) *Service {
	s := &Service{
		connection: connection,
		store:      store,
		bus:        bus,
		prompt:     prompt,
		loginURI:   loginURI,
		editTagURI: reader.EditTagURI(),
		prefs:      prefs,
		log:        log,
		now:        time.Now,
	}
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())
	s.buffer = batch.NewBuffer(s.batchDelay(), s.onFlush, log)
	return s
}

func (s *Service) batchDelay() time.Duration {
	return s.prefs.GetDuration(config.PrefBatchDelay, DefaultBatchDelay)
}

func (s *Service) quickDelay() time.Duration {
	return s.prefs.GetDuration(config.PrefQuickDelay, DefaultQuickDelay)
}

func (s *Service) pageSize() int {
	size := s.prefs.GetInt(config.PrefPageSize, DefaultPageSize)
	if size <= 0 {
		return DefaultPageSize
	}
	return size
}

func (s *Service) enabled() bool {
	return s.prefs.GetBool(config.PrefSyncEnabled, true)
}

// Start loads the store, subscribes to local change events and schedules a
// pass for anything left over from the previous session.
func (s *Service) Start(ctx context.Context) error {
	span, ctx := tracing.StartTracerSpan(ctx, "SyncService.Start")
	defer span.Finish()
	tracing.TagComponentService(span)

	if err := s.store.Startup(ctx); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to start sync item store")
	}

	if s.bus != nil {
		s.mu.Lock()
		s.unsubscribe = append(s.unsubscribe,
			s.bus.Subscribe(&newsListener{BaseEventListener: events.NewBaseEventListener(s.log, events.NewsUpdated), service: s}),
			s.bus.Subscribe(&filterListener{BaseEventListener: events.NewBaseEventListener(s.log, events.FilterApplied), service: s}),
		)
		s.mu.Unlock()
	}

	if s.enabled() && !s.store.IsEmpty() {
		leftover := s.store.GetUncommittedItems()
		s.log.Infof("Scheduling sync of %d items left from a previous session", len(leftover))
		s.buffer.AddAll(mapValues(leftover))
	}
	return nil
}

// Stop unsubscribes, cancels the buffer and persists the store. A graceful
// stop waits for a running flush, an emergency stop cancels it.
func (s *Service) Stop(ctx context.Context, emergency bool) error {
	span, ctx := tracing.StartTracerSpan(ctx, "SyncService.Stop")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("emergency", emergency)

	s.mu.Lock()
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
	s.mu.Unlock()

	if emergency {
		s.cancelRun()
		s.buffer.Cancel(false)
	} else {
		s.pending.Wait()
		s.buffer.Cancel(true)
		s.cancelRun()
	}

	if err := s.store.Shutdown(ctx); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to persist sync items")
	}
	return nil
}

func (s *Service) Status() models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Service) setStatus(status models.SyncStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SetForceQuickUpdate makes the next buffered window close after the quick
// delay instead of the regular one.
func (s *Service) SetForceQuickUpdate() {
	s.forceQuick.Store(true)
}

// HandleNewsChanges records every eligible change and schedules a pass.
func (s *Service) HandleNewsChanges(ctx context.Context, changes []models.NewsChange) {
	var items []models.SyncItem
	for _, change := range changes {
		if item, ok := SyncItemFromChange(change); ok {
			items = append(items, item)
		}
	}
	s.enqueue(ctx, items)
}

// HandleFilterAction records the effect of a filter action on the given news.
func (s *Service) HandleFilterAction(ctx context.Context, action models.FilterAction, news []models.NewsRef) {
	s.enqueue(ctx, SyncItemsFromFilter(action, news))
}

func (s *Service) enqueue(ctx context.Context, items []models.SyncItem) {
	if len(items) == 0 || !s.enabled() {
		return
	}

	span, _ := tracing.StartTracerSpan(ctx, "SyncService.enqueue")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("items", len(items))

	s.store.AddUncommitted(items...)

	delay := s.batchDelay()
	if s.forceQuick.Swap(false) {
		delay = s.quickDelay()
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer tracing.RecoverAndLogToJaeger(s.log)

		if err := s.store.Persist(s.runCtx); err != nil {
			s.log.Warnf("Failed to persist sync items: %v", err)
		}
		s.buffer.AddAllWithDelay(items, delay)
	}()
}

func (s *Service) onFlush(_ []models.SyncItem) {
	if err := s.Sync(s.runCtx); err != nil {
		s.log.Warnf("Sync failed: %v", err)
	}
}

// SyncIfIdle runs a pass when items are pending and no buffered flush is
// about to run one anyway.
func (s *Service) SyncIfIdle(ctx context.Context) error {
	if !s.enabled() || s.store.IsEmpty() || s.buffer.IsScheduled() {
		return nil
	}
	return s.Sync(ctx)
}

// Sync sends everything in the store, not only what was buffered, so items
// left by a failed pass or a previous session are retried as well.
func (s *Service) Sync(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debug("Sync already in progress, scheduling another pass")
		s.rerun.Store(true)
		return nil
	}
	defer s.finishPass()

	span, ctx := tracing.StartTracerSpan(ctx, "SyncService.Sync")
	defer span.Finish()
	tracing.TagComponentService(span)
	runID := utils.GenerateRunID()
	tracing.TagRunId(span, runID)

	items := s.store.GetUncommittedItems()
	total := len(items)
	if total == 0 {
		s.setStatus(models.NewSuccessStatus(s.now(), 0, 0))
		return nil
	}

	s.log.Infof("[%s] Synchronizing %d items", runID, total)

	synced := 0
	var syncErr error
	for _, group := range GroupItems(items) {
		for _, page := range utils.Chunk(group.Items, s.pageSize()) {
			if err := ctx.Err(); err != nil {
				syncErr = err
				break
			}
			if err := s.sendPage(ctx, page); err != nil {
				syncErr = err
				break
			}
			if kept := len(page) - s.store.RemoveAcknowledged(page...); kept > 0 {
				s.log.Debugf("[%s] %d items changed during the request, keeping them for the next pass", runID, kept)
				s.rerun.Store(true)
			}
			synced += len(page)
			metrics.SyncedItemsTotal.Add(float64(len(page)))
		}
		if syncErr != nil {
			break
		}
	}

	if err := s.store.Persist(ctx); err != nil {
		s.log.Warnf("[%s] Failed to persist sync items: %v", runID, err)
	}

	if syncErr != nil {
		tracing.TraceErr(span, syncErr)
		s.setStatus(models.NewFailureStatus(s.now(), failureMessage(syncErr), syncErr))
		tracing.LogObjectAsJson(span, "status", s.Status())
		s.handleFailure(syncErr)
		return syncErr
	}

	s.log.Infof("[%s] Synchronized %d of %d items", runID, synced, total)
	s.setStatus(models.NewSuccessStatus(s.now(), synced, total))
	tracing.LogObjectAsJson(span, "status", s.Status())
	return nil
}

// finishPass releases the pass and schedules another one for changes that
// arrived while it ran.
func (s *Service) finishPass() {
	s.inFlight.Store(false)
	if s.rerun.Swap(false) && s.enabled() && !s.store.IsEmpty() {
		s.buffer.AddAll(mapValues(s.store.GetUncommittedItems()))
	}
}

func (s *Service) sendPage(ctx context.Context, page []models.SyncItem) error {
	span, ctx := tracing.StartTracerSpan(ctx, "SyncService.sendPage")
	defer span.Finish()
	tracing.TagEntity(span, page[0].StreamID)
	span.SetTag("items", len(page))

	props := &models.ConnectionProperties{
		Post:       true,
		Parameters: EditTagParameters(page),
	}
	in, err := s.connection.OpenStream(ctx, s.editTagURI, props)
	if err != nil {
		metrics.SyncRequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		tracing.TraceErr(span, err)
		return err
	}
	if err := in.Close(); err != nil {
		s.log.Debugf("Failed to close edit-tag response: %v", err)
	}
	metrics.SyncRequestsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return nil
}

func (s *Service) handleFailure(err error) {
	var authErr *feedErrors.AuthenticationRequiredError
	if !errors.As(err, &authErr) {
		return
	}
	metrics.SyncRequestsTotal.WithLabelValues(metrics.OutcomeAuth).Inc()
	if s.prompt == nil || s.loginURI == nil {
		return
	}
	// one prompt at a time, concurrent requests are dropped
	if !s.loginMu.TryLock() {
		return
	}
	defer s.loginMu.Unlock()
	if s.prompt.PromptLogin(s.loginURI, authErr.Realm) {
		s.log.Info("Login accepted, next sync pass will use the new credentials")
	}
}

func failureMessage(err error) string {
	var syncErr *feedErrors.SyncConnectionError
	switch {
	case errors.As(err, &syncErr):
		return syncErr.Message
	case feedErrors.IsAuthenticationRequired(err):
		return "Authentication required"
	case feedErrors.IsConnectionFailure(err):
		return "Connection error"
	default:
		return "Synchronization failed"
	}
}

func mapValues(items map[string]models.SyncItem) []models.SyncItem {
	values := make([]models.SyncItem, 0, len(items))
	for _, item := range items {
		values = append(values, item)
	}
	sort.Slice(values, func(i, j int) bool { return values[i].ID < values[j].ID })
	return values
}
