package syncservice

import (
	"context"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/interfaces"
	"github.com/customeros/feedsync/internal/enum"
	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/stream"
	"github.com/customeros/feedsync/services/events"
	"github.com/customeros/feedsync/services/reader"
	"github.com/customeros/feedsync/services/syncstore"
)

type fakeConnection struct {
	interfaces.ConnectionService

	mu       sync.Mutex
	uris     []*url.URL
	requests []url.Values
	// failAt is the 1-based request that fails with err; 0 fails all
	failAt int
	err    error
	// onRequest runs before each request is answered
	onRequest func()
}

func (f *fakeConnection) OpenStream(_ context.Context, uri *url.URL, props *models.ConnectionProperties) (*stream.Stream, error) {
	if f.onRequest != nil {
		f.onRequest()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uris = append(f.uris, uri)
	f.requests = append(f.requests, props.Parameters)
	if f.err != nil && (f.failAt == 0 || len(f.requests) == f.failAt) {
		return nil, f.err
	}
	return stream.New(io.NopCloser(strings.NewReader("OK")), stream.Options{URI: uri, ContentLength: 2})
}

func (f *fakeConnection) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type mockPrompt struct {
	mock.Mock
}

func (m *mockPrompt) PromptLogin(uri *url.URL, realm string) bool {
	args := m.Called(uri, realm)
	return args.Bool(0)
}

type fixture struct {
	service    *Service
	store      *syncstore.Store
	connection *fakeConnection
	prompt     *mockPrompt
	bus        *events.Bus
	path       string
}

func newFixture(t *testing.T, prefs map[string]string) *fixture {
	t.Helper()
	log := logger.NewNopLogger()
	f := &fixture{
		path:       filepath.Join(t.TempDir(), "syncitems.db"),
		connection: &fakeConnection{},
		prompt:     &mockPrompt{},
		bus:        events.NewBus(log),
	}
	values := map[string]string{
		config.PrefBatchDelay: "1h",
		config.PrefQuickDelay: "50ms",
		config.PrefPageSize:   "150",
	}
	for k, v := range prefs {
		values[k] = v
	}
	loginURI, _ := url.Parse("https://www.google.com/accounts/ClientLogin")
	f.store = syncstore.NewStore(f.path, log)
	f.service = NewService(f.connection, f.store, f.bus, f.prompt, loginURI, config.NewStaticPreferences(values), log)
	return f
}

func readItems(n int, streamID string) []models.SyncItem {
	items := make([]models.SyncItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, models.SyncItem{ID: "item-" + strconv.Itoa(i), StreamID: streamID, MarkedRead: true})
	}
	return items
}

func TestGroupItems_ByEquivalence(t *testing.T) {
	items := map[string]models.SyncItem{
		"c": {ID: "c", StreamID: "feed/1", Starred: true},
		"a": {ID: "a", StreamID: "feed/1", MarkedRead: true},
		"b": {ID: "b", StreamID: "feed/1", MarkedRead: true},
	}

	groups := GroupItems(items)
	require.Len(t, groups, 2)

	sizes := []int{len(groups[0].Items), len(groups[1].Items)}
	assert.ElementsMatch(t, []int{2, 1}, sizes)
}

func TestGroupItems_SplitsStreamsAndIgnoresLabelOrder(t *testing.T) {
	items := map[string]models.SyncItem{
		"a": {ID: "a", StreamID: "feed/1", AddedLabels: []string{"x", "y"}},
		"b": {ID: "b", StreamID: "feed/1", AddedLabels: []string{"y", "x"}},
		"c": {ID: "c", StreamID: "feed/2", AddedLabels: []string{"x", "y"}},
		"d": {ID: "d", StreamID: "feed/2"},
	}

	groups := GroupItems(items)
	require.Len(t, groups, 2)
	assert.Equal(t, "feed/1", groups[0].StreamID)
	assert.Len(t, groups[0].Items, 2)
	assert.Equal(t, "feed/2", groups[1].StreamID)
	assert.Len(t, groups[1].Items, 1)
}

func TestEditTagParameters(t *testing.T) {
	page := []models.SyncItem{
		{ID: "a", StreamID: "feed/1", MarkedUnread: true, Starred: true, AddedLabels: []string{"news"}},
		{ID: "b", StreamID: "feed/1", MarkedUnread: true, Starred: true, AddedLabels: []string{"news"}},
	}

	params := EditTagParameters(page)
	assert.Equal(t, []string{"a", "b"}, params["i"])
	assert.Equal(t, []string{"feed/1", "feed/1"}, params["s"])
	assert.Equal(t, []string{reader.TagKeptUnread, reader.TagStarred, reader.LabelTag("news")}, params["a"])
	assert.Equal(t, []string{reader.TagRead}, params["r"])
}

func TestSync_PaginatesEquivalentItems(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Startup(context.Background()))
	f.store.AddUncommitted(readItems(301, "feed/1")...)

	require.NoError(t, f.service.Sync(context.Background()))

	require.Len(t, f.connection.requests, 3)
	assert.Len(t, f.connection.requests[0]["i"], 150)
	assert.Len(t, f.connection.requests[1]["i"], 150)
	assert.Len(t, f.connection.requests[2]["i"], 1)
	for _, uri := range f.connection.uris {
		assert.Equal(t, "readers://reader/edit-tag", uri.String())
	}

	assert.True(t, f.store.IsEmpty())
	status := f.service.Status()
	assert.True(t, status.IsSuccess())
	assert.Equal(t, 301, status.ItemCount)
	assert.Equal(t, 301, status.TotalItemCount)
}

func TestSync_KeepsPartialProgress(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Startup(context.Background()))
	f.store.AddUncommitted(readItems(301, "feed/1")...)
	f.connection.failAt = 2
	f.connection.err = feedErrors.NewStatusError(503, "Service Unavailable")

	err := f.service.Sync(context.Background())
	require.Error(t, err)

	assert.Equal(t, 2, f.connection.requestCount())
	assert.Equal(t, 151, f.store.Len())
	status := f.service.Status()
	assert.False(t, status.IsSuccess())
	assert.Equal(t, "Connection error", status.Message)

	// persisted after the failed pass
	reloaded := syncstore.NewStore(f.path, logger.NewNopLogger())
	require.NoError(t, reloaded.Startup(context.Background()))
	assert.Equal(t, 151, reloaded.Len())
}

func TestSync_KeepsItemsChangedDuringRequest(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Startup(context.Background()))
	f.store.AddUncommitted(models.SyncItem{ID: "a", StreamID: "feed/1", MarkedRead: true})

	var once sync.Once
	f.connection.onRequest = func() {
		once.Do(func() {
			f.store.AddUncommitted(models.SyncItem{ID: "a", StreamID: "feed/1", Starred: true})
		})
	}

	require.NoError(t, f.service.Sync(context.Background()))
	items := f.store.GetUncommittedItems()
	require.Len(t, items, 1)
	assert.True(t, items["a"].Starred)
	assert.True(t, f.service.buffer.IsScheduled())

	require.NoError(t, f.service.Sync(context.Background()))
	require.Equal(t, 2, f.connection.requestCount())
	assert.Equal(t, []string{reader.TagRead, reader.TagStarred}, f.connection.requests[1]["a"])
	assert.True(t, f.store.IsEmpty())
}

func TestSync_AuthFailurePromptsLogin(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Startup(context.Background()))
	f.store.AddUncommitted(readItems(3, "feed/1")...)
	f.connection.err = &feedErrors.AuthenticationRequiredError{URI: "https://reader.example/edit-tag", Realm: "Reader"}
	f.prompt.On("PromptLogin", mock.Anything, "Reader").Return(true).Once()

	err := f.service.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, feedErrors.IsAuthenticationRequired(err))

	f.prompt.AssertExpectations(t)
	assert.Equal(t, 3, f.store.Len())
	assert.Equal(t, "Authentication required", f.service.Status().Message)
}

func TestSync_SinglePromptAtATime(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Startup(context.Background()))
	f.store.AddUncommitted(readItems(1, "feed/1")...)
	authErr := &feedErrors.AuthenticationRequiredError{URI: "https://reader.example/edit-tag", Realm: "Reader"}
	f.connection.err = authErr

	entered := make(chan struct{})
	release := make(chan struct{})
	f.prompt.On("PromptLogin", mock.Anything, "Reader").Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(false)

	done := make(chan error, 1)
	go func() { done <- f.service.Sync(context.Background()) }()
	<-entered

	// a second failure while the prompt is open is dropped
	f.service.handleFailure(authErr)

	close(release)
	require.Error(t, <-done)
	f.prompt.AssertNumberOfCalls(t, "PromptLogin", 1)
}

func TestSync_SyncConnectionErrorSetsStatus(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Startup(context.Background()))
	f.store.AddUncommitted(readItems(1, "feed/1")...)
	f.connection.err = errors.Wrap(&feedErrors.SyncConnectionError{Code: "CaptchaRequired", Message: "Captcha required"}, "edit-tag")

	require.Error(t, f.service.Sync(context.Background()))
	assert.Equal(t, "Captcha required", f.service.Status().Message)
	f.prompt.AssertNotCalled(t, "PromptLogin", mock.Anything, mock.Anything)
}

func TestSyncIfIdle(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Startup(context.Background()))

	require.NoError(t, f.service.SyncIfIdle(context.Background()))
	assert.Equal(t, 0, f.connection.requestCount())

	f.store.AddUncommitted(readItems(2, "feed/1")...)
	require.NoError(t, f.service.SyncIfIdle(context.Background()))
	assert.Equal(t, 1, f.connection.requestCount())
	assert.True(t, f.store.IsEmpty())
}

func TestService_EventsAreStoredAndSynced(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.service.Start(ctx))

	f.service.SetForceQuickUpdate()
	change := models.NewsChange{
		ItemID:       "tag:1",
		StreamID:     "feed/http://a/feed",
		Synchronized: true,
		Previous:     &models.NewsSnapshot{State: enum.NewsStateUnread},
		Current:      models.NewsSnapshot{State: enum.NewsStateRead},
	}
	require.NoError(t, f.bus.Publish(ctx, events.NewsUpdated, events.NewsUpdatedEvent{Changes: []models.NewsChange{change}}))

	assert.Equal(t, 1, f.store.Len())
	assert.Eventually(t, func() bool {
		return f.connection.requestCount() == 1 && f.store.IsEmpty()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.service.Stop(ctx, false))
}

func TestService_ForceQuickShortensOpenWindow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.service.Start(ctx))

	change := func(id string) models.NewsChange {
		return models.NewsChange{
			ItemID:       id,
			StreamID:     "feed/http://a/feed",
			Synchronized: true,
			Previous:     &models.NewsSnapshot{State: enum.NewsStateUnread},
			Current:      models.NewsSnapshot{State: enum.NewsStateRead},
		}
	}
	require.NoError(t, f.bus.Publish(ctx, events.NewsUpdated, events.NewsUpdatedEvent{Changes: []models.NewsChange{change("tag:1")}}))
	assert.Eventually(t, f.service.buffer.IsScheduled, time.Second, 5*time.Millisecond)

	f.service.SetForceQuickUpdate()
	require.NoError(t, f.bus.Publish(ctx, events.NewsUpdated, events.NewsUpdatedEvent{Changes: []models.NewsChange{change("tag:2")}}))

	assert.Eventually(t, func() bool {
		return f.connection.requestCount() == 1 && f.store.IsEmpty()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.service.Stop(ctx, false))
}

func TestService_FilterEventsAreStored(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.service.Start(ctx))

	payload := events.FilterAppliedEvent{
		Action: models.FilterAction{Kind: enum.FilterActionAddLabel, Label: "work"},
		News: []models.NewsRef{
			{ItemID: "a", StreamID: "feed/1", Synchronized: true},
			{ItemID: "b", StreamID: "feed/1", Synchronized: false},
		},
	}
	require.NoError(t, f.bus.Publish(ctx, events.FilterApplied, payload))

	items := f.store.GetUncommittedItems()
	require.Len(t, items, 1)
	assert.Equal(t, []string{"work"}, items["a"].AddedLabels)

	require.NoError(t, f.service.Stop(ctx, false))
}

func TestService_StopPersistsPendingItems(t *testing.T) {
	for _, emergency := range []bool{false, true} {
		t.Run("emergency="+strconv.FormatBool(emergency), func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			require.NoError(t, f.service.Start(ctx))

			f.service.HandleFilterAction(ctx, models.FilterAction{Kind: enum.FilterActionMarkStarred},
				[]models.NewsRef{{ItemID: "a", StreamID: "feed/1", Synchronized: true}})

			require.NoError(t, f.service.Stop(ctx, emergency))
			assert.Equal(t, 0, f.connection.requestCount())

			reloaded := syncstore.NewStore(f.path, logger.NewNopLogger())
			require.NoError(t, reloaded.Startup(ctx))
			items := reloaded.GetUncommittedItems()
			require.Len(t, items, 1)
			assert.True(t, items["a"].Starred)
		})
	}
}

func TestService_DisabledIgnoresChanges(t *testing.T) {
	f := newFixture(t, map[string]string{config.PrefSyncEnabled: "false"})
	ctx := context.Background()
	require.NoError(t, f.service.Start(ctx))

	f.service.HandleFilterAction(ctx, models.FilterAction{Kind: enum.FilterActionMarkRead},
		[]models.NewsRef{{ItemID: "a", StreamID: "feed/1", Synchronized: true}})

	assert.True(t, f.store.IsEmpty())
	require.NoError(t, f.service.Stop(ctx, false))
}
