package services

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/interfaces"
	"github.com/customeros/feedsync/internal/cron"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/services/connection"
	"github.com/customeros/feedsync/services/credentials"
	"github.com/customeros/feedsync/services/events"
	"github.com/customeros/feedsync/services/httptransport"
	"github.com/customeros/feedsync/services/objectstore"
	"github.com/customeros/feedsync/services/reader"
	"github.com/customeros/feedsync/services/syncservice"
	"github.com/customeros/feedsync/services/syncstore"
)

type Services struct {
	Preferences *config.Preferences
	Bus         *events.Bus
	Credentials *credentials.Provider
	Connection  *connection.Registry
	HTTP        *httptransport.Handler
	Reader      *reader.Adapter
	ObjectStore *objectstore.Handler
	SyncStore   *syncstore.Store
	SyncService *syncservice.Service
	Cron        *cron.CronManager
}

// InitServices builds the connection layer and the sync pipeline. Nothing is
// started; callers decide which parts to run.
func InitServices(cfg *config.Config, log logger.Logger, parser interfaces.DocumentParser, prompt interfaces.LoginPrompt) (*Services, error) {
	dataDir := cfg.AppConfig.DataDir
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, errors.Wrapf(err, "failed to create data dir %s", dataDir)
		}
	}

	prefs := config.NewPreferences(cfg)
	bus := events.NewBus(log)

	// one provider serves every scheme
	provider := credentials.NewProvider(filepath.Join(dataDir, credentials.FileName), cfg.ProxyConfig, log)
	providers := make(map[string]interfaces.CredentialsProvider)
	for _, schemes := range [][]string{httptransport.Schemes, reader.Schemes, objectstore.Schemes} {
		for _, scheme := range schemes {
			providers[scheme] = provider
		}
	}
	credentialsRegistry := connection.NewCredentialsRegistry(providers)

	httpHandler := httptransport.NewHandler(cfg.HTTPConfig, credentialsRegistry, parser, prefs, log)
	tokens := reader.NewTokenSource(cfg.ReaderConfig, httpHandler, credentialsRegistry)
	readerAdapter := reader.NewAdapter(cfg.ReaderConfig, httpHandler, tokens, prefs, log)
	objectHandler := objectstore.NewHandler(cfg.S3Config, cfg.HTTPConfig.FallbackEncoding, credentialsRegistry, parser, prefs, log)

	registry := connection.NewRegistry(log,
		connection.WithCredentials(credentialsRegistry),
		connection.WithHandler(httpHandler, httptransport.Schemes...),
		connection.WithHandler(readerAdapter, reader.Schemes...),
		connection.WithHandler(objectHandler, objectstore.Schemes...),
	)
	bus.Subscribe(registry)

	loginURI, err := tokens.LoginURI()
	if err != nil {
		return nil, err
	}

	store := syncstore.NewStore(filepath.Join(dataDir, cfg.SyncConfig.StoreFile), log)
	syncService := syncservice.NewService(registry, store, bus, prompt, loginURI, prefs, log)

	return &Services{
		Preferences: prefs,
		Bus:         bus,
		Credentials: provider,
		Connection:  registry,
		HTTP:        httpHandler,
		Reader:      readerAdapter,
		ObjectStore: objectHandler,
		SyncStore:   store,
		SyncService: syncService,
		Cron:        cron.NewCronManager(cfg, log, syncService),
	}, nil
}
