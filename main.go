package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/customeros/feedsync/config"
	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/server"
	"github.com/customeros/feedsync/services"
)

func main() {
	app := &cli.App{
		Name:  "feedsync",
		Usage: "feed connection and remote sync service",
		Commands: []*cli.Command{
			{
				Name:      "fetch",
				Usage:     "Fetch a feed and write its body to stdout",
				ArgsUsage: "<uri>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "etag", Usage: "validator from a previous fetch"},
					&cli.StringFlag{Name: "last-modified", Usage: "validator from a previous fetch"},
				},
				Action: fetch,
			},
			{
				Name:      "label",
				Usage:     "Print the title of a feed",
				ArgsUsage: "<uri>",
				Action:    label,
			},
			{
				Name:      "icon",
				Usage:     "Download the icon of the site behind a feed",
				ArgsUsage: "<uri>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "favicon.ico"},
				},
				Action: icon,
			},
			{
				Name:      "discover",
				Usage:     "Print the feed advertised by a page",
				ArgsUsage: "<uri>",
				Action:    discover,
			},
			{
				Name:  "login",
				Usage: "Store credentials for a site or the sync service",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Usage: "defaults to the sync service login URL"},
					&cli.StringFlag{Name: "realm"},
					&cli.StringFlag{Name: "username", Required: true, EnvVars: []string{"FEEDSYNC_USERNAME"}},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"FEEDSYNC_PASSWORD"}},
				},
				Action: login,
			},
			{
				Name:   "sync",
				Usage:  "Send all pending changes to the sync service",
				Action: syncOnce,
			},
			{
				Name:   "pending",
				Usage:  "List changes not yet acknowledged by the sync service",
				Action: pending,
			},
			{
				Name:  "daemon",
				Usage: "Run the sync service and the local API",
				Action: func(c *cli.Context) error {
					cfg, err := config.InitConfig()
					if err != nil {
						return err
					}
					srv, err := server.NewServer(cfg, nil)
					if err != nil {
						return errors.Wrap(err, "server setup failed")
					}
					return srv.Run()
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*services.Services, logger.Logger, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, err
	}
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	svcs, err := services.InitServices(cfg, appLogger, nil, services.NewLogPrompt(appLogger))
	if err != nil {
		return nil, nil, err
	}
	return svcs, appLogger, nil
}

func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func uriArg(c *cli.Context) (*url.URL, error) {
	if c.NArg() != 1 {
		return nil, errors.New("expected exactly one URI argument")
	}
	uri, err := url.Parse(c.Args().First())
	if err != nil {
		return nil, errors.Wrap(err, "invalid URI")
	}
	return uri, nil
}

func fetch(c *cli.Context) error {
	uri, err := uriArg(c)
	if err != nil {
		return err
	}
	svcs, _, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	props := &models.ConnectionProperties{
		ConditionalGet: models.NewConditionalGetToken(uri.String(), c.String("last-modified"), c.String("etag")),
	}
	s, err := svcs.Connection.OpenStream(ctx, uri, props)
	if feedErrors.IsNotModified(err) {
		fmt.Fprintln(os.Stderr, "not modified")
		return nil
	}
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(os.Stderr, "uri: %s\ncontent-type: %s\n", s.URI(), s.ContentType())
	if token := s.ConditionalGet(); token != nil {
		fmt.Fprintf(os.Stderr, "etag: %s\nlast-modified: %s\n", token.ETag, token.LastModified)
	}
	_, err = io.Copy(os.Stdout, s)
	return err
}

func label(c *cli.Context) error {
	uri, err := uriArg(c)
	if err != nil {
		return err
	}
	svcs, _, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	handler, err := svcs.Connection.GetHandler(uri)
	if err != nil {
		return err
	}
	title, err := handler.GetLabel(ctx, uri)
	if err != nil {
		return err
	}
	fmt.Println(title)
	return nil
}

func icon(c *cli.Context) error {
	uri, err := uriArg(c)
	if err != nil {
		return err
	}
	svcs, _, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	handler, err := svcs.Connection.GetHandler(uri)
	if err != nil {
		return err
	}
	data, err := handler.GetFeedIcon(ctx, uri)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("no icon found")
	}
	return os.WriteFile(c.String("out"), data, 0o644)
}

func discover(c *cli.Context) error {
	uri, err := uriArg(c)
	if err != nil {
		return err
	}
	svcs, _, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	handler, err := svcs.Connection.GetHandler(uri)
	if err != nil {
		return err
	}
	feed, err := handler.GetFeed(ctx, uri)
	if err != nil {
		return err
	}
	if feed == nil {
		return errors.New("no feed found")
	}
	fmt.Println(feed)
	return nil
}

func login(c *cli.Context) error {
	svcs, appLogger, err := setup()
	if err != nil {
		return err
	}

	var uri *url.URL
	if raw := c.String("uri"); raw != "" {
		uri, err = url.Parse(raw)
	} else {
		uri, err = svcs.Reader.Tokens().LoginURI()
	}
	if err != nil {
		return err
	}

	credential := models.Credential{Username: c.String("username"), Password: c.String("password")}
	if err := svcs.Credentials.SetAuthCredentials(uri, c.String("realm"), credential); err != nil {
		return err
	}
	appLogger.Infof("Stored credentials for %s", uri)
	return nil
}

func syncOnce(c *cli.Context) error {
	svcs, _, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	if err := svcs.SyncService.Start(ctx); err != nil {
		return err
	}
	syncErr := svcs.SyncService.Sync(ctx)
	if err := svcs.SyncService.Stop(context.Background(), false); err != nil {
		return err
	}
	if err := printJSON(svcs.SyncService.Status()); err != nil {
		return err
	}
	return syncErr
}

func pending(c *cli.Context) error {
	svcs, _, err := setup()
	if err != nil {
		return err
	}
	if err := svcs.SyncStore.Startup(c.Context); err != nil {
		return err
	}
	return printJSON(svcs.SyncStore.GetUncommittedItems())
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
