package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/core"
	"github.com/runixlabs/runes-indexer/internal/config"
	"github.com/runixlabs/runes-indexer/modules/market"
	"github.com/runixlabs/runes-indexer/modules/runes"
	"github.com/runixlabs/runes-indexer/pkg/automaxprocs"
	"github.com/runixlabs/runes-indexer/pkg/errorhandler"
	"github.com/runixlabs/runes-indexer/pkg/logger"
	"github.com/runixlabs/runes-indexer/pkg/logger/slogx"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

// Modules registers the lazily-constructed indexer workers.
var Modules = do.Package(
	do.LazyNamed("runes", runes.New),
)

const shutdownTimeout = 60 * time.Second

func NewRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the indexer and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := automaxprocs.Init(); err != nil {
				logger.Error("failed to set GOMAXPROCS", slogx.Error(err))
			}
			return runHandler(cmd, args)
		},
	}

	flags := runCmd.Flags()
	flags.Bool("api-only", false, "serve the API without running the indexing worker")
	flags.Bool("market", false, "enable the market module")

	config.BindPFlag("modules.runes.api_only", flags.Lookup("api-only"))
	config.BindPFlag("modules.market.enabled", flags.Lookup("market"))

	return runCmd
}

func runHandler(cmd *cobra.Command, _ []string) error {
	conf := config.Load()

	if !conf.Network.IsSupported() {
		return errors.Wrapf(errs.Unsupported, "%q network is not supported", conf.Network.String())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	injector := do.New(Modules)
	do.ProvideValue(injector, conf)
	do.ProvideValue(injector, ctx)

	do.Provide(injector, func(i do.Injector) (*rpcclient.Client, error) {
		conf := do.MustInvoke[config.Config](i)

		client, err := rpcclient.New(&rpcclient.ConnConfig{
			Host:         conf.BitcoinNode.Host,
			User:         conf.BitcoinNode.User,
			Pass:         conf.BitcoinNode.Pass,
			DisableTLS:   conf.BitcoinNode.DisableTLS,
			HTTPPostMode: true,
		}, nil)
		if err != nil {
			return nil, errors.Wrap(err, "invalid Bitcoin node configuration")
		}

		start := time.Now()
		logger.InfoContext(ctx, "connecting to Bitcoin Core RPC server", slogx.String("host", conf.BitcoinNode.Host))
		if err := client.Ping(); err != nil {
			return nil, errors.Wrapf(err, "can't connect to Bitcoin Core RPC server %q", conf.BitcoinNode.Host)
		}
		logger.InfoContext(ctx, "connected to Bitcoin Core RPC server", slog.Duration("latency", time.Since(start)))

		return client, nil
	})

	do.Provide(injector, func(i do.Injector) (*fiber.App, error) {
		app := fiber.New(fiber.Config{
			AppName:      "Runes Indexer",
			ErrorHandler: errorhandler.NewHTTPErrorHandler(),
		})
		app.
			Use(favicon.New()).
			Use(cors.New()).
			Use(requestid.New()).
			Use(fiberrecover.New(fiberrecover.Config{
				EnableStackTrace: true,
				StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
					buf := make([]byte, 1024)
					buf = buf[:runtime.Stack(buf, false)]
					logger.ErrorContext(c.UserContext(), "panic in http handler", errors.Errorf("%v", e), slog.String("stacktrace", string(buf)))
				},
			})).
			Use(compress.New(compress.Config{
				Level: compress.LevelDefault,
			}))

		// health check
		app.Get("/", func(c *fiber.Ctx) error {
			return errors.WithStack(c.SendStatus(http.StatusOK))
		})

		return app, nil
	})

	// Worker context is separate from the main process context so a stopped
	// worker can shut the whole application down.
	ctxWorker, stopWorker := context.WithCancel(logger.WithContext(context.Background(), slogx.Stringer("network", conf.Network)))
	defer stopWorker()

	{
		moduleCtx := logger.WithContext(ctxWorker, slogx.String("module", "runes"))
		worker, err := do.InvokeNamed[core.IndexerWorker](injector, "runes")
		if err != nil {
			return errors.Wrap(err, "can't init runes module")
		}
		if !conf.Modules.Runes.APIOnly {
			go func() {
				// stop main process if the worker stops
				defer stop()

				logger.InfoContext(moduleCtx, "starting indexer worker")
				if err := worker.Run(moduleCtx); err != nil {
					logger.PanicContext(moduleCtx, "error during running indexer", slogx.Error(err))
				}
			}()
		}
	}

	var marketCleanup func(context.Context) error
	if conf.Modules.Market.Enabled {
		cleanup, err := market.New(injector)
		if err != nil {
			return errors.Wrap(err, "can't init market module")
		}
		marketCleanup = cleanup
	}

	httpServer := do.MustInvoke[*fiber.App](injector)
	go func() {
		// stop main process if the API server stops
		defer stop()

		logger.InfoContext(ctx, "started HTTP server", slog.Int("port", conf.HTTPServer.Port))
		if err := httpServer.Listen(fmt.Sprintf(":%d", conf.HTTPServer.Port)); err != nil {
			logger.PanicContext(ctx, "error during running HTTP server", slogx.Error(err))
		}
	}()

	go func() {
		<-ctxWorker.Done()
		defer stop()

		logger.InfoContext(ctx, "indexer worker stopped, stopping application")
	}()

	logger.InfoContext(ctxWorker, "indexer started")

	<-ctx.Done()

	// Force shutdown if the timeout is exceeded or a second signal arrives.
	go func() {
		defer os.Exit(1)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		select {
		case <-ctx.Done():
			logger.FatalContext(ctx, "received exit signal again, force shutdown")
		case <-time.After(shutdownTimeout + 15*time.Second):
			logger.FatalContext(ctx, "shutdown timeout exceeded, force shutdown")
		}
	}()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.ShutdownWithContext(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "failed to shut down HTTP server", err)
	}
	if marketCleanup != nil {
		if err := marketCleanup(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "failed to shut down market module", err)
		}
	}
	if err := injector.Shutdown(); err != nil {
		logger.Panic("failed while gracefully shutting down", slogx.Error(err))
	}

	return nil
}
