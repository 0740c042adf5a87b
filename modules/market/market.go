package market

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/runixlabs/runes-indexer/internal/clickhouse"
	"github.com/runixlabs/runes-indexer/internal/config"
	"github.com/runixlabs/runes-indexer/internal/postgres"
	markethttphandler "github.com/runixlabs/runes-indexer/modules/market/api/httphandler"
	marketclickhouse "github.com/runixlabs/runes-indexer/modules/market/repository/clickhouse"
	marketpostgres "github.com/runixlabs/runes-indexer/modules/market/repository/postgres"
	marketusecase "github.com/runixlabs/runes-indexer/modules/market/usecase"
	runespostgres "github.com/runixlabs/runes-indexer/modules/runes/repository/postgres"
	"github.com/runixlabs/runes-indexer/pkg/logger"
	"github.com/samber/do/v2"
)

// New wires the market module and mounts its API on the shared HTTP server.
// The returned cleanup function closes the module's connections.
func New(injector do.Injector) (func(context.Context) error, error) {
	ctx := do.MustInvoke[context.Context](injector)
	conf := do.MustInvoke[config.Config](injector)

	pg, err := postgres.NewPool(ctx, conf.Modules.Market.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, "can't create Postgres connection pool")
	}
	ch, err := clickhouse.New(ctx, conf.Modules.Market.ClickHouse)
	if err != nil {
		pg.Close()
		return nil, errors.Wrap(err, "can't connect to ClickHouse")
	}

	pairsRepo := marketpostgres.NewRepository(pg)
	pricesRepo := marketclickhouse.NewPriceTimeseriesStore(ch)
	runesRepo := runespostgres.NewRepository(pg)

	marketUsecase := marketusecase.New(pairsRepo, pricesRepo, runesRepo)
	httpHandler := markethttphandler.New(marketUsecase)

	httpServer := do.MustInvoke[*fiber.App](injector)
	if err := httpHandler.Mount(httpServer); err != nil {
		pg.Close()
		_ = ch.Close()
		return nil, errors.Wrap(err, "can't mount market API")
	}
	logger.InfoContext(ctx, "mounted market HTTP handler")

	return func(_ context.Context) error {
		pg.Close()
		return errors.WithStack(ch.Close())
	}, nil
}
