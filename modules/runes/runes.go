package runes

import (
	"context"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/runixlabs/runes-indexer/core"
	"github.com/runixlabs/runes-indexer/core/datasources"
	"github.com/runixlabs/runes-indexer/core/indexer"
	"github.com/runixlabs/runes-indexer/internal/config"
	"github.com/runixlabs/runes-indexer/internal/postgres"
	runeshttphandler "github.com/runixlabs/runes-indexer/modules/runes/api/httphandler"
	runespostgres "github.com/runixlabs/runes-indexer/modules/runes/repository/postgres"
	runesusecase "github.com/runixlabs/runes-indexer/modules/runes/usecase"
	"github.com/runixlabs/runes-indexer/pkg/logger"
	"github.com/samber/do/v2"
)

// New assembles the runes indexing worker and mounts its API on the shared
// HTTP server.
func New(injector do.Injector) (core.IndexerWorker, error) {
	ctx := do.MustInvoke[context.Context](injector)
	conf := do.MustInvoke[config.Config](injector)

	pg, err := postgres.NewPool(ctx, conf.Modules.Runes.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, "can't create Postgres connection pool")
	}
	repo := runespostgres.NewRepository(pg)

	btcClient := do.MustInvoke[*rpcclient.Client](injector)
	bitcoinDatasource := datasources.NewBitcoinNode(btcClient)

	processor := NewProcessor(repo, repo, bitcoinDatasource, conf.Network, func(_ context.Context) error {
		pg.Close()
		return nil
	})
	if err := processor.VerifyStates(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	httpServer := do.MustInvoke[*fiber.App](injector)
	runesUsecase := runesusecase.New(repo, conf.Network)
	httpHandler := runeshttphandler.New(conf.Network, runesUsecase)
	if err := httpHandler.Mount(httpServer); err != nil {
		return nil, errors.Wrap(err, "can't mount runes API")
	}
	logger.InfoContext(ctx, "mounted runes HTTP handler")

	return indexer.New(processor, bitcoinDatasource), nil
}
