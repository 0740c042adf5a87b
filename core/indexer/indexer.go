package indexer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/core/datasources"
	"github.com/runixlabs/runes-indexer/core/types"
	"github.com/runixlabs/runes-indexer/pkg/logger"
	"github.com/runixlabs/runes-indexer/pkg/logger/slogx"
)

const (
	// maxReorgLookBack is the retained revert horizon. A fork point deeper
	// than this cannot be rolled back and requires a full resync.
	maxReorgLookBack = 1000

	// pollingInterval is the polling interval of the indexer worker.
	pollingInterval = 15 * time.Second
)

// Input is a unit of indexer input data tied to a block.
type Input interface {
	BlockHeader() types.BlockHeader
}

// Processor consumes indexer inputs and maintains the indexed state.
type Processor[T Input] interface {
	Name() string

	// Process atomically applies a batch of inputs to the indexed state.
	Process(ctx context.Context, inputs []T) error

	// CurrentBlock returns the latest indexed block header. Returns
	// errs.NotFound when nothing has been indexed yet.
	CurrentBlock(ctx context.Context) (types.BlockHeader, error)

	// GetIndexedBlock returns the indexed block header at the given height.
	GetIndexedBlock(ctx context.Context, height int64) (types.BlockHeader, error)

	// RevertData rolls indexed state back, removing all effects of blocks at
	// heights >= from.
	RevertData(ctx context.Context, from int64) error

	// Shutdown flushes and releases processor resources.
	Shutdown(ctx context.Context) error
}

// Indexer drives a Processor from a Datasource: poll, detect reorgs, revert,
// apply. One Indexer owns one processor's cursor.
type Indexer[T Input] struct {
	Processor    Processor[T]
	Datasource   datasources.Datasource[T]
	currentBlock types.BlockHeader

	started  atomic.Bool
	quitOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

func New[T Input](processor Processor[T], datasource datasources.Datasource[T]) *Indexer[T] {
	return &Indexer[T]{
		Processor:  processor,
		Datasource: datasource,

		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (i *Indexer[T]) Shutdown() error {
	return i.ShutdownWithContext(context.Background())
}

func (i *Indexer[T]) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return i.ShutdownWithContext(ctx)
}

func (i *Indexer[T]) ShutdownWithContext(ctx context.Context) (err error) {
	i.quitOnce.Do(func() {
		close(i.quit)
		if !i.started.Load() {
			// Run never started, nothing to drain
			return
		}
		select {
		case <-i.done:
		case <-time.After(180 * time.Second):
			err = errors.Wrap(errs.Timeout, "indexer shutdown timeout")
		case <-ctx.Done():
			err = errors.Wrap(ctx.Err(), "indexer shutdown context canceled")
		}
	})
	return
}

func (i *Indexer[T]) Run(ctx context.Context) (err error) {
	i.started.Store(true)
	defer close(i.done)

	ctx = logger.WithContext(ctx,
		slog.String("package", "indexer"),
		slog.String("processor", i.Processor.Name()),
		slog.String("datasource", i.Datasource.Name()),
	)

	// start from genesis block if no block have been indexed
	i.currentBlock, err = i.Processor.CurrentBlock(ctx)
	if err != nil {
		if !errors.Is(err, errs.NotFound) {
			return errors.Wrap(err, "can't init state, failed to get indexer current block")
		}
		i.currentBlock.Height = -1
	}

	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-i.quit:
			logger.InfoContext(ctx, "Got quit signal, stopping indexer")
			if err := i.Processor.Shutdown(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown processor", err)
				return errors.Wrap(err, "processor shutdown failed")
			}
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := i.process(ctx); err != nil {
				logger.ErrorContext(ctx, "Indexer failed while processing", err)
				return errors.Wrap(err, "process failed")
			}
			logger.DebugContext(ctx, "Waiting for next polling interval")
		}
	}
}

func (i *Indexer[T]) process(ctx context.Context) (err error) {
	from, to := i.currentBlock.Height+1, int64(-1)

	logger.InfoContext(ctx, "Start fetching input data", slog.Int64("from", from))
	ch := make(chan []T)
	subscription, err := i.Datasource.FetchAsync(ctx, from, to, ch)
	if err != nil {
		return errors.Wrap(err, "failed to fetch input data")
	}
	defer subscription.Unsubscribe()

	for {
		select {
		case <-i.quit:
			return nil
		case inputs := <-ch:
			if len(inputs) == 0 {
				continue
			}

			firstHeader := inputs[0].BlockHeader()
			lastHeader := inputs[len(inputs)-1].BlockHeader()

			startAt := time.Now()
			ctx := logger.WithContext(ctx,
				slogx.Int64("from", firstHeader.Height),
				slogx.Int64("to", lastHeader.Height),
			)

			// detect reorg against the first input of the batch
			if i.currentBlock.Height >= 0 && !firstHeader.PrevBlock.IsEqual(&i.currentBlock.Hash) {
				forkPoint, err := i.findForkPoint(ctx)
				if err != nil {
					return errors.Wrap(err, "failed to find fork point")
				}

				start := time.Now()
				logger.InfoContext(ctx, "Found reorg fork point, starting to revert data",
					slogx.String("event", "reorg_forkpoint"),
					slogx.Int64("since", forkPoint.Height+1),
					slogx.Int64("total_blocks", i.currentBlock.Height-forkPoint.Height),
				)
				if err := i.Processor.RevertData(ctx, forkPoint.Height+1); err != nil {
					return errors.Wrap(err, "failed to revert data")
				}

				// set cursor to the fork point and end this round to fetch again
				i.currentBlock = forkPoint
				logger.InfoContext(ctx, "Reverted reorganized blocks",
					slogx.Int64("current_block", i.currentBlock.Height),
					slogx.Duration("duration", time.Since(start)),
				)
				return nil
			}

			// validate that the batch itself is continuous
			for idx := 1; idx < len(inputs); idx++ {
				header := inputs[idx].BlockHeader()
				prevHeader := inputs[idx-1].BlockHeader()
				if header.Height != prevHeader.Height+1 {
					return errors.Wrapf(errs.InternalError, "input is not continuous, input[%d] height: %d, input[%d] height: %d", idx-1, prevHeader.Height, idx, header.Height)
				}
				if !header.PrevBlock.IsEqual(&prevHeader.Hash) {
					logger.WarnContext(ctx, "Chain reorganization occurred in the middle of batch fetching, ending round to fetch again")
					return nil
				}
			}

			ctx = logger.WithContext(ctx, slog.Int("total_inputs", len(inputs)))

			logger.InfoContext(ctx, "Processing inputs")
			if err := i.Processor.Process(ctx, inputs); err != nil {
				return errors.WithStack(err)
			}

			i.currentBlock = lastHeader

			logger.InfoContext(ctx, "Processed inputs successfully",
				slogx.String("event", "processed_inputs"),
				slogx.Int64("current_block", i.currentBlock.Height),
				slogx.Duration("duration", time.Since(startAt)),
			)
		case <-subscription.Done():
			// end current round
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "context done")
			}
			return nil
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case err := <-subscription.Err():
			if err != nil {
				return errors.Wrap(err, "got error while fetch async")
			}
		}
	}
}

// findForkPoint walks back from the current block comparing indexed headers
// against the datasource until both agree. Exceeding maxReorgLookBack returns
// errs.ReorgTooDeep, which is fatal.
func (i *Indexer[T]) findForkPoint(ctx context.Context) (types.BlockHeader, error) {
	logger.WarnContext(ctx, "Detected chain reorganization, searching for fork point",
		slogx.String("event", "reorg_detected"),
		slogx.Stringer("current_hash", i.currentBlock.Hash),
	)

	start := time.Now()
	targetHeight := i.currentBlock.Height
	for n := 0; n < maxReorgLookBack && targetHeight >= 0; n++ {
		indexedHeader, err := i.Processor.GetIndexedBlock(ctx, targetHeight)
		if err != nil {
			return types.BlockHeader{}, errors.Wrapf(err, "failed to get indexed block, height: %d", targetHeight)
		}

		remoteHeader, err := i.Datasource.GetBlockHeader(ctx, targetHeight)
		if err != nil {
			return types.BlockHeader{}, errors.Wrapf(err, "failed to get remote block header, height: %d", targetHeight)
		}

		if indexedHeader.Hash.IsEqual(&remoteHeader.Hash) {
			logger.InfoContext(ctx, "Found fork point",
				slogx.Int64("fork_point", targetHeight),
				slogx.Duration("search_duration", time.Since(start)),
			)
			return remoteHeader, nil
		}

		targetHeight -= 1
	}
	if targetHeight < 0 {
		// diverged all the way to genesis
		return types.BlockHeader{Height: -1}, nil
	}
	return types.BlockHeader{}, errors.Wrapf(errs.ReorgTooDeep, "no fork point within %d blocks", maxReorgLookBack)
}
