package datasources

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/jpillora/backoff"
	cstream "github.com/planxnx/concurrent-stream"
	"github.com/runixlabs/runes-indexer/core/types"
	"github.com/runixlabs/runes-indexer/internal/subscription"
	"github.com/runixlabs/runes-indexer/pkg/logger"
	"github.com/runixlabs/runes-indexer/pkg/logger/slogx"
	"github.com/samber/lo"
)

// Make sure to implement the Datasource interface
var _ Datasource[*types.Block] = (*BitcoinNodeDatasource)(nil)

const (
	// fetchConcurrency is the number of parallel block fetch workers.
	fetchConcurrency = 8

	// fetchChunkSize is the number of block heights handled by one worker task.
	fetchChunkSize = 100

	// maxFetchAttempts bounds the retries of a single RPC call before the
	// error is surfaced to the indexer.
	maxFetchAttempts = 5
)

// BitcoinNodeDatasource fetches blocks from a Bitcoin Core compatible node
// over JSON-RPC.
type BitcoinNodeDatasource struct {
	client *rpcclient.Client
}

func NewBitcoinNode(client *rpcclient.Client) *BitcoinNodeDatasource {
	return &BitcoinNodeDatasource{client: client}
}

func (d *BitcoinNodeDatasource) Name() string {
	return "BitcoinNode"
}

// Fetch fetches the given block height range and blocks until it is complete.
func (d *BitcoinNodeDatasource) Fetch(ctx context.Context, from, to int64) ([]*types.Block, error) {
	ch := make(chan []*types.Block)
	subscription, err := d.FetchAsync(ctx, from, to, ch)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer subscription.Unsubscribe()

	blocks := make([]*types.Block, 0)
	for {
		select {
		case b := <-ch:
			blocks = append(blocks, b...)
		case <-subscription.Done():
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, "context done")
			}
			return blocks, nil
		case err := <-subscription.Err():
			if err != nil {
				return nil, errors.Wrap(err, "got error while fetch async")
			}
			return blocks, nil
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "context done")
		}
	}
}

// FetchAsync fetches the given block height range in the background, sending
// batches of consecutive blocks to ch in ascending height order.
func (d *BitcoinNodeDatasource) FetchAsync(ctx context.Context, from, to int64, ch chan<- []*types.Block) (*subscription.ClientSubscription[[]*types.Block], error) {
	from, to, skip, err := d.prepareRange(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare fetch range")
	}

	sub := subscription.New(ch)
	if skip {
		if err := sub.UnsubscribeWithContext(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to unsubscribe")
		}
		return sub.Client(), nil
	}

	heights := make([]int64, 0, to-from+1)
	for h := from; h <= to; h++ {
		heights = append(heights, h)
	}

	out := make(chan []*types.Block)
	stream := cstream.NewStream(ctx, fetchConcurrency, out)

	go func() {
		defer close(out)
		_ = stream.Wait()
	}()

	// fan-out fetched blocks to the subscription channel
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case blocks, ok := <-out:
				if !ok {
					return
				}
				if len(blocks) == 0 {
					continue
				}
				if err := sub.Send(ctx, blocks); err != nil {
					logger.ErrorContext(ctx, "failed while dispatching blocks", err,
						slogx.Int64("start", blocks[0].Header.Height),
						slogx.Int64("end", blocks[len(blocks)-1].Header.Height),
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// parallel fetch until all heights are done or the subscription is closed
	go func() {
		defer stream.Close()
		done := sub.Done()
		for _, chunk := range lo.Chunk(heights, fetchChunkSize) {
			chunk := chunk
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			default:
				stream.Go(func() []*types.Block {
					blocks, err := d.fetchBlocks(ctx, chunk)
					if err != nil {
						logger.ErrorContext(ctx, "failed to fetch blocks", err,
							slogx.Int64("from_height", chunk[0]),
							slogx.Int64("to_height", chunk[len(chunk)-1]),
						)
						if err := sub.SendError(ctx, errors.Wrapf(err, "failed to fetch blocks %d-%d", chunk[0], chunk[len(chunk)-1])); err != nil {
							logger.ErrorContext(ctx, "failed to send error to subscription", err)
						}
						return nil
					}
					return blocks
				})
			}
		}
	}()

	return sub.Client(), nil
}

// GetBlockHeader returns the block header at the given height.
func (d *BitcoinNodeDatasource) GetBlockHeader(ctx context.Context, height int64) (types.BlockHeader, error) {
	hash, err := withRetries(ctx, func() (*chainhash.Hash, error) {
		return d.client.GetBlockHash(height)
	})
	if err != nil {
		return types.BlockHeader{}, errors.Wrapf(err, "failed to get block hash, height: %d", height)
	}

	header, err := withRetries(ctx, func() (*wire.BlockHeader, error) {
		return d.client.GetBlockHeader(hash)
	})
	if err != nil {
		return types.BlockHeader{}, errors.Wrapf(err, "failed to get block header, hash: %s", hash)
	}

	return types.BlockHeader{
		Hash:       header.BlockHash(),
		Height:     height,
		Version:    header.Version,
		PrevBlock:  header.PrevBlock,
		MerkleRoot: header.MerkleRoot,
		Timestamp:  header.Timestamp,
		Bits:       header.Bits,
		Nonce:      header.Nonce,
	}, nil
}

// GetTransaction returns a confirmed transaction by hash, with BlockHeight
// and BlockHash populated from the containing block.
func (d *BitcoinNodeDatasource) GetTransaction(ctx context.Context, txHash chainhash.Hash) (*types.Transaction, error) {
	rawTx, err := withRetries(ctx, func() (*btcTxWithBlock, error) {
		verbose, err := d.client.GetRawTransactionVerbose(&txHash)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if verbose.BlockHash == "" {
			return nil, errors.New("transaction is not confirmed")
		}
		blockHash, err := chainhash.NewHashFromStr(verbose.BlockHash)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		blockHeader, err := d.client.GetBlockHeaderVerbose(blockHash)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		tx, err := d.client.GetRawTransaction(&txHash)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return &btcTxWithBlock{
			tx:          tx.MsgTx(),
			blockHash:   *blockHash,
			blockHeight: int64(blockHeader.Height),
		}, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get transaction, hash: %s", txHash)
	}
	return types.ParseMsgTx(rawTx.tx, rawTx.blockHeight, rawTx.blockHash, 0), nil
}

// GetBlockCount returns the current chain tip height.
func (d *BitcoinNodeDatasource) GetBlockCount(ctx context.Context) (int64, error) {
	count, err := withRetries(ctx, d.client.GetBlockCount)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get block count")
	}
	return count, nil
}

type btcTxWithBlock struct {
	tx          *wire.MsgTx
	blockHash   chainhash.Hash
	blockHeight int64
}

func (d *BitcoinNodeDatasource) fetchBlocks(ctx context.Context, heights []int64) ([]*types.Block, error) {
	blocks := make([]*types.Block, 0, len(heights))
	for _, height := range heights {
		height := height
		block, err := withRetries(ctx, func() (*wire.MsgBlock, error) {
			hash, err := d.client.GetBlockHash(height)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			return d.client.GetBlock(hash)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get block, height: %d", height)
		}
		blocks = append(blocks, types.ParseMsgBlock(block, height))
	}
	return blocks, nil
}

// prepareRange clamps the requested range to the current chain tip. skip is
// true when there is nothing to fetch this round.
func (d *BitcoinNodeDatasource) prepareRange(ctx context.Context, fromHeight, toHeight int64) (start, end int64, skip bool, err error) {
	start = fromHeight
	end = toHeight

	latestBlockHeight, err := d.GetBlockCount(ctx)
	if err != nil {
		return -1, -1, false, errors.Wrap(err, "failed to get block count")
	}

	if start < 0 {
		start = 0
	}
	if end < 0 || end > latestBlockHeight {
		end = latestBlockHeight
	}
	if start > end {
		return -1, -1, true, nil
	}
	return start, end, false, nil
}

// withRetries runs fn with bounded exponential backoff. Errors are surfaced
// after maxFetchAttempts so the indexer can decide whether to halt.
func withRetries[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	for {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if int(b.Attempt())+1 >= maxFetchAttempts {
			return zero, errors.WithStack(err)
		}
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return zero, errors.WithStack(ctx.Err())
		}
	}
}
