package usecase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
	"github.com/runixlabs/runes-indexer/common"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/modules/runes/datagateway"
	"github.com/runixlabs/runes-indexer/modules/runes/ramcache"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
)

const (
	entryCacheTTL = 10 * time.Second

	defaultListLimit = 20
	maxListLimit     = 500
)

type Usecase struct {
	runesDg          datagateway.RunesDataGateway
	network          common.Network
	entryByNameCache *ramcache.Cache[*runes.RuneEntry]
}

func New(runesDg datagateway.RunesDataGateway, network common.Network) *Usecase {
	return &Usecase{
		runesDg:          runesDg,
		network:          network,
		entryByNameCache: ramcache.New[*runes.RuneEntry](entryCacheTTL),
	}
}

type Status struct {
	Network common.Network
	Height  int64
	Hash    chainhash.Hash
}

func (u *Usecase) GetStatus(ctx context.Context) (Status, error) {
	header, err := u.runesDg.GetLatestBlock(ctx)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return Status{Network: u.network, Height: -1}, nil
		}
		return Status{}, errors.Wrap(err, "can't get latest block")
	}
	return Status{
		Network: u.network,
		Height:  header.Height,
		Hash:    header.Hash,
	}, nil
}

// resolveReadHeight resolves the checkpoint height a request's reads are
// pinned to. Every query of a single request runs against this height, so a
// block committed mid-request never mixes two ledger states into one
// response. Returns 0 when nothing has been indexed yet.
func (u *Usecase) resolveReadHeight(ctx context.Context) (uint64, error) {
	header, err := u.runesDg.GetLatestBlock(ctx)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "can't get latest block")
	}
	if header.Height < 0 {
		return 0, nil
	}
	return uint64(header.Height), nil
}

// GetRuneEntry resolves a rune by id ("840000:6") or by name, with or
// without spacers.
func (u *Usecase) GetRuneEntry(ctx context.Context, query string) (*runes.RuneEntry, error) {
	height, err := u.resolveReadHeight(ctx)
	if err != nil {
		return nil, err
	}

	if runeId, err := runes.NewRuneIdFromString(query); err == nil {
		entry, err := u.runesDg.GetRuneEntryByRuneIdAndHeight(ctx, runeId, height)
		if err != nil {
			return nil, errors.Wrap(err, "can't get rune entry by id")
		}
		return entry, nil
	}

	spacedRune, err := runes.NewSpacedRuneFromString(strings.ToUpper(query))
	if err != nil {
		return nil, errors.WithStack(errs.WithPublicMessage(errors.Join(err, errs.InvalidArgument), "invalid rune id or name"))
	}

	// the cache key carries the checkpoint height so a committed block
	// always invalidates stale entries
	cacheKey := spacedRune.Rune.String() + "@" + strconv.FormatUint(height, 10)

	return u.entryByNameCache.GetOrFetch(ctx, cacheKey, func(ctx context.Context) (*runes.RuneEntry, error) {
		runeId, err := u.runesDg.GetRuneIdFromRune(ctx, spacedRune.Rune)
		if err != nil {
			return nil, errors.Wrap(err, "can't get rune id by name")
		}
		entry, err := u.runesDg.GetRuneEntryByRuneIdAndHeight(ctx, runeId, height)
		if err != nil {
			return nil, errors.Wrap(err, "can't get rune entry by id")
		}
		return entry, nil
	})
}

// SearchRuneEntries matches rune names by case-normalized prefix.
func (u *Usecase) SearchRuneEntries(ctx context.Context, prefix string, limit int32) ([]*runes.RuneEntry, error) {
	height, err := u.resolveReadHeight(ctx)
	if err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)
	entries, err := u.runesDg.GetRuneEntries(ctx, datagateway.ListRuneEntriesParams{
		Search: normalizeName(prefix),
		Height: height,
		Limit:  limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't search rune entries")
	}
	return entries, nil
}

type ListRuneEntriesParams struct {
	Search string
	// Page is 1-based. Ignored when Cursor is set.
	Page  int32
	Limit int32
	// Cursor is the rune id of the last entry of the previous page.
	Cursor    *runes.RuneId
	OrderDesc bool
}

type ListRuneEntriesResult struct {
	Entries      []*runes.RuneEntry
	Page         int32
	Limit        int32
	Offset       int32
	TotalRecords int64
	HasMore      bool
	NextCursor   *runes.RuneId
}

// ListRuneEntries pages the rune listing. With a cursor, pages are keyed by
// the last-returned rune id so concurrent etchings never shift rows that
// were already paged past.
func (u *Usecase) ListRuneEntries(ctx context.Context, params ListRuneEntriesParams) (*ListRuneEntriesResult, error) {
	limit := normalizeLimit(params.Limit)
	search := normalizeName(params.Search)

	height, err := u.resolveReadHeight(ctx)
	if err != nil {
		return nil, err
	}

	if params.Cursor != nil {
		if params.OrderDesc {
			return nil, errors.WithStack(errs.WithPublicMessage(errs.InvalidArgument, "cursor pagination does not support descending order"))
		}
		return u.listByCursor(ctx, search, height, *params.Cursor, limit)
	}

	page := params.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	listParams := datagateway.ListRuneEntriesParams{
		Search:    search,
		Height:    height,
		Limit:     limit + 1,
		Offset:    offset,
		OrderDesc: params.OrderDesc,
	}
	entries, err := u.runesDg.GetRuneEntries(ctx, listParams)
	if err != nil {
		return nil, errors.Wrap(err, "can't list rune entries")
	}
	total, err := u.runesDg.CountRuneEntries(ctx, datagateway.ListRuneEntriesParams{Search: search, Height: height})
	if err != nil {
		return nil, errors.Wrap(err, "can't count rune entries")
	}

	hasMore := len(entries) > int(limit)
	if hasMore {
		entries = entries[:limit]
	}
	result := &ListRuneEntriesResult{
		Entries:      entries,
		Page:         page,
		Limit:        limit,
		Offset:       offset,
		TotalRecords: total,
		HasMore:      hasMore,
	}
	if hasMore && !params.OrderDesc && len(entries) > 0 {
		last := entries[len(entries)-1].RuneId
		result.NextCursor = &last
	}
	return result, nil
}

func (u *Usecase) listByCursor(ctx context.Context, search string, height uint64, cursor runes.RuneId, limit int32) (*ListRuneEntriesResult, error) {
	entries, err := u.runesDg.GetRuneEntries(ctx, datagateway.ListRuneEntriesParams{
		Search:      search,
		AfterRuneId: &cursor,
		Height:      height,
		Limit:       limit + 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't list rune entries")
	}
	total, err := u.runesDg.CountRuneEntries(ctx, datagateway.ListRuneEntriesParams{Search: search, Height: height})
	if err != nil {
		return nil, errors.Wrap(err, "can't count rune entries")
	}

	hasMore := len(entries) > int(limit)
	if hasMore {
		entries = entries[:limit]
	}
	result := &ListRuneEntriesResult{
		Entries:      entries,
		Limit:        limit,
		TotalRecords: total,
		HasMore:      hasMore,
	}
	if hasMore && len(entries) > 0 {
		last := entries[len(entries)-1].RuneId
		result.NextCursor = &last
	}
	return result, nil
}

func normalizeLimit(limit int32) int32 {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// normalizeName uppercases a rune name query and strips separator glyphs so
// spaced and bare forms match the same entries.
func normalizeName(name string) string {
	name = strings.ToUpper(name)
	name = strings.ReplaceAll(name, "•", "")
	name = strings.ReplaceAll(name, ".", "")
	return name
}
