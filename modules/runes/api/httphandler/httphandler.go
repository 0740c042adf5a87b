package httphandler

import (
	"encoding/hex"

	"github.com/cockroachdb/errors"
	"github.com/runixlabs/runes-indexer/common"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
	"github.com/runixlabs/runes-indexer/modules/runes/usecase"
)

type HttpHandler struct {
	usecase *usecase.Usecase
	network common.Network
}

func New(network common.Network, usecase *usecase.Usecase) *HttpHandler {
	return &HttpHandler{
		usecase: usecase,
		network: network,
	}
}

// defaultSymbol is rendered for runes etched without a symbol.
const defaultSymbol = '¤'

type tokenRecord struct {
	Id           string  `json:"id"`
	Rune         string  `json:"rune"`
	DisplayName  string  `json:"display_name"`
	Symbol       string  `json:"symbol"`
	Block        uint64  `json:"block"`
	TxId         uint32  `json:"tx_id"`
	Mints        string  `json:"mints"`
	MaxSupply    string  `json:"max_supply"`
	Minted       string  `json:"minted"`
	Divisibility uint8   `json:"divisibility"`
	Turbo        bool    `json:"turbo"`
	EtchingTx    string  `json:"etching_tx"`
	CommitmentTx *string `json:"commitment_tx"`
	RawData      string  `json:"raw_data"`
	Timestamp    int64   `json:"timestamp"`
}

func newTokenRecord(entry *runes.RuneEntry) (tokenRecord, error) {
	maxSupply, err := entry.Supply()
	if err != nil {
		return tokenRecord{}, errors.Wrap(err, "can't calculate max supply")
	}
	minted, err := entry.MintedAmount()
	if err != nil {
		return tokenRecord{}, errors.Wrap(err, "can't calculate minted amount")
	}
	symbol := entry.Symbol
	if symbol == 0 {
		symbol = defaultSymbol
	}
	var commitmentTx *string
	if entry.CommitmentTxHash != nil {
		hash := entry.CommitmentTxHash.String()
		commitmentTx = &hash
	}

	return tokenRecord{
		Id:           entry.RuneId.String(),
		Rune:         entry.SpacedRune.Rune.String(),
		DisplayName:  entry.SpacedRune.String(),
		Symbol:       string(symbol),
		Block:        entry.RuneId.BlockHeight,
		TxId:         entry.RuneId.TxIndex,
		Mints:        entry.Mints.String(),
		MaxSupply:    maxSupply.String(),
		Minted:       minted.String(),
		Divisibility: entry.Divisibility,
		Turbo:        entry.Turbo,
		EtchingTx:    entry.EtchingTxHash.String(),
		CommitmentTx: commitmentTx,
		RawData:      hex.EncodeToString(entry.SpacedRune.Rune.Commitment()),
		Timestamp:    entry.EtchedAt.Unix(),
	}, nil
}

func newTokenRecords(entries []*runes.RuneEntry) ([]tokenRecord, error) {
	records := make([]tokenRecord, 0, len(entries))
	for _, entry := range entries {
		record, err := newTokenRecord(entry)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
