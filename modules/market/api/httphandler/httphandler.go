package httphandler

import (
	"github.com/runixlabs/runes-indexer/modules/market/usecase"
)

type HttpHandler struct {
	usecase *usecase.Usecase
}

func New(usecase *usecase.Usecase) *HttpHandler {
	return &HttpHandler{
		usecase: usecase,
	}
}

type pairRecord struct {
	Id           int64  `json:"id"`
	Base         string `json:"base"`
	BaseRuneId   string `json:"base_rune_id"`
	Quote        string `json:"quote"`
	Price        string `json:"price"`
	ReversePrice string `json:"reverse_price"`
	Volume       string `json:"volume"`
	CreatedAt    int64  `json:"created_at"`
}

func newPairRecord(info *usecase.PairInfo) pairRecord {
	return pairRecord{
		Id:           info.Pair.Id,
		Base:         info.BaseEntry.SpacedRune.String(),
		BaseRuneId:   info.Pair.BaseRuneId.String(),
		Quote:        info.Pair.QuoteAsset,
		Price:        info.Pair.Price().String(),
		ReversePrice: info.Pair.ReversePrice().String(),
		Volume:       info.Pair.LatestVolume.String(),
		CreatedAt:    info.Pair.CreatedAt.Unix(),
	}
}

func newPairRecords(infos []*usecase.PairInfo) []pairRecord {
	records := make([]pairRecord, 0, len(infos))
	for _, info := range infos {
		records = append(records, newPairRecord(info))
	}
	return records
}
