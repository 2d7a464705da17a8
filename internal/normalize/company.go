package normalize

// CompanyRecord is one symbol's normalized per-cycle fields, derived from a
// companyInfoSummery response plus mover-list membership.
type CompanyRecord struct {
	Symbol           string       `json:"symbol"`
	CompanyName      string       `json:"company_name"`
	SecurityType     SecurityType `json:"security_type"`
	LastPrice        float64      `json:"last_price"`
	Change           float64      `json:"change"`
	ChangePercentage float64      `json:"change_percentage"`
	ShareVolume      float64      `json:"share_volume"`
	TradeCount       float64      `json:"trade_count"`
	Turnover         float64      `json:"stock_turnover"`
	MarketCap        float64      `json:"market_cap"`
	IsGainer         bool         `json:"is_gainer"`
	IsLoser          bool         `json:"is_loser"`
}

// CompanyFromInfo derives a CompanyRecord from a companyInfoSummery payload.
// The per-symbol data sits under the reqSymbolInfo envelope; every field is
// resolved tolerantly so partially populated pre-market responses still
// produce a usable record. ok is false when no symbol can be found at all.
func CompanyFromInfo(payload interface{}, gainers, losers map[string]bool) (CompanyRecord, bool) {
	symbol, _ := Resolve(payload, []string{"reqSymbolInfo.symbol", "symbol"}, "").(string)
	if symbol == "" {
		return CompanyRecord{}, false
	}

	name, _ := Resolve(payload, []string{"reqSymbolInfo.name", "name"}, "").(string)

	return CompanyRecord{
		Symbol:           symbol,
		CompanyName:      name,
		SecurityType:     Classify(symbol),
		LastPrice:        ResolveFloat(payload, []string{"reqSymbolInfo.lastTradedPrice", "lastTradedPrice"}, 0),
		Change:           ResolveFloat(payload, []string{"reqSymbolInfo.change", "change"}, 0),
		ChangePercentage: ResolveFloat(payload, []string{"reqSymbolInfo.changePercentage", "changePercentage"}, 0),
		ShareVolume:      ResolveFloat(payload, []string{"reqSymbolInfo.tdyShareVolume", "tdyShareVolume"}, 0),
		TradeCount:       ResolveFloat(payload, []string{"reqSymbolInfo.tdyTradeVolume", "tdyTradeVolume"}, 0),
		Turnover:         ResolveFloat(payload, []string{"reqSymbolInfo.tdyTurnover", "tdyTurnover"}, 0),
		MarketCap:        ResolveFloat(payload, []string{"reqSymbolInfo.marketCap", "marketCap"}, 0),
		IsGainer:         gainers[symbol],
		IsLoser:          losers[symbol],
	}, true
}

// MoverSet collects the symbols named by a topGainers/topLooses payload.
// Both the bare-list and enveloped shapes are accepted; an unrecognized
// shape yields an empty set.
func MoverSet(payload interface{}, wrapperKey string) map[string]bool {
	set := make(map[string]bool)
	records, _ := ExtractRecords(payload, wrapperKey)
	for _, rec := range records {
		if sym := RecordField(rec, "symbol"); sym != "" {
			set[sym] = true
		}
	}
	return set
}
