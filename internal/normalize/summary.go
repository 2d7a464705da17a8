package normalize

// SummaryFields holds the market-level metrics reconciled from the
// marketSummery endpoint. Each field resolves independently through its own
// priority list; a field absent under every known key stays at zero.
type SummaryFields struct {
	ASPIValue      float64 `json:"aspi_value"`
	SNPValue       float64 `json:"snp_value"`
	MarketTurnover float64 `json:"market_turnover"`
}

// Candidate key paths per logical quantity. The enveloped
// reqMarketSummery form is preferred; the flat short keys appear in older
// response variants.
var (
	aspiPaths     = []string{"reqMarketSummery.aspi.value", "asi"}
	snpPaths      = []string{"reqMarketSummery.snp.value", "snp"}
	turnoverPaths = []string{"reqMarketSummery.turnover", "turnover"}
)

// MarketSummary resolves the market-level fields from a marketSummery
// payload. A nil payload yields the zero value; resolution never fails.
func MarketSummary(payload interface{}) SummaryFields {
	return SummaryFields{
		ASPIValue:      ResolveFloat(payload, aspiPaths, 0),
		SNPValue:       ResolveFloat(payload, snpPaths, 0),
		MarketTurnover: ResolveFloat(payload, turnoverPaths, 0),
	}
}
