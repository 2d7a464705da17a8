package normalize

// ExtractRecords absorbs the CSE API's inconsistency between bare-list and
// enveloped-object response styles. A payload that already is a sequence is
// returned as-is; a mapping carrying wrapperKey yields the wrapped sequence.
// Anything else yields an empty slice and ok=false so the caller can log the
// unrecognized shape at warning level.
func ExtractRecords(payload interface{}, wrapperKey string) ([]interface{}, bool) {
	switch t := payload.(type) {
	case []interface{}:
		return t, true
	case map[string]interface{}:
		wrapped, found := t[wrapperKey]
		if !found {
			return nil, false
		}
		records, isSeq := wrapped.([]interface{})
		if !isSeq {
			return nil, false
		}
		return records, true
	default:
		return nil, false
	}
}

// RecordField pulls a string field out of one extracted record. Records that
// are not mappings yield the empty string.
func RecordField(record interface{}, key string) string {
	m, ok := record.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// PriceListWrapper is the envelope key used by the todaySharePrice endpoint
// when it does not return a bare list.
const PriceListWrapper = "reqTodaySharePrice"

// ActiveSymbols lists the non-empty symbols present in a todaySharePrice
// payload, in record order.
func ActiveSymbols(payload interface{}) []string {
	records, _ := ExtractRecords(payload, PriceListWrapper)
	symbols := make([]string, 0, len(records))
	for _, rec := range records {
		if sym := RecordField(rec, "symbol"); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	return symbols
}
