package normalize

import "testing"

func TestExtractRecordsBareList(t *testing.T) {
	list := []interface{}{
		map[string]interface{}{"symbol": "LOLC.N0000"},
		map[string]interface{}{"symbol": "JKH.N0000"},
	}
	records, ok := ExtractRecords(list, PriceListWrapper)
	if !ok {
		t.Fatalf("bare list should be recognized")
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestExtractRecordsEnveloped(t *testing.T) {
	payload := map[string]interface{}{
		PriceListWrapper: []interface{}{
			map[string]interface{}{"symbol": "LOLC.N0000"},
		},
	}
	records, ok := ExtractRecords(payload, PriceListWrapper)
	if !ok || len(records) != 1 {
		t.Fatalf("expected 1 record, got %d (ok=%v)", len(records), ok)
	}
}

func TestExtractRecordsUnrecognized(t *testing.T) {
	cases := []struct {
		name    string
		payload interface{}
	}{
		{"missing wrapper key", map[string]interface{}{"other": []interface{}{}}},
		{"wrapper not a sequence", map[string]interface{}{PriceListWrapper: "oops"}},
		{"scalar payload", 42},
		{"nil payload", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			records, ok := ExtractRecords(tc.payload, PriceListWrapper)
			if ok {
				t.Fatalf("shape should not be recognized")
			}
			if len(records) != 0 {
				t.Fatalf("expected no records, got %d", len(records))
			}
		})
	}
}

func TestActiveSymbols(t *testing.T) {
	payload := map[string]interface{}{
		PriceListWrapper: []interface{}{
			map[string]interface{}{"symbol": "LOLC.N0000"},
			map[string]interface{}{"name": "no symbol here"},
			map[string]interface{}{"symbol": "JKH.N0000"},
		},
	}
	symbols := ActiveSymbols(payload)
	if len(symbols) != 2 || symbols[0] != "LOLC.N0000" || symbols[1] != "JKH.N0000" {
		t.Fatalf("unexpected symbols: %v", symbols)
	}
}
