package normalize

import "strings"

// SecurityType tags a CSE security by the board suffix embedded in its
// symbol, e.g. "LOLC.N0000" trades on the normal board.
type SecurityType string

const (
	NormalStock SecurityType = "NORMAL_STOCK"
	UnitTrust   SecurityType = "UNIT_TRUST"
	RightsIssue SecurityType = "RIGHTS_ISSUE"
	OffBoard    SecurityType = "OFF_BOARD"
	Other       SecurityType = "OTHER"
	Unknown     SecurityType = "UNKNOWN"
)

// Classify derives the security type from the symbol suffix. Checks run in
// fixed order and the first match wins; an empty symbol is Unknown. Classify
// is total: every input maps to exactly one type.
func Classify(symbol string) SecurityType {
	if symbol == "" {
		return Unknown
	}
	switch {
	case strings.Contains(symbol, ".U"):
		return UnitTrust
	case strings.Contains(symbol, ".R"):
		return RightsIssue
	case strings.Contains(symbol, ".X"):
		return OffBoard
	case strings.Contains(symbol, ".N"):
		return NormalStock
	default:
		return Other
	}
}
