package store

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cseflow/internal/normalize"
	"cseflow/logger"
)

const (
	legacyCSVFile  = "cse_market_data.csv"
	legacyJSONFile = "cse_market_snapshot.json"
)

// legacyColumns is the fixed column order consumed by pre-existing readers
// of the flat CSV history. Do not reorder.
var legacyColumns = []string{
	"timestamp",
	"symbol",
	"company_name",
	"security_type",
	"last_price",
	"change",
	"change_percentage",
	"share_volume",
	"trade_count",
	"stock_turnover",
	"market_cap",
	"is_gainer",
	"is_loser",
	"aspi_value",
	"snp_value",
	"market_turnover",
}

// LatestSnapshot is the overwritten "current state" artifact kept alongside
// the CSV history for legacy consumers.
type LatestSnapshot struct {
	Timestamp     string                    `json:"timestamp"`
	MarketSummary normalize.SummaryFields   `json:"market_summary"`
	Gainers       []string                  `json:"gainers"`
	Losers        []string                  `json:"losers"`
	Sectors       interface{}               `json:"sectors"`
	Companies     []normalize.CompanyRecord `json:"companies"`
}

// Legacy maintains the backward-compatible flat outputs: an append-only CSV
// history and a single overwritten JSON snapshot of the latest cycle.
type Legacy struct {
	csvPath  string
	jsonPath string
	log      *logger.Log
}

// NewLegacy prepares the legacy writer, creating the CSV with its header row
// when it does not exist yet.
func NewLegacy(dataDir string, log *logger.Log) (*Legacy, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	l := &Legacy{
		csvPath:  filepath.Join(dataDir, legacyCSVFile),
		jsonPath: filepath.Join(dataDir, legacyJSONFile),
		log:      log,
	}

	if _, err := os.Stat(l.csvPath); os.IsNotExist(err) {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(legacyColumns); err != nil {
			return nil, fmt.Errorf("encode csv header: %w", err)
		}
		w.Flush()
		if err := os.WriteFile(l.csvPath, buf.Bytes(), 0o644); err != nil {
			return nil, fmt.Errorf("create csv history: %w", err)
		}
		log.WithComponent("legacy").WithFields(logger.Fields{"path": l.csvPath}).Info("created csv history file")
	} else if err != nil {
		return nil, fmt.Errorf("stat csv history: %w", err)
	}

	return l, nil
}

// AppendRows appends one CSV row per company record. Rows for the whole
// cycle are serialized first and written with a single append, so an I/O
// failure appends nothing rather than a partial cycle.
func (l *Legacy) AppendRows(ts time.Time, summary normalize.SummaryFields, records []normalize.CompanyRecord) error {
	if len(records) == 0 {
		l.log.WithComponent("legacy").Warn("no company records to append")
		return nil
	}

	stamp := ts.Format(time.RFC3339)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, rec := range records {
		row := []string{
			stamp,
			rec.Symbol,
			rec.CompanyName,
			string(rec.SecurityType),
			formatFloat(rec.LastPrice),
			formatFloat(rec.Change),
			formatFloat(rec.ChangePercentage),
			formatFloat(rec.ShareVolume),
			formatFloat(rec.TradeCount),
			formatFloat(rec.Turnover),
			formatFloat(rec.MarketCap),
			strconv.FormatBool(rec.IsGainer),
			strconv.FormatBool(rec.IsLoser),
			formatFloat(summary.ASPIValue),
			formatFloat(summary.SNPValue),
			formatFloat(summary.MarketTurnover),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("encode csv row for %s: %w", rec.Symbol, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode csv rows: %w", err)
	}

	f, err := os.OpenFile(l.csvPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open csv history: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append csv rows: %w", err)
	}

	l.log.WithComponent("legacy").WithFields(logger.Fields{"rows": len(records)}).Debug("appended csv rows")
	return nil
}

// WriteLatest overwrites the consolidated latest-snapshot artifact.
func (l *Legacy) WriteLatest(snapshot LatestSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal latest snapshot: %w", err)
	}
	if err := writeFileAtomic(l.jsonPath, data); err != nil {
		return fmt.Errorf("persist latest snapshot: %w", err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
