package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cseflow/internal/normalize"
	"cseflow/logger"
)

const referenceFile = "symbol_reference.json"

// SymbolEntry is the per-symbol descriptive metadata kept in the daily
// reference table.
type SymbolEntry struct {
	CompanyName string   `json:"company_name"`
	Sector      string   `json:"sector"`
	SectorIndex *float64 `json:"sector_index"`
}

type referenceTable struct {
	GeneratedAt string                 `json:"generated_at"`
	SymbolCount int                    `json:"symbol_count"`
	Symbols     map[string]SymbolEntry `json:"symbols"`
}

// Reference derives and persists the symbol reference table. Unlike the
// time-series artifacts the table is reconstructible from its inputs, so it
// is overwritten in place on every refresh and keeps no history.
type Reference struct {
	dir string
	log *logger.Log
}

func NewReference(dataDir, referenceDir string, log *logger.Log) *Reference {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Reference{dir: filepath.Join(dataDir, referenceDir), log: log}
}

// Build derives symbol -> metadata from the latest price and sector
// snapshots and overwrites the reference table file. The returned mapping
// lets the caller report the table size.
func (r *Reference) Build(priceSnapshot, sectorSnapshot interface{}, now time.Time) (map[string]SymbolEntry, error) {
	log := r.log.WithComponent("reference")

	symbols := make(map[string]SymbolEntry)

	priceRecords, ok := normalize.ExtractRecords(priceSnapshot, normalize.PriceListWrapper)
	if !ok {
		log.Warn("unrecognized price snapshot shape, building empty table")
	}
	for _, rec := range priceRecords {
		symbol := normalize.RecordField(rec, "symbol")
		if symbol == "" {
			continue
		}
		symbols[symbol] = SymbolEntry{
			CompanyName: normalize.RecordField(rec, "name"),
			Sector:      normalize.RecordField(rec, "sector"),
		}
	}

	// The sector pass is an enrichment point: the upstream data exposes no
	// symbol-to-sector join key today, so sector indices stay unset until
	// one appears. The records are still normalized so a future join slots
	// in here.
	sectorRecords, ok := normalize.ExtractRecords(sectorSnapshot, "reqAllSectors")
	if !ok {
		log.Warn("unrecognized sector snapshot shape")
	}
	_ = sectorRecords

	table := referenceTable{
		GeneratedAt: now.Format(time.RFC3339),
		SymbolCount: len(symbols),
		Symbols:     symbols,
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reference directory: %w", err)
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal reference table: %w", err)
	}
	path := filepath.Join(r.dir, referenceFile)
	if err := writeFileAtomic(path, data); err != nil {
		return nil, fmt.Errorf("persist reference table: %w", err)
	}

	log.WithFields(logger.Fields{"symbols": len(symbols), "path": path}).Info("symbol reference rebuilt")
	return symbols, nil
}

// Path reports the on-disk location of the reference table.
func (r *Reference) Path() string {
	return filepath.Join(r.dir, referenceFile)
}
