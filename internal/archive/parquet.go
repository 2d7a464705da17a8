// Package archive writes per-cycle company rows as parquet files, a
// columnar companion to the JSON time series for bulk analytical reads.
package archive

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"cseflow/internal/normalize"
	"cseflow/logger"
)

// CompanyRow is the parquet schema for one company in one cycle.
type CompanyRow struct {
	BatchID          string  `parquet:"name=batch_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp        int64   `parquet:"name=timestamp, type=INT64"`
	Symbol           string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	CompanyName      string  `parquet:"name=company_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	SecurityType     string  `parquet:"name=security_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastPrice        float64 `parquet:"name=last_price, type=DOUBLE"`
	Change           float64 `parquet:"name=change, type=DOUBLE"`
	ChangePercentage float64 `parquet:"name=change_percentage, type=DOUBLE"`
	ShareVolume      float64 `parquet:"name=share_volume, type=DOUBLE"`
	TradeCount       float64 `parquet:"name=trade_count, type=DOUBLE"`
	Turnover         float64 `parquet:"name=stock_turnover, type=DOUBLE"`
	MarketCap        float64 `parquet:"name=market_cap, type=DOUBLE"`
	IsGainer         bool    `parquet:"name=is_gainer, type=BOOLEAN"`
	IsLoser          bool    `parquet:"name=is_loser, type=BOOLEAN"`
}

// memoryFile implements source.ParquetFile over a byte buffer so the file is
// assembled in memory and flushed to disk in one atomic rename.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (mf *memoryFile) Create(name string) (source.ParquetFile, error) { return mf, nil }
func (mf *memoryFile) Open(name string) (source.ParquetFile, error)   { return mf, nil }

func (mf *memoryFile) Seek(offset int64, whence int) (int64, error) {
	// Writing is sequential; Seek only needs to report the current size.
	return int64(mf.buffer.Len()), nil
}

func (mf *memoryFile) Read(b []byte) (int, error)  { return mf.buffer.Read(b) }
func (mf *memoryFile) Write(b []byte) (int, error) { return mf.buffer.Write(b) }
func (mf *memoryFile) Close() error                { return nil }
func (mf *memoryFile) Bytes() []byte               { return mf.buffer.Bytes() }

// CompanyArchive writes one parquet file per cycle under
// <dataDir>/archive/.
type CompanyArchive struct {
	dir         string
	compression string
	log         *logger.Log
}

func NewCompanyArchive(dataDir, compression string, log *logger.Log) *CompanyArchive {
	if log == nil {
		log = logger.GetLogger()
	}
	return &CompanyArchive{
		dir:         filepath.Join(dataDir, "archive"),
		compression: compression,
		log:         log,
	}
}

// WriteCycle persists the cycle's company records. Zero records is a logged
// no-op, mirroring the time-series rule that a cycle without data leaves no
// placeholder artifact.
func (a *CompanyArchive) WriteCycle(records []normalize.CompanyRecord, ts time.Time) error {
	log := a.log.WithComponent("archive")

	if len(records) == 0 {
		log.Debug("no company records, skipping archive")
		return nil
	}

	batchID := uuid.New().String()
	data, err := a.createParquetFile(batchID, records, ts)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	name := fmt.Sprintf("companies_%s.parquet", ts.Truncate(time.Minute).Format("2006-01-02T15-04Z0700"))
	path := filepath.Join(a.dir, name)

	tmp, err := os.CreateTemp(a.dir, ".parquet-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write parquet data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close parquet file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename parquet file: %w", err)
	}

	log.WithFields(logger.Fields{
		"batch_id":  batchID,
		"rows":      len(records),
		"file_size": len(data),
		"path":      path,
	}).Info("cycle archived")
	return nil
}

func (a *CompanyArchive) createParquetFile(batchID string, records []normalize.CompanyRecord, ts time.Time) ([]byte, error) {
	fw := newMemoryFile()

	pw, err := writer.NewParquetWriter(fw, new(CompanyRow), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch a.compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	stamp := ts.UnixMilli()
	for _, rec := range records {
		row := CompanyRow{
			BatchID:          batchID,
			Timestamp:        stamp,
			Symbol:           rec.Symbol,
			CompanyName:      rec.CompanyName,
			SecurityType:     string(rec.SecurityType),
			LastPrice:        rec.LastPrice,
			Change:           rec.Change,
			ChangePercentage: rec.ChangePercentage,
			ShareVolume:      rec.ShareVolume,
			TradeCount:       rec.TradeCount,
			Turnover:         rec.Turnover,
			MarketCap:        rec.MarketCap,
			IsGainer:         rec.IsGainer,
			IsLoser:          rec.IsLoser,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet row: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}
