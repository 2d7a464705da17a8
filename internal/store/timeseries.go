package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cseflow/logger"
)

// stampLayout is the minute-resolution ISO-8601 form used in artifact names.
// Colons are not filename-safe everywhere, so they become dashes; the zone
// offset keeps its explicit +0530.
const stampLayout = "2006-01-02T15-04Z0700"

// EndpointSnapshot wraps one endpoint payload with its capture metadata.
// Once written the artifact is never touched again.
type EndpointSnapshot struct {
	FetchedAt string      `json:"fetched_at"`
	Source    string      `json:"source"`
	Data      interface{} `json:"data"`
}

// TimeSeries persists one JSON artifact per (source, poll minute) under a
// per-source directory. The store is append-only: saves never rewrite or
// delete earlier artifacts.
type TimeSeries struct {
	dataDir string
	log     *logger.Log
}

func NewTimeSeries(dataDir string, log *logger.Log) *TimeSeries {
	if log == nil {
		log = logger.GetLogger()
	}
	return &TimeSeries{dataDir: dataDir, log: log}
}

// Save writes one snapshot artifact for source at ts and returns its path.
// A nil payload is a logged no-op returning an empty path: a failed fetch
// must never leave an empty placeholder on disk. Two saves in the same
// minute get distinct _2, _3... suffixes instead of colliding.
func (s *TimeSeries) Save(source string, payload interface{}, ts time.Time) (string, error) {
	log := s.log.WithComponent("timeseries").WithFields(logger.Fields{"source": source})

	if payload == nil {
		log.Debug("nil payload, skipping save")
		return "", nil
	}

	dir := filepath.Join(s.dataDir, source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create source directory %s: %w", dir, err)
	}

	snapshot := EndpointSnapshot{
		FetchedAt: ts.Format(time.RFC3339),
		Source:    source,
		Data:      payload,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot for %s: %w", source, err)
	}

	path, err := s.artifactPath(dir, source, ts)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("persist snapshot for %s: %w", source, err)
	}

	log.WithFields(logger.Fields{"path": path, "bytes": len(data)}).Debug("snapshot saved")
	return path, nil
}

// artifactPath derives the artifact name from the minute-truncated timestamp
// and resolves same-minute collisions with a numeric suffix.
func (s *TimeSeries) artifactPath(dir, source string, ts time.Time) (string, error) {
	stamp := ts.Truncate(time.Minute).Format(stampLayout)
	base := fmt.Sprintf("%s_%s", source, stamp)

	path := filepath.Join(dir, base+".json")
	for n := 2; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		if n > 1000 {
			return "", fmt.Errorf("too many artifacts for %s at %s", source, stamp)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.json", base, n))
	}
}

// RelPath reports an artifact path relative to the data root, the key form
// used when mirroring artifacts to object storage.
func (s *TimeSeries) RelPath(path string) string {
	rel, err := filepath.Rel(s.dataDir, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

