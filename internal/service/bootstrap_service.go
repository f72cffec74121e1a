package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"boincwatch/pkg/logger"
	"boincwatch/pkg/store/mysql"
)

// bootstrapDayKey is the sentinel date seeded rows are keyed under.
// It predates any real snapshot, so seeded credit only ever acts as
// the oldest boundary of a window, never as the latest reading.
const bootstrapDayKey = "19990101"

type bootstrapStore interface {
	HasProjectStats(ctx context.Context) (bool, error)
	UpsertProjectStats(ctx context.Context, stats *mysql.ProjectStats) error
}

// BootstrapService seeds historical project credit from a CSV export
// exactly once, before the first real snapshot exists.
type BootstrapService struct {
	repo     bootstrapStore
	projects identityResolver
	csvPath  string
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(repo bootstrapStore, projects identityResolver, csvPath string) *BootstrapService {
	return &BootstrapService{repo: repo, projects: projects, csvPath: csvPath}
}

// SeedFromCSV imports the configured CSV when the project stats table
// is still empty. A no-op when no path is configured or data already
// exists.
func (s *BootstrapService) SeedFromCSV(ctx context.Context) error {
	if s.csvPath == "" {
		return nil
	}
	exists, err := s.repo.HasProjectStats(ctx)
	if err != nil {
		return err
	}
	if exists {
		logger.DebugCtx(ctx, "project stats already present, skipping bootstrap import")
		return nil
	}

	f, err := os.Open(s.csvPath)
	if err != nil {
		return fmt.Errorf("failed to open bootstrap csv: %w", err)
	}
	defer f.Close()

	imported, err := s.importRows(ctx, f)
	if err != nil {
		return err
	}
	logger.InfoCtx(ctx, "bootstrap imported %d historical project credit rows from %s", imported, s.csvPath)
	return nil
}

func (s *BootstrapService) importRows(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	seeded := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	imported := 0
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("failed to read bootstrap csv: %w", err)
		}
		line++
		if len(record) < 2 {
			logger.WarnCtx(ctx, "bootstrap csv line %d has %d fields, want at least 2, skipping", line, len(record))
			continue
		}

		// Two-column exports carry (name, credit); three columns add
		// the master URL between them.
		name := strings.TrimSpace(record[0])
		url := ""
		creditField := record[1]
		if len(record) >= 3 {
			url = strings.TrimSpace(record[1])
			creditField = record[2]
		}
		credit, err := parseCredit(creditField)
		if err != nil {
			// Tolerate a header row in first position.
			if line == 1 {
				continue
			}
			logger.WarnCtx(ctx, "bootstrap csv line %d has unparsable credit %q, skipping", line, creditField)
			continue
		}
		if name == "" && url == "" {
			logger.WarnCtx(ctx, "bootstrap csv line %d has no project key, skipping", line)
			continue
		}

		projectID, err := s.projects.ResolveProjectID(ctx, name, url)
		if err != nil {
			return imported, err
		}
		ts := seeded
		row := &mysql.ProjectStats{
			YYYYMMDD:    bootstrapDayKey,
			ProjectID:   projectID,
			MasterURL:   url,
			ProjectName: name,
			TotalCredit: credit,
			Timestamp:   &ts,
		}
		if err := s.repo.UpsertProjectStats(ctx, row); err != nil {
			return imported, fmt.Errorf("failed to seed project %q: %w", name, err)
		}
		imported++
	}
	return imported, nil
}

// parseCredit accepts plain floats plus exported spreadsheet formats
// with thousands separators, e.g. "1,234,567.89".
func parseCredit(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	cleaned = strings.Trim(cleaned, `"`)
	return strconv.ParseFloat(cleaned, 64)
}
