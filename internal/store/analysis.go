package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const analysisTable = "project_analysis"

// AnalysisRecord is the stored analysis of one project
type AnalysisRecord struct {
	ProjectPath string
	Data        json.RawMessage
	LastUpdated time.Time
}

type analysisRow struct {
	ProjectPath  string `db:"project_path"`
	AnalysisData string `db:"analysis_data"`
	LastUpdated  int64  `db:"last_updated"`
}

// AnalysisRepo caches one analysis report per absolute project path
type AnalysisRepo struct {
	s *Store
}

// Get returns the stored record for projectPath
func (r *AnalysisRepo) Get(ctx context.Context, projectPath string) (*AnalysisRecord, bool, error) {
	key, err := projectKey(projectPath)
	if err != nil {
		return nil, false, fail("analysis.get", err)
	}

	var row analysisRow
	err = r.s.get(ctx, &row, r.s.sql.
		Select("project_path", "analysis_data", "last_updated").
		From(analysisTable).
		Where(sq.Eq{"project_path": key}))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail("analysis.get", err)
	}

	return &AnalysisRecord{
		ProjectPath: row.ProjectPath,
		Data:        json.RawMessage(row.AnalysisData),
		LastUpdated: fromMillis(row.LastUpdated),
	}, true, nil
}

// Put marshals data to JSON and replaces the stored record for projectPath
func (r *AnalysisRepo) Put(ctx context.Context, projectPath string, data any) error {
	key, err := projectKey(projectPath)
	if err != nil {
		return fail("analysis.put", err)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fail("analysis.put", fmt.Errorf("encode analysis: %w", err))
	}

	_, err = r.s.exec(ctx, r.s.sql.
		Insert(analysisTable).
		Columns("project_path", "analysis_data", "last_updated").
		Values(key, string(payload), toMillis(r.s.now())).
		Suffix("ON CONFLICT(project_path) DO UPDATE SET analysis_data=excluded.analysis_data, last_updated=excluded.last_updated"))
	if err != nil {
		return fail("analysis.put", err)
	}
	return nil
}

func projectKey(path string) (string, error) {
	if path == "" {
		return "", errors.New("project path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve project path: %w", err)
	}
	return abs, nil
}
