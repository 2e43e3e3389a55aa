// Copyright 2025 XXAI
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package admin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xxai/platform/shared/logger"
	"xxai/platform/store"
)

func newMockImporter(t *testing.T) (*Importer, sqlmock.Sqlmock, string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logDir := t.TempDir()
	dataDir := t.TempDir()
	results := store.NewResultRepository(&store.DB{DB: db, Driver: "postgres"})
	return NewImporter(logDir, dataDir, results, logger.New("test")), mock, logDir
}

const testTenantID = "3e0a1b6e-6f4a-4a5e-9d5f-2b7c8d9e0f1a"

func logLine(requestID, tenantID string) string {
	return fmt.Sprintf(`{"request_id":%q,"tenant_id":%q,"content":"hello","suggest_action":"pass",`+
		`"security_risk_level":"no_risk","security_categories":[],"compliance_risk_level":"no_risk",`+
		`"compliance_categories":[],"data_risk_level":"no_risk","data_categories":[],`+
		`"created_at":"2025-03-14T08:30:00+08:00"}`, requestID, tenantID)
}

func TestImportFile(t *testing.T) {
	im, mock, logDir := newMockImporter(t)

	path := filepath.Join(logDir, "detection_20250314.jsonl")
	lines := logLine("req-1", testTenantID) + "\n" +
		"not json\n" +
		logLine("req-2", "12345") + "\n" + // numeric-legacy tenant id is dropped
		logLine("req-3", testTenantID) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	mock.ExpectExec("INSERT INTO detection_results").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO detection_results").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, im.importFile(context.Background(), path))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportFileSkipsDuplicates(t *testing.T) {
	im, mock, logDir := newMockImporter(t)

	path := filepath.Join(logDir, "detection_20250314.jsonl")
	lines := logLine("req-1", testTenantID) + "\n" + logLine("req-2", testTenantID) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	mock.ExpectExec("INSERT INTO detection_results").
		WillReturnError(fmt.Errorf(`pq: duplicate key value violates unique constraint "detection_results_request_id_key"`))
	mock.ExpectExec("INSERT INTO detection_results").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, im.importFile(context.Background(), path))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportFileAbortsOnInsertError(t *testing.T) {
	im, mock, logDir := newMockImporter(t)

	path := filepath.Join(logDir, "detection_20250314.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(logLine("req-1", testTenantID)+"\n"), 0o644))

	mock.ExpectExec("INSERT INTO detection_results").WillReturnError(fmt.Errorf("connection reset"))

	err := im.importFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestEligible(t *testing.T) {
	im, mock, logDir := newMockImporter(t)
	ctx := context.Background()

	path := filepath.Join(logDir, "detection_20250314.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(logLine("req-1", testTenantID)+"\n"), 0o644))

	// Quiet files are eligible without touching the database
	assert.True(t, im.eligible(ctx, path, time.Now().Add(-10*time.Minute)))

	// A fresh file is eligible only when its head records already exist
	mock.ExpectQuery("FROM detection_results").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	assert.True(t, im.eligible(ctx, path, time.Now()))

	mock.ExpectQuery("FROM detection_results").WillReturnError(fmt.Errorf("sql: no rows in result set"))
	assert.False(t, im.eligible(ctx, path, time.Now()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanKeepsTodayFileLive(t *testing.T) {
	im, mock, logDir := newMockImporter(t)

	stale := time.Now().Add(-10 * time.Minute)
	today := fmt.Sprintf("detection_%s.jsonl", time.Now().UTC().Format("20060102"))
	yesterday := fmt.Sprintf("detection_%s.jsonl", time.Now().UTC().AddDate(0, 0, -1).Format("20060102"))
	for _, name := range []string{today, yesterday} {
		path := filepath.Join(logDir, name)
		require.NoError(t, os.WriteFile(path, []byte(logLine("req-"+name, testTenantID)+"\n"), 0o644))
		require.NoError(t, os.Chtimes(path, stale, stale))
	}

	// First scan imports both but only retires the prior-day file
	mock.ExpectExec("INSERT INTO detection_results").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO detection_results").WillReturnResult(sqlmock.NewResult(1, 1))
	im.scan()
	assert.True(t, im.processed[yesterday])
	assert.False(t, im.processed[today])

	// The next scan revisits today's file; dedup absorbs the replay
	mock.ExpectExec("INSERT INTO detection_results").
		WillReturnError(fmt.Errorf(`pq: duplicate key value violates unique constraint "detection_results_request_id_key"`))
	im.scan()
	assert.False(t, im.processed[today])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseLogTime(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339 with zone", "2025-03-14T08:30:00+08:00", time.Date(2025, 3, 14, 0, 30, 0, 0, time.UTC)},
		{"rfc3339 utc", "2025-03-14T00:30:00Z", time.Date(2025, 3, 14, 0, 30, 0, 0, time.UTC)},
		{"zoneless t assumed utc+8", "2025-03-14T08:30:00", time.Date(2025, 3, 14, 0, 30, 0, 0, time.UTC)},
		{"zoneless space assumed utc+8", "2025-03-14 08:30:00", time.Date(2025, 3, 14, 0, 30, 0, 0, time.UTC)},
		{"zoneless fractional", "2025-03-14T08:30:00.500000", time.Date(2025, 3, 14, 0, 30, 0, 500000000, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(parseLogTime(tt.in)), "got %v", parseLogTime(tt.in))
		})
	}

	// Unparseable and empty stamps fall back to now
	assert.WithinDuration(t, time.Now().UTC(), parseLogTime(""), time.Minute)
	assert.WithinDuration(t, time.Now().UTC(), parseLogTime("yesterday"), time.Minute)
}

func TestImporterStateRoundTrip(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	results := store.NewResultRepository(&store.DB{DB: db, Driver: "postgres"})

	dataDir := t.TempDir()
	im := NewImporter(t.TempDir(), dataDir, results, logger.New("test"))
	im.processed["detection_20250313.jsonl"] = true
	im.processed["detection_20250314.jsonl"] = true
	im.saveState()

	reloaded := NewImporter(t.TempDir(), dataDir, results, logger.New("test"))
	reloaded.loadState()
	assert.True(t, reloaded.processed["detection_20250313.jsonl"])
	assert.True(t, reloaded.processed["detection_20250314.jsonl"])

	// Corrupt state starts fresh instead of failing
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, stateFileName), []byte("{broken"), 0o644))
	fresh := NewImporter(t.TempDir(), dataDir, results, logger.New("test"))
	fresh.loadState()
	assert.Empty(t, fresh.processed)
}
