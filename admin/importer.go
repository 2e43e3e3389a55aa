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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"xxai/platform/shared/logger"
	"xxai/platform/store"
)

const (
	importerInterval = 5 * time.Second
	// importerQuietAge is how long a file must sit unmodified before it is
	// assumed complete and safe to import
	importerQuietAge = 5 * time.Minute
	// importerHeadProbe is how many leading records are checked against the
	// DB to detect an already-imported file whose mtime is still fresh
	importerHeadProbe = 10

	stateFileName = "log_to_db_service_state"
)

// Importer moves detection JSONL records into the detection_results table.
// The pipeline is at-least-once but idempotent: records dedupe by request_id.
type Importer struct {
	dir       string
	stateFile string
	results   *store.ResultRepository
	log       *logger.Logger

	processed map[string]bool
	done      chan struct{}
	stop      chan struct{}
}

// NewImporter creates an importer over the detection log directory
func NewImporter(logDir, dataDir string, results *store.ResultRepository, log *logger.Logger) *Importer {
	return &Importer{
		dir:       logDir,
		stateFile: filepath.Join(dataDir, stateFileName),
		results:   results,
		log:       log,
		processed: map[string]bool{},
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
	}
}

// Start loads persisted state and begins the 5-second scan loop
func (im *Importer) Start() {
	im.loadState()
	go im.run()
}

// Stop halts the scan loop
func (im *Importer) Stop() {
	close(im.stop)
	<-im.done
}

func (im *Importer) run() {
	defer close(im.done)
	ticker := time.NewTicker(importerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-im.stop:
			return
		case <-ticker.C:
			im.scan()
		}
	}
}

// scan visits the files for today and the prior two days
func (im *Importer) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	for back := 0; back < 3; back++ {
		name := fmt.Sprintf("detection_%s.jsonl", now.AddDate(0, 0, -back).Format("20060102"))
		if im.processed[name] {
			continue
		}
		path := filepath.Join(im.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !im.eligible(ctx, path, info.ModTime()) {
			continue
		}
		if err := im.importFile(ctx, path); err != nil {
			im.log.Error("", "", "detection log import failed", map[string]interface{}{"file": name, "error": err.Error()})
			continue
		}
		// Today's file stays live: the recorder may still append to it, so it
		// is re-imported on later scans (request_id dedup keeps that cheap).
		// Only prior-day files retire.
		if back > 0 {
			im.processed[name] = true
			im.saveState()
		}
		im.log.Info("", "", "detection log imported", map[string]interface{}{"file": name})
	}
}

// eligible avoids racing the live writer: the file must be quiet for five
// minutes, or its head records must all exist already (meaning a previous
// import completed but state was lost).
func (im *Importer) eligible(ctx context.Context, path string, mtime time.Time) bool {
	if time.Since(mtime) > importerQuietAge {
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	checked := 0
	for scanner.Scan() && checked < importerHeadProbe {
		var rec struct {
			RequestID string `json:"request_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil || rec.RequestID == "" {
			return false
		}
		exists, err := im.results.ResultExists(ctx, rec.RequestID)
		if err != nil || !exists {
			return false
		}
		checked++
	}
	return checked > 0
}

// importedRecord is the JSONL line with a tolerant timestamp
type importedRecord struct {
	RequestID            string   `json:"request_id"`
	TenantID             string   `json:"tenant_id"`
	Content              string   `json:"content"`
	SuggestAction        string   `json:"suggest_action"`
	SuggestAnswer        string   `json:"suggest_answer"`
	ModelResponse        string   `json:"model_response"`
	SecurityRiskLevel    string   `json:"security_risk_level"`
	SecurityCategories   []string `json:"security_categories"`
	ComplianceRiskLevel  string   `json:"compliance_risk_level"`
	ComplianceCategories []string `json:"compliance_categories"`
	DataRiskLevel        string   `json:"data_risk_level"`
	DataCategories       []string `json:"data_categories"`
	SensitivityLevel     string   `json:"sensitivity_level"`
	SensitivityScore     *float64 `json:"sensitivity_score"`
	HasImage             bool     `json:"has_image"`
	ImageCount           int      `json:"image_count"`
	ImagePaths           []string `json:"image_paths"`
	HitKeywords          string   `json:"hit_keywords"`
	IPAddress            string   `json:"ip_address"`
	UserAgent            string   `json:"user_agent"`
	CreatedAt            string   `json:"created_at"`
}

// importFile inserts every record of one file, skipping duplicates and
// malformed lines
func (im *Importer) importFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec importedRecord
		if err := json.Unmarshal(line, &rec); err != nil || rec.RequestID == "" {
			im.log.Warn("", "", "malformed detection log line skipped", map[string]interface{}{"file": filepath.Base(path), "line": lineNo})
			continue
		}
		tenantID, err := uuid.Parse(rec.TenantID)
		if err != nil {
			// Numeric-legacy and malformed tenant ids are dropped
			im.log.Warn("", rec.RequestID, "record with invalid tenant id dropped", map[string]interface{}{"tenant_id": rec.TenantID})
			continue
		}

		result := rec.toResult(tenantID.String())
		err = im.results.InsertResult(ctx, result)
		if err == store.ErrDuplicate {
			continue
		}
		if err != nil {
			return fmt.Errorf("insert failed at line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

func (rec *importedRecord) toResult(tenantID string) *store.DetectionResult {
	return &store.DetectionResult{
		RequestID:            rec.RequestID,
		TenantID:             tenantID,
		Content:              rec.Content,
		SuggestAction:        rec.SuggestAction,
		SuggestAnswer:        rec.SuggestAnswer,
		ModelResponse:        rec.ModelResponse,
		SecurityRiskLevel:    rec.SecurityRiskLevel,
		SecurityCategories:   rec.SecurityCategories,
		ComplianceRiskLevel:  rec.ComplianceRiskLevel,
		ComplianceCategories: rec.ComplianceCategories,
		DataRiskLevel:        rec.DataRiskLevel,
		DataCategories:       rec.DataCategories,
		SensitivityLevel:     rec.SensitivityLevel,
		SensitivityScore:     rec.SensitivityScore,
		HasImage:             rec.HasImage,
		ImageCount:           rec.ImageCount,
		ImagePaths:           rec.ImagePaths,
		HitKeywords:          rec.HitKeywords,
		IPAddress:            rec.IPAddress,
		UserAgent:            rec.UserAgent,
		CreatedAt:            parseLogTime(rec.CreatedAt),
	}
}

// parseLogTime accepts RFC3339 with or without a zone. Zoneless stamps are
// assumed UTC+8, matching historical writers.
func parseLogTime(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	cst := time.FixedZone("UTC+8", 8*3600)
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, s, cst); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// State file: a JSON list of processed filenames

type importerState struct {
	Processed []string `json:"processed"`
}

func (im *Importer) loadState() {
	data, err := os.ReadFile(im.stateFile)
	if err != nil {
		return
	}
	var st importerState
	if err := json.Unmarshal(data, &st); err != nil {
		im.log.Warn("", "", "importer state unreadable, starting fresh", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, name := range st.Processed {
		im.processed[name] = true
	}
}

func (im *Importer) saveState() {
	st := importerState{Processed: make([]string, 0, len(im.processed))}
	for name := range im.processed {
		st.Processed = append(st.Processed, name)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := os.WriteFile(im.stateFile, data, 0o644); err != nil {
		im.log.Warn("", "", "failed to persist importer state", map[string]interface{}{"error": err.Error()})
	}
}
