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

package guardrails

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
	"xxai/platform/store"
)

// Recorder persists detection records off the request path. In log mode it
// appends one JSON line per record to the daily file, flushed per record so
// the importer never reads a torn line. In direct mode it writes straight to
// the detection_results table.
type Recorder struct {
	dir     string
	results *store.ResultRepository
	log     *logger.Logger

	queue chan *types.DetectionRecord
	done  chan struct{}
}

const recorderQueueDepth = 4096

// NewRecorder creates a recorder. A nil results repository selects log mode;
// otherwise records bypass the JSONL file and go straight to the database.
func NewRecorder(dir string, results *store.ResultRepository, log *logger.Logger) *Recorder {
	r := &Recorder{
		dir:     dir,
		results: results,
		log:     log,
		queue:   make(chan *types.DetectionRecord, recorderQueueDepth),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Enqueue hands one record to the writer goroutine. Records are dropped with
// an error log when the queue is full; detection responses never block on
// persistence.
func (r *Recorder) Enqueue(rec *types.DetectionRecord) {
	select {
	case r.queue <- rec:
	default:
		r.log.Error(rec.TenantID, rec.RequestID, "detection record queue full, record dropped", nil)
	}
}

// Close drains the queue and stops the writer
func (r *Recorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		sanitizeRecord(rec)
		if r.results != nil {
			r.writeDB(rec)
			continue
		}
		if err := r.writeLine(rec); err != nil {
			r.log.Error(rec.TenantID, rec.RequestID, "failed to write detection log line", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (r *Recorder) writeDB(rec *types.DetectionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := r.results.InsertResult(ctx, recordToResult(rec))
	if err != nil && err != store.ErrDuplicate {
		r.log.Error(rec.TenantID, rec.RequestID, "failed to store detection result", map[string]interface{}{"error": err.Error()})
	}
}

// writeLine appends the record to <dir>/detection_YYYYMMDD.jsonl. The file is
// opened per record; the OS page cache absorbs the cost and the handle never
// straddles a date rollover.
func (r *Recorder) writeLine(rec *types.DetectionRecord) error {
	path := filepath.Join(r.dir, fmt.Sprintf("detection_%s.jsonl", rec.CreatedAt.UTC().Format("20060102")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// recordToResult maps a log record onto its table row
func recordToResult(rec *types.DetectionRecord) *store.DetectionResult {
	return &store.DetectionResult{
		RequestID:            rec.RequestID,
		TenantID:             rec.TenantID,
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
		CreatedAt:            rec.CreatedAt,
	}
}

// sanitizeRecord strips control characters from the free-text fields so a
// stored record never carries them; newlines and tabs flatten to spaces
func sanitizeRecord(rec *types.DetectionRecord) {
	rec.Content = sanitizeText(rec.Content)
	rec.SuggestAnswer = sanitizeText(rec.SuggestAnswer)
	rec.ModelResponse = sanitizeText(rec.ModelResponse)
	rec.HitKeywords = sanitizeText(rec.HitKeywords)
	rec.UserAgent = sanitizeText(rec.UserAgent)
}

func sanitizeText(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return ' '
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}
