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

package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"xxai/platform/guardrails"
	"xxai/platform/shared/types"
	"xxai/platform/store"
)

// maxSSELineBytes bounds a single upstream SSE line
const maxSSELineBytes = 1 << 20

// streamDetector relays an upstream SSE stream to the client while running
// windowed output inspection. In serial mode (block_on_output_risk) it keeps
// a one-chunk hold so a risky window can be cut before any of it reaches the
// client; in async mode chunks are forwarded immediately and inspections run
// in the background.
type streamDetector struct {
	handler    *Handler
	cfg        *store.ProxyModelConfig
	tenantID   string
	endUser    string
	messagesIn []types.Message
	model      string
	legacy     bool
	ip         string
	ua         string

	buffer      strings.Builder
	fullContent strings.Builder
	chunkCount  int
	held        []byte
	lastID      string
	lastModel   string

	status       string
	errorMessage string
	outputDetID  string
	blocked      bool
	usage        *usageBlock
	blockOutcome *guardrails.CheckOutcome
}

// Run consumes the upstream body and writes the client stream. It returns
// once the stream is finished, cut, or failed; fillLog transfers the result
// onto the request log afterwards.
func (d *streamDetector) Run(ctx context.Context, w http.ResponseWriter, upstream io.Reader) {
	setSSEHeaders(w)
	flusher, _ := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)

	chunkSize := d.cfg.StreamChunkSize
	if chunkSize <= 0 {
		chunkSize = 50
	}
	serial := d.cfg.BlockOnOutputRisk

	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 64*1024), maxSSELineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			// Client went away; stop reading upstream
			d.status = statusError
			d.errorMessage = "client disconnected"
			return
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(line[len("data:"):])
		if bytes.Equal(payload, []byte("[DONE]")) {
			break
		}

		d.absorb(payload)
		d.chunkCount++

		if d.chunkCount >= chunkSize && d.buffer.Len() > 0 {
			if d.inspectWindow(ctx, serial) {
				d.cut(w, flusher)
				return
			}
		}

		d.emit(w, flusher, payload, serial)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		writeSSE(w, flusher, d.errorChunk(err))
		writeSSEDone(w, flusher)
		d.status = statusError
		d.errorMessage = err.Error()
		return
	}
	if ctx.Err() != nil {
		d.status = statusError
		d.errorMessage = "client disconnected"
		return
	}

	// Final inspection over whatever is left in the window
	if d.buffer.Len() > 0 {
		if serial {
			if d.inspectWindow(ctx, true) {
				d.cut(w, flusher)
				return
			}
		} else {
			d.outputDetID = d.handler.inspectAsync(d.tenantID, d.endUser,
				d.windowMessages(), guardrails.DirectionOutput, d.ip, d.ua)
		}
	}

	// Every window came back safe; release the held chunk and close out
	if d.held != nil {
		writeSSERaw(w, flusher, d.held)
		d.held = nil
	}
	writeSSEDone(w, flusher)
	d.status = statusStreamSuccess
}

// fillLog transfers the stream outcome onto the proxy request log
func (d *streamDetector) fillLog(plog *store.ProxyRequestLog) {
	plog.Status = d.status
	plog.ErrorMessage = d.errorMessage
	plog.OutputBlocked = d.blocked
	if d.outputDetID != "" {
		plog.OutputDetectionID = d.outputDetID
	}
	if d.usage != nil {
		plog.PromptTokens = d.usage.PromptTokens
		plog.CompletionTokens = d.usage.CompletionTokens
		plog.TotalTokens = d.usage.TotalTokens
	}
}

// absorb folds one chunk's deltas into the inspection window
func (d *streamDetector) absorb(payload []byte) {
	var chunk sseChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return
	}
	if chunk.ID != "" {
		d.lastID = chunk.ID
		d.lastModel = chunk.Model
	}
	if chunk.Usage != nil {
		d.usage = chunk.Usage
	}
	if content := chunk.contentOf(); content != "" {
		d.buffer.WriteString(content)
		d.fullContent.WriteString(content)
	}
	if d.cfg.EnableReasoningDetection {
		if reasoning := chunk.reasoningOf(); reasoning != "" {
			d.buffer.WriteString("[reasoning]" + reasoning)
		}
	}
}

// inspectWindow runs one inspection over messages_in + assistant(buffer).
// Serial mode blocks and reports whether the stream must stop; async mode
// fires and forgets, always returning false. A safe serial verdict clears
// the buffer but keeps the chunk count cumulative, so once the first window
// completes every later chunk is inspected before the hold releases its
// predecessor.
func (d *streamDetector) inspectWindow(ctx context.Context, serial bool) bool {
	if !serial {
		d.outputDetID = d.handler.inspectAsync(d.tenantID, d.endUser,
			d.windowMessages(), guardrails.DirectionOutput, d.ip, d.ua)
		d.buffer.Reset()
		d.chunkCount = 0
		return false
	}

	outcome := d.handler.inspect(ctx, d.tenantID, d.windowMessages(),
		guardrails.DirectionOutput, "", d.ip, d.ua)
	d.outputDetID = outcome.Record.RequestID
	d.handler.Mw.ApplyBanPolicy(ctx, d.tenantID, d.endUser,
		outcome.Record.RequestID, outcome.Response.OverallRiskLevel)
	if outcome.Response.Blocked() {
		d.blockOutcome = outcome
		return true
	}
	d.buffer.Reset()
	return false
}

func (d *streamDetector) windowMessages() []types.Message {
	return append(cloneMessages(d.messagesIn), types.AssistantMessage(d.buffer.String()))
}

// emit forwards one upstream chunk. Serial mode releases the previously held
// chunk and holds the new one, so the chunk carrying the tail of a risky
// window is never on the wire when the verdict lands.
func (d *streamDetector) emit(w http.ResponseWriter, flusher http.Flusher, payload []byte, serial bool) {
	if !serial {
		writeSSERaw(w, flusher, payload)
		return
	}
	if d.held != nil {
		writeSSERaw(w, flusher, d.held)
	}
	d.held = append([]byte(nil), payload...)
}

// cut drops the held chunk and replaces the rest of the stream with a single
// content_filter stop chunk
func (d *streamDetector) cut(w http.ResponseWriter, flusher http.Flusher) {
	d.held = nil
	d.blocked = true
	d.status = statusStreamBlocked

	var choice map[string]interface{}
	object := "chat.completion.chunk"
	if d.legacy {
		object = "text_completion"
		choice = map[string]interface{}{
			"index":         0,
			"text":          "",
			"finish_reason": "content_filter",
		}
	} else {
		choice = map[string]interface{}{
			"index":         0,
			"delta":         map[string]interface{}{},
			"finish_reason": "content_filter",
		}
	}

	stop := map[string]interface{}{
		"id":             d.chunkID(),
		"object":         object,
		"created":        time.Now().Unix(),
		"model":          d.chunkModel(),
		"choices":        []interface{}{choice},
		"detection_info": detectionInfo(d.blockOutcome),
	}
	writeSSE(w, flusher, stop)
	writeSSEDone(w, flusher)
}

// errorChunk carries an upstream failure to the client inside the stream
func (d *streamDetector) errorChunk(err error) map[string]interface{} {
	var choice map[string]interface{}
	object := "chat.completion.chunk"
	if d.legacy {
		object = "text_completion"
		choice = map[string]interface{}{
			"index":         0,
			"text":          fmt.Sprintf("[error: %v]", err),
			"finish_reason": "stop",
		}
	} else {
		choice = map[string]interface{}{
			"index":         0,
			"delta":         map[string]string{"content": fmt.Sprintf("[error: %v]", err)},
			"finish_reason": "stop",
		}
	}
	return map[string]interface{}{
		"id":      d.chunkID(),
		"object":  object,
		"created": time.Now().Unix(),
		"model":   d.chunkModel(),
		"choices": []interface{}{choice},
	}
}

func (d *streamDetector) chunkID() string {
	if d.lastID != "" {
		return d.lastID
	}
	return "chatcmpl-proxy"
}

func (d *streamDetector) chunkModel() string {
	if d.lastModel != "" {
		return d.lastModel
	}
	return d.model
}
