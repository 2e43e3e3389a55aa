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
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"xxai/platform/guardrails"
)

// usageBlock is the OpenAI token usage object
type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// sseChunk is one parsed streaming chunk. Chat chunks carry delta.content;
// legacy completion chunks carry text. reasoning_content is best-effort,
// emitted only by reasoning-capable upstreams.
type sseChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		Text         string  `json:"text"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usageBlock `json:"usage"`
}

// contentOf flattens the chunk's content deltas
func (c *sseChunk) contentOf() string {
	var out string
	for _, choice := range c.Choices {
		out += choice.Delta.Content
		out += choice.Text
	}
	return out
}

// reasoningOf flattens the chunk's reasoning deltas
func (c *sseChunk) reasoningOf() string {
	var out string
	for _, choice := range c.Choices {
		out += choice.Delta.ReasoningContent
	}
	return out
}

// extractCompletion pulls the assistant content and usage out of a buffered
// completion body. A body that does not parse yields empty content; the
// response is still relayed verbatim.
func extractCompletion(body []byte, legacy bool) (string, *usageBlock) {
	var comp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
		Usage *usageBlock `json:"usage"`
	}
	if err := json.Unmarshal(body, &comp); err != nil || len(comp.Choices) == 0 {
		return "", nil
	}
	if legacy {
		return comp.Choices[0].Text, comp.Usage
	}
	return comp.Choices[0].Message.Content, comp.Usage
}

// rewriteBlockedCompletion overwrites the first choice's content with the
// substitute answer and marks it content_filter, preserving all other fields
func rewriteBlockedCompletion(body []byte, legacy bool, outcome *guardrails.CheckOutcome) ([]byte, bool) {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, false
	}
	choices, ok := m["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return nil, false
	}
	first, ok := choices[0].(map[string]interface{})
	if !ok {
		return nil, false
	}

	answer := substituteAnswer(outcome)
	if legacy {
		first["text"] = answer
	} else {
		msg, ok := first["message"].(map[string]interface{})
		if !ok {
			return nil, false
		}
		msg["content"] = answer
	}
	first["finish_reason"] = "content_filter"
	m["detection_info"] = detectionInfo(outcome)

	out, err := json.Marshal(m)
	if err != nil {
		return nil, false
	}
	return out, true
}

// writeBlockedCompletion emits a synthesized content_filter completion used
// when the request is blocked before (or instead of) an upstream response
func writeBlockedCompletion(w http.ResponseWriter, model string, legacy bool, outcome *guardrails.CheckOutcome) {
	answer := substituteAnswer(outcome)

	var choice map[string]interface{}
	object := "chat.completion"
	if legacy {
		object = "text_completion"
		choice = map[string]interface{}{
			"index":         0,
			"text":          answer,
			"finish_reason": "content_filter",
		}
	} else {
		choice = map[string]interface{}{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": answer},
			"finish_reason": "content_filter",
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             "chatcmpl-" + uuid.NewString(),
		"object":         object,
		"created":        time.Now().Unix(),
		"model":          model,
		"choices":        []interface{}{choice},
		"usage":          usageBlock{},
		"detection_info": detectionInfo(outcome),
	})
}

// writeBlockedStream emits a one-chunk SSE stream carrying the substitute
// answer, then [DONE]
func writeBlockedStream(w http.ResponseWriter, model string, legacy bool, outcome *guardrails.CheckOutcome) {
	setSSEHeaders(w)
	flusher, _ := w.(http.Flusher)

	answer := substituteAnswer(outcome)
	var choice map[string]interface{}
	object := "chat.completion.chunk"
	if legacy {
		object = "text_completion"
		choice = map[string]interface{}{
			"index":         0,
			"text":          answer,
			"finish_reason": "content_filter",
		}
	} else {
		choice = map[string]interface{}{
			"index":         0,
			"delta":         map[string]string{"role": "assistant", "content": answer},
			"finish_reason": "content_filter",
		}
	}

	chunk := map[string]interface{}{
		"id":             "chatcmpl-" + uuid.NewString(),
		"object":         object,
		"created":        time.Now().Unix(),
		"model":          model,
		"choices":        []interface{}{choice},
		"detection_info": detectionInfo(outcome),
	}
	writeSSE(w, flusher, chunk)
	writeSSEDone(w, flusher)
}

// detectionInfo is the out-of-band verdict attached to blocked responses
func detectionInfo(outcome *guardrails.CheckOutcome) map[string]interface{} {
	resp := outcome.Response
	categories := []string{}
	categories = append(categories, resp.Result.Compliance.Categories...)
	categories = append(categories, resp.Result.Security.Categories...)
	categories = append(categories, resp.Result.Data.Categories...)
	return map[string]interface{}{
		"suggest_action": resp.SuggestAction,
		"suggest_answer": resp.SuggestAnswer,
		"categories":     categories,
		"request_id":     resp.ID,
	}
}

// substituteAnswer falls back to the hardcoded refusal when the pipeline
// produced no answer for a blocked verdict
func substituteAnswer(outcome *guardrails.CheckOutcome) string {
	if outcome.Response.SuggestAnswer != "" {
		return outcome.Response.SuggestAnswer
	}
	return guardrails.HardcodedRefusal
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeSSE writes one data: frame and flushes it
func writeSSE(w http.ResponseWriter, flusher http.Flusher, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	writeSSERaw(w, flusher, data)
}

func writeSSERaw(w http.ResponseWriter, flusher http.Flusher, data []byte) {
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
	if flusher != nil {
		flusher.Flush()
	}
}

func writeSSEDone(w http.ResponseWriter, flusher http.Flusher) {
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	if flusher != nil {
		flusher.Flush()
	}
}
