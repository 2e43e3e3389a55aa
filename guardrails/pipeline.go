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

// Package guardrails implements the inspection pipeline: message truncation,
// blacklist/whitelist prefilter, data-security regex scan, classifier call,
// sensitivity filtering and action/substitute-answer resolution, plus the hot
// caches those steps read from.
package guardrails

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
)

// CheckRequest is one inspection invocation
type CheckRequest struct {
	TenantID  string
	Messages  []types.Message
	Direction Direction
	// RequestID is minted when empty
	RequestID string
	// ImagePaths are local copies of any image parts, recorded on the log line
	ImagePaths []string
	IPAddress  string
	UserAgent  string
}

// CheckOutcome pairs the API response with its detection log record
type CheckOutcome struct {
	Response *types.GuardrailResponse
	Record   *types.DetectionRecord
}

// Pipeline wires the inspection steps together. It performs no DB writes;
// the caller enqueues the returned record to the detection logger.
type Pipeline struct {
	Keywords    *KeywordCache
	RiskConfigs *RiskConfigCache
	Scanner     *Scanner
	Classifier  *Classifier
	Resolver    *TemplateResolver
	Log         *logger.Logger
	// MaxContextLength caps concatenated message content before inspection
	MaxContextLength int
}

// Check runs the full pipeline for one request
func (p *Pipeline) Check(ctx context.Context, req *CheckRequest) *CheckOutcome {
	requestID := req.RequestID
	if requestID == "" {
		requestID = "guardrails-" + uuid.NewString()
	}

	messages := TruncateMessages(req.Messages, p.MaxContextLength)
	content := types.JoinedContent(messages)
	userQuery := types.LastUserContent(messages)
	hasImage := len(types.CollectImageURLs(messages)) > 0

	record := &types.DetectionRecord{
		RequestID:  requestID,
		TenantID:   req.TenantID,
		Content:    content,
		HasImage:   hasImage,
		ImageCount: len(req.ImagePaths),
		ImagePaths: req.ImagePaths,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		CreatedAt:  time.Now().UTC(),
	}

	// Blacklist and whitelist short-circuit everything after them
	if hit := p.Keywords.MatchBlacklist(ctx, req.TenantID, content); hit != nil {
		resp := emptyResponse(requestID)
		resp.Result.Compliance = types.RiskDimension{RiskLevel: types.RiskHigh, Categories: []string{hit.ListName}}
		resp.OverallRiskLevel = types.RiskHigh
		resp.SuggestAction = types.ActionReject
		resp.SuggestAnswer = BlacklistRefusal(hit.ListName)
		record.HitKeywords = joinKeywords(hit.Keywords)
		record.ModelResponse = "blacklist_hit"
		return p.finish(resp, record)
	}
	if hit := p.Keywords.MatchWhitelist(ctx, req.TenantID, content); hit != nil {
		resp := emptyResponse(requestID)
		record.HitKeywords = joinKeywords(hit.Keywords)
		record.ModelResponse = "whitelist_hit"
		return p.finish(resp, record)
	}

	// Data-security scan; an input-direction hit yields the anonymized text
	// as the preferred substitute answer
	scan := p.Scanner.Scan(ctx, req.TenantID, content, req.Direction)
	dataAnswer := ""
	if len(scan.Matches) > 0 && req.Direction == DirectionInput {
		dataAnswer = scan.Anonymized
	}

	// Classifier; failures are fail-open with the error on the record
	var category types.Category
	classified := false
	verdict, err := p.Classifier.Check(ctx, messages, hasImage)
	if err != nil {
		p.Log.Warn(req.TenantID, requestID, "classifier call failed", map[string]interface{}{"error": err.Error()})
		record.ModelResponse = fmt.Sprintf("error:%v", err)
	} else {
		record.ModelResponse = verdict.Raw
		cfg := p.RiskConfigs.Get(ctx, req.TenantID)
		record.SensitivityLevel = string(cfg.TriggerLevel)
		if !verdict.Safe && cfg.Enabled[verdict.Category] && verdict.Score >= cfg.Threshold() {
			category = verdict.Category
			classified = true
		}
		score := verdict.Score
		record.SensitivityScore = &score
	}

	resp := emptyResponse(requestID)
	resp.SensitivityScore = record.SensitivityScore
	resp.SensitivityLevel = types.SensitivityLevel(record.SensitivityLevel)
	resp.Result.Data = types.RiskDimension{RiskLevel: scan.RiskLevel, Categories: scan.Categories}

	if classified {
		dim := types.RiskDimension{RiskLevel: category.Risk(), Categories: []string{category.Name()}}
		if category.IsSecurity() {
			resp.Result.Security = dim
		} else {
			resp.Result.Compliance = dim
		}
	}

	resp.OverallRiskLevel = types.MaxRisk(
		resp.Result.Compliance.RiskLevel,
		resp.Result.Security.RiskLevel,
		resp.Result.Data.RiskLevel,
	)
	resp.SuggestAction = types.ActionForRisk(resp.OverallRiskLevel)

	if resp.SuggestAction != types.ActionPass {
		if dataAnswer != "" {
			resp.SuggestAnswer = dataAnswer
		} else {
			var triggered []types.Category
			if classified {
				triggered = append(triggered, category)
			}
			resp.SuggestAnswer = p.Resolver.Resolve(ctx, req.TenantID, triggered, userQuery)
		}
	}

	return p.finish(resp, record)
}

// CheckText inspects a bare input (and optional output) string
func (p *Pipeline) CheckText(ctx context.Context, req *CheckRequest, input, output string) *CheckOutcome {
	msgs := []types.Message{types.UserMessage(input)}
	if output != "" {
		msgs = append(msgs, types.AssistantMessage(output))
	}
	req.Messages = msgs
	return p.Check(ctx, req)
}

func (p *Pipeline) finish(resp *types.GuardrailResponse, record *types.DetectionRecord) *CheckOutcome {
	record.SuggestAction = string(resp.SuggestAction)
	record.SuggestAnswer = resp.SuggestAnswer
	record.SecurityRiskLevel = string(resp.Result.Security.RiskLevel)
	record.SecurityCategories = emptyIfNil(resp.Result.Security.Categories)
	record.ComplianceRiskLevel = string(resp.Result.Compliance.RiskLevel)
	record.ComplianceCategories = emptyIfNil(resp.Result.Compliance.Categories)
	record.DataRiskLevel = string(resp.Result.Data.RiskLevel)
	record.DataCategories = emptyIfNil(resp.Result.Data.Categories)
	return &CheckOutcome{Response: resp, Record: record}
}

func emptyResponse(requestID string) *types.GuardrailResponse {
	return &types.GuardrailResponse{
		ID: requestID,
		Result: types.GuardrailResult{
			Compliance: types.RiskDimension{RiskLevel: types.RiskNone, Categories: []string{}},
			Security:   types.RiskDimension{RiskLevel: types.RiskNone, Categories: []string{}},
			Data:       types.RiskDimension{RiskLevel: types.RiskNone, Categories: []string{}},
		},
		OverallRiskLevel: types.RiskNone,
		SuggestAction:    types.ActionPass,
	}
}

func joinKeywords(keywords []string) string {
	return strings.Join(keywords, ", ")
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
