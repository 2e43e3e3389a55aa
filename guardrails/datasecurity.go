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
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"xxai/platform/shared/keycrypt"
	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
	"xxai/platform/store"
)

// Direction selects which entity types apply to a scan
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// EntityMatch records one sensitive-entity hit
type EntityMatch struct {
	EntityType  string
	DisplayName string
	Start       int
	End         int
	Original    string
	RiskLevel   types.RiskLevel
	Method      string
	Config      map[string]interface{}
}

// ScanResult aggregates all entity hits over one text
type ScanResult struct {
	Matches    []EntityMatch
	RiskLevel  types.RiskLevel
	Categories []string
	// Anonymized is the de-identified text; equal to the input when no match
	Anonymized string
}

type compiledEntity struct {
	def *store.DataSecurityEntityType
	re  *regexp.Regexp
}

// Scanner runs the data-security regex scan. Compiled entity types are cached
// per tenant for 5 minutes; a pattern that fails to compile is skipped with a
// warning rather than failing the scan.
type Scanner struct {
	repo    *store.ConfigRepository
	crypter *keycrypt.Crypter
	log     *logger.Logger
	ttl     time.Duration

	mu      sync.RWMutex
	entries map[string]*CacheEntry[[]*compiledEntity]
}

// NewScanner creates a scanner; crypter may be nil, in which case the encrypt
// anonymization method degrades to hash.
func NewScanner(repo *store.ConfigRepository, crypter *keycrypt.Crypter, log *logger.Logger) *Scanner {
	return &Scanner{
		repo:    repo,
		crypter: crypter,
		log:     log,
		ttl:     5 * time.Minute,
		entries: make(map[string]*CacheEntry[[]*compiledEntity]),
	}
}

func (s *Scanner) entities(ctx context.Context, tenantID string) []*compiledEntity {
	s.mu.RLock()
	entry, ok := s.entries[tenantID]
	s.mu.RUnlock()
	if ok && !entry.IsExpired() {
		return entry.Value
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[tenantID]; ok && !entry.IsExpired() {
		return entry.Value
	}

	defs, err := s.repo.LoadActiveEntityTypes(ctx, tenantID)
	if err != nil {
		s.log.Warn(tenantID, "", "entity type load failed", map[string]interface{}{"error": err.Error()})
		if entry, ok := s.entries[tenantID]; ok {
			return entry.Value
		}
		return nil
	}

	compiled := make([]*compiledEntity, 0, len(defs))
	for _, def := range defs {
		re, err := regexp.Compile(def.Recognition.Pattern)
		if err != nil {
			s.log.Warn(tenantID, "", "entity pattern failed to compile", map[string]interface{}{
				"entity_type": def.EntityType,
				"error":       err.Error(),
			})
			continue
		}
		compiled = append(compiled, &compiledEntity{def: def, re: re})
	}

	now := time.Now()
	s.entries[tenantID] = &CacheEntry[[]*compiledEntity]{Value: compiled, ExpiresAt: now.Add(s.ttl), LastUpdate: now}
	return compiled
}

// Invalidate drops one tenant's compiled entities, or all when tenantID is empty
func (s *Scanner) Invalidate(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenantID == "" {
		s.entries = make(map[string]*CacheEntry[[]*compiledEntity])
		return
	}
	delete(s.entries, tenantID)
}

// Scan runs every applicable entity regex over text. Matches are anonymized
// back to front so earlier spans keep their offsets.
func (s *Scanner) Scan(ctx context.Context, tenantID, text string, direction Direction) *ScanResult {
	result := &ScanResult{RiskLevel: types.RiskNone, Anonymized: text}
	if text == "" {
		return result
	}

	for _, entity := range s.entities(ctx, tenantID) {
		if direction == DirectionInput && !entity.def.Recognition.CheckInput {
			continue
		}
		if direction == DirectionOutput && !entity.def.Recognition.CheckOutput {
			continue
		}
		for _, span := range entity.re.FindAllStringIndex(text, -1) {
			result.Matches = append(result.Matches, EntityMatch{
				EntityType:  entity.def.EntityType,
				DisplayName: entity.def.DisplayName,
				Start:       span[0],
				End:         span[1],
				Original:    text[span[0]:span[1]],
				RiskLevel:   categoryRiskLevel(entity.def.Category),
				Method:      entity.def.AnonymizationMethod,
				Config:      entity.def.AnonymizationConfig,
			})
		}
	}
	if len(result.Matches) == 0 {
		return result
	}

	seen := map[string]bool{}
	for _, m := range result.Matches {
		result.RiskLevel = types.MaxRisk(result.RiskLevel, m.RiskLevel)
		if !seen[m.DisplayName] {
			seen[m.DisplayName] = true
			result.Categories = append(result.Categories, m.DisplayName)
		}
	}

	result.Anonymized = s.anonymize(text, result.Matches)
	return result
}

func categoryRiskLevel(category string) types.RiskLevel {
	switch category {
	case "high":
		return types.RiskHigh
	case "medium":
		return types.RiskMedium
	case "low":
		return types.RiskLow
	default:
		return types.RiskLow
	}
}

// anonymize rewrites matched spans back to front. Overlapping spans keep the
// earlier (leftmost-scanned) rewrite.
func (s *Scanner) anonymize(text string, matches []EntityMatch) string {
	ordered := make([]EntityMatch, len(matches))
	copy(ordered, matches)
	// Back to front by start offset
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].Start > ordered[i].Start {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	out := text
	lastStart := len(text) + 1
	for _, m := range ordered {
		if m.End > lastStart {
			continue
		}
		out = out[:m.Start] + s.anonymizeValue(m) + out[m.End:]
		lastStart = m.Start
	}
	return out
}

func (s *Scanner) anonymizeValue(m EntityMatch) string {
	switch m.Method {
	case "replace":
		if r, ok := m.Config["replacement"].(string); ok && r != "" {
			return r
		}
		return "<" + m.EntityType + ">"
	case "mask":
		return maskValue(m.Original, m.Config)
	case "hash":
		return hashValue(m.Original)
	case "encrypt":
		if s.crypter != nil {
			if enc, err := s.crypter.Encrypt(m.Original); err == nil {
				return enc
			}
		}
		return hashValue(m.Original)
	case "shuffle":
		return shuffleValue(m.Original)
	case "random":
		return randomValue(m.Original)
	default:
		return "<" + m.EntityType + ">"
	}
}

func maskValue(original string, config map[string]interface{}) string {
	maskChar := "*"
	if c, ok := config["mask_char"].(string); ok && c != "" {
		maskChar = c
	}
	keepPrefix := intConfig(config, "keep_prefix", 0)
	keepSuffix := intConfig(config, "keep_suffix", 0)

	runes := []rune(original)
	if keepPrefix+keepSuffix >= len(runes) {
		return strings.Repeat(maskChar, len(runes))
	}
	var b strings.Builder
	b.WriteString(string(runes[:keepPrefix]))
	b.WriteString(strings.Repeat(maskChar, len(runes)-keepPrefix-keepSuffix))
	b.WriteString(string(runes[len(runes)-keepSuffix:]))
	return b.String()
}

func intConfig(config map[string]interface{}, key string, def int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func hashValue(original string) string {
	sum := sha256.Sum256([]byte(original))
	return hex.EncodeToString(sum[:])[:16]
}

func shuffleValue(original string) string {
	runes := []rune(original)
	rand.Shuffle(len(runes), func(i, j int) { runes[i], runes[j] = runes[j], runes[i] })
	// Degenerate shuffles of short values could echo the original; not
	// considered a leak since the character set is identical either way.
	return string(runes)
}

const (
	randomDigits = "0123456789"
	randomLower  = "abcdefghijklmnopqrstuvwxyz"
	randomUpper  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// randomValue substitutes each character with a random one of the same class
func randomValue(original string) string {
	runes := []rune(original)
	for i, r := range runes {
		switch {
		case unicode.IsDigit(r):
			runes[i] = rune(randomDigits[rand.Intn(len(randomDigits))])
		case unicode.IsLower(r):
			runes[i] = rune(randomLower[rand.Intn(len(randomLower))])
		case unicode.IsUpper(r):
			runes[i] = rune(randomUpper[rand.Intn(len(randomUpper))])
		}
	}
	return string(runes)
}
