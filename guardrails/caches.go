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
	"strings"
	"sync"
	"time"

	"xxai/platform/shared/logger"
	"xxai/platform/shared/types"
	"xxai/platform/store"
)

// CacheEntry is a cached value with expiration
type CacheEntry[T any] struct {
	Value      T
	ExpiresAt  time.Time
	LastUpdate time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry[T]) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// GlobalKey is the template-cache key for tenantless (global) templates
const GlobalKey = "__global__"

// KeywordSnapshot maps tenant -> list name -> lowercased keywords
type KeywordSnapshot map[string]map[string][]string

// keywordData holds both list kinds of one full snapshot load
type keywordData struct {
	Blacklists KeywordSnapshot
	Whitelists KeywordSnapshot
}

// KeywordCache holds a full snapshot of every tenant's active keyword lists,
// refreshed lazily every 5 minutes. Reads take the snapshot pointer under a
// read lock; the refresh swaps it atomically under the write lock
// (double-checked so concurrent expirations load once).
type KeywordCache struct {
	repo *store.ConfigRepository
	log  *logger.Logger
	ttl  time.Duration

	mu    sync.RWMutex
	entry *CacheEntry[*keywordData]
}

// NewKeywordCache creates the keyword cache
func NewKeywordCache(repo *store.ConfigRepository, log *logger.Logger) *KeywordCache {
	return &KeywordCache{repo: repo, log: log, ttl: 5 * time.Minute}
}

func (c *KeywordCache) snapshot(ctx context.Context) *keywordData {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()
	if entry != nil && !entry.IsExpired() {
		return entry.Value
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry != nil && !c.entry.IsExpired() {
		return c.entry.Value
	}

	data, err := c.load(ctx)
	if err != nil {
		c.log.Warn("", "", "keyword cache load failed", map[string]interface{}{"error": err.Error()})
		if c.entry != nil {
			// Serve the stale snapshot rather than failing the request
			return c.entry.Value
		}
		return &keywordData{Blacklists: KeywordSnapshot{}, Whitelists: KeywordSnapshot{}}
	}
	now := time.Now()
	c.entry = &CacheEntry[*keywordData]{Value: data, ExpiresAt: now.Add(c.ttl), LastUpdate: now}
	return data
}

func (c *KeywordCache) load(ctx context.Context) (*keywordData, error) {
	black, err := c.repo.LoadActiveKeywordLists(ctx, true)
	if err != nil {
		return nil, err
	}
	white, err := c.repo.LoadActiveKeywordLists(ctx, false)
	if err != nil {
		return nil, err
	}
	return &keywordData{
		Blacklists: buildKeywordSnapshot(black),
		Whitelists: buildKeywordSnapshot(white),
	}, nil
}

func buildKeywordSnapshot(lists []*store.KeywordList) KeywordSnapshot {
	snap := KeywordSnapshot{}
	for _, l := range lists {
		tenant := snap[l.TenantID]
		if tenant == nil {
			tenant = map[string][]string{}
			snap[l.TenantID] = tenant
		}
		lowered := make([]string, 0, len(l.Keywords))
		for _, kw := range l.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				lowered = append(lowered, strings.ToLower(kw))
			}
		}
		tenant[l.Name] = lowered
	}
	return snap
}

// Blacklists returns the tenant's active blacklist map
func (c *KeywordCache) Blacklists(ctx context.Context, tenantID string) map[string][]string {
	return c.snapshot(ctx).Blacklists[tenantID]
}

// Whitelists returns the tenant's active whitelist map
func (c *KeywordCache) Whitelists(ctx context.Context, tenantID string) map[string][]string {
	return c.snapshot(ctx).Whitelists[tenantID]
}

// Invalidate drops the snapshot; the next read reloads it
func (c *KeywordCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

// TemplateSnapshot maps tenant (or GlobalKey) -> category -> is_default -> content
type TemplateSnapshot map[string]map[string]map[bool]string

// TemplateCache holds a full snapshot of active response templates,
// refreshed lazily every 10 minutes.
type TemplateCache struct {
	repo *store.ConfigRepository
	log  *logger.Logger
	ttl  time.Duration

	mu    sync.RWMutex
	entry *CacheEntry[TemplateSnapshot]
}

// NewTemplateCache creates the template cache
func NewTemplateCache(repo *store.ConfigRepository, log *logger.Logger) *TemplateCache {
	return &TemplateCache{repo: repo, log: log, ttl: 10 * time.Minute}
}

func (c *TemplateCache) snapshot(ctx context.Context) TemplateSnapshot {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()
	if entry != nil && !entry.IsExpired() {
		return entry.Value
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry != nil && !c.entry.IsExpired() {
		return c.entry.Value
	}

	templates, err := c.repo.LoadActiveTemplates(ctx)
	if err != nil {
		c.log.Warn("", "", "template cache load failed", map[string]interface{}{"error": err.Error()})
		if c.entry != nil {
			return c.entry.Value
		}
		return TemplateSnapshot{}
	}

	snap := TemplateSnapshot{}
	for _, t := range templates {
		key := t.TenantID
		if key == "" {
			key = GlobalKey
		}
		byCategory := snap[key]
		if byCategory == nil {
			byCategory = map[string]map[bool]string{}
			snap[key] = byCategory
		}
		byDefault := byCategory[t.Category]
		if byDefault == nil {
			byDefault = map[bool]string{}
			byCategory[t.Category] = byDefault
		}
		byDefault[t.IsDefault] = t.TemplateContent
	}

	now := time.Now()
	c.entry = &CacheEntry[TemplateSnapshot]{Value: snap, ExpiresAt: now.Add(c.ttl), LastUpdate: now}
	return snap
}

// Lookup returns the template content for (tenant-or-global key, category,
// is_default), with ok=false when absent.
func (c *TemplateCache) Lookup(ctx context.Context, key, category string, isDefault bool) (string, bool) {
	byCategory, ok := c.snapshot(ctx)[key]
	if !ok {
		return "", false
	}
	byDefault, ok := byCategory[category]
	if !ok {
		return "", false
	}
	content, ok := byDefault[isDefault]
	return content, ok
}

// Invalidate drops the snapshot; the next read reloads it
func (c *TemplateCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

// ResolvedRiskConfig is the per-tenant risk-type view the pipeline consumes
type ResolvedRiskConfig struct {
	Enabled      map[types.Category]bool
	Thresholds   map[types.SensitivityLevel]float64
	TriggerLevel types.SensitivityLevel
}

// Threshold returns the threshold selected by the trigger level
func (c *ResolvedRiskConfig) Threshold() float64 {
	if v, ok := c.Thresholds[c.TriggerLevel]; ok {
		return v
	}
	return types.DefaultMediumThreshold
}

// DefaultRiskConfig is the fail-open config: every category enabled with the
// default thresholds and medium trigger level.
func DefaultRiskConfig() *ResolvedRiskConfig {
	enabled := make(map[types.Category]bool, 12)
	for _, c := range types.AllCategories() {
		enabled[c] = true
	}
	return &ResolvedRiskConfig{
		Enabled: enabled,
		Thresholds: map[types.SensitivityLevel]float64{
			types.SensitivityLow:    types.DefaultLowThreshold,
			types.SensitivityMedium: types.DefaultMediumThreshold,
			types.SensitivityHigh:   types.DefaultHighThreshold,
		},
		TriggerLevel: types.SensitivityMedium,
	}
}

// RiskConfigCache caches per-tenant risk-type configs for 5 minutes. A tenant
// without a stored row, or a load error, resolves to the default-open config.
type RiskConfigCache struct {
	repo *store.ConfigRepository
	log  *logger.Logger
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]*CacheEntry[*ResolvedRiskConfig]
}

// NewRiskConfigCache creates the risk-config cache
func NewRiskConfigCache(repo *store.ConfigRepository, log *logger.Logger) *RiskConfigCache {
	return &RiskConfigCache{
		repo:    repo,
		log:     log,
		ttl:     5 * time.Minute,
		entries: make(map[string]*CacheEntry[*ResolvedRiskConfig]),
	}
}

// Get returns the tenant's resolved risk config
func (c *RiskConfigCache) Get(ctx context.Context, tenantID string) *ResolvedRiskConfig {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if ok && !entry.IsExpired() {
		return entry.Value
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[tenantID]; ok && !entry.IsExpired() {
		return entry.Value
	}

	resolved := DefaultRiskConfig()
	cfg, err := c.repo.GetRiskTypeConfig(ctx, tenantID)
	switch {
	case err == store.ErrNotFound:
		// Unconfigured tenants run default-open
	case err != nil:
		c.log.Warn(tenantID, "", "risk config load failed", map[string]interface{}{"error": err.Error()})
		return resolved // do not cache the failure
	default:
		for code, on := range cfg.Enabled {
			if types.ValidCategory(code) {
				resolved.Enabled[types.Category(code)] = on
			}
		}
		if cfg.HighSensitivityThreshold > 0 {
			resolved.Thresholds[types.SensitivityHigh] = cfg.HighSensitivityThreshold
		}
		if cfg.MediumSensitivityThreshold > 0 {
			resolved.Thresholds[types.SensitivityMedium] = cfg.MediumSensitivityThreshold
		}
		if cfg.LowSensitivityThreshold > 0 {
			resolved.Thresholds[types.SensitivityLow] = cfg.LowSensitivityThreshold
		}
		if cfg.SensitivityTriggerLevel != "" {
			resolved.TriggerLevel = types.SensitivityLevel(cfg.SensitivityTriggerLevel)
		}
	}

	now := time.Now()
	c.entries[tenantID] = &CacheEntry[*ResolvedRiskConfig]{Value: resolved, ExpiresAt: now.Add(c.ttl), LastUpdate: now}
	return resolved
}

// Invalidate drops one tenant's entry, or every entry when tenantID is empty
func (c *RiskConfigCache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tenantID == "" {
		c.entries = make(map[string]*CacheEntry[*ResolvedRiskConfig])
		return
	}
	delete(c.entries, tenantID)
}
