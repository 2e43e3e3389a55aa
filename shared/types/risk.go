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

package types

// RiskLevel represents the severity of a detected risk
type RiskLevel string

const (
	RiskNone   RiskLevel = "no_risk"
	RiskLow    RiskLevel = "low_risk"
	RiskMedium RiskLevel = "medium_risk"
	RiskHigh   RiskLevel = "high_risk"
)

// riskPriority orders risk levels: high > medium > low > no_risk
var riskPriority = map[RiskLevel]int{
	RiskNone:   0,
	RiskLow:    1,
	RiskMedium: 2,
	RiskHigh:   3,
}

// Priority returns the numeric priority of a risk level (higher is riskier).
// Unknown levels sort below no_risk.
func (r RiskLevel) Priority() int {
	if p, ok := riskPriority[r]; ok {
		return p
	}
	return -1
}

// MaxRisk returns the highest of the given risk levels
func MaxRisk(levels ...RiskLevel) RiskLevel {
	max := RiskNone
	for _, l := range levels {
		if l.Priority() > max.Priority() {
			max = l
		}
	}
	return max
}

// SuggestAction is the action the caller should take on the inspected content
type SuggestAction string

const (
	ActionPass    SuggestAction = "pass"
	ActionReplace SuggestAction = "replace"
	ActionReject  SuggestAction = "reject"
)

// ActionForRisk derives the suggested action from an overall risk level:
// pass iff no risk, reject iff high risk, replace otherwise.
func ActionForRisk(overall RiskLevel) SuggestAction {
	switch overall {
	case RiskNone:
		return ActionPass
	case RiskHigh:
		return ActionReject
	default:
		return ActionReplace
	}
}

// Category is one of the twelve fixed risk category codes (S1..S12)
type Category string

const (
	CategoryS1  Category = "S1"
	CategoryS2  Category = "S2"
	CategoryS3  Category = "S3"
	CategoryS4  Category = "S4"
	CategoryS5  Category = "S5"
	CategoryS6  Category = "S6"
	CategoryS7  Category = "S7"
	CategoryS8  Category = "S8"
	CategoryS9  Category = "S9"
	CategoryS10 Category = "S10"
	CategoryS11 Category = "S11"
	CategoryS12 Category = "S12"
)

// categoryNames maps category codes to human-readable names
var categoryNames = map[Category]string{
	CategoryS1:  "General Political Topics",
	CategoryS2:  "Sensitive Political Topics",
	CategoryS3:  "Damage to National Image",
	CategoryS4:  "Harm to Minors",
	CategoryS5:  "Violent Crime",
	CategoryS6:  "Illegal Activities",
	CategoryS7:  "Pornography",
	CategoryS8:  "Discriminatory Content",
	CategoryS9:  "Prompt Injection",
	CategoryS10: "Insults",
	CategoryS11: "Privacy Violation",
	CategoryS12: "Commercial Violations",
}

// categoryRisk is the fixed category -> risk level table
var categoryRisk = map[Category]RiskLevel{
	CategoryS1:  RiskMedium,
	CategoryS2:  RiskHigh,
	CategoryS3:  RiskHigh,
	CategoryS4:  RiskMedium,
	CategoryS5:  RiskHigh,
	CategoryS6:  RiskMedium,
	CategoryS7:  RiskMedium,
	CategoryS8:  RiskLow,
	CategoryS9:  RiskHigh,
	CategoryS10: RiskLow,
	CategoryS11: RiskLow,
	CategoryS12: RiskLow,
}

// Name returns the human-readable name of the category, or the raw code when unknown
func (c Category) Name() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return string(c)
}

// Risk returns the fixed risk level of the category
func (c Category) Risk() RiskLevel {
	if r, ok := categoryRisk[c]; ok {
		return r
	}
	return RiskNone
}

// IsSecurity reports whether the category belongs to the security dimension.
// S9 (prompt injection) is security; every other Sx is compliance.
func (c Category) IsSecurity() bool {
	return c == CategoryS9
}

// AllCategories lists the twelve category codes in order
func AllCategories() []Category {
	return []Category{
		CategoryS1, CategoryS2, CategoryS3, CategoryS4, CategoryS5, CategoryS6,
		CategoryS7, CategoryS8, CategoryS9, CategoryS10, CategoryS11, CategoryS12,
	}
}

// ValidCategory reports whether code names a known category
func ValidCategory(code string) bool {
	_, ok := categoryNames[Category(code)]
	return ok
}

// SensitivityLevel selects which sensitivity threshold triggers detection
type SensitivityLevel string

const (
	SensitivityLow    SensitivityLevel = "low"
	SensitivityMedium SensitivityLevel = "medium"
	SensitivityHigh   SensitivityLevel = "high"
)

// Default sensitivity thresholds per trigger level
const (
	DefaultLowThreshold    = 0.95
	DefaultMediumThreshold = 0.60
	DefaultHighThreshold   = 0.40
)
