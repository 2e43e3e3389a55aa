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

package store

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// defaultEntityTypesYAML is the built-in global entity-type table, seeded once
// when no global entity types exist yet.
const defaultEntityTypesYAML = `
- entity_type: ID_CARD_NUMBER
  display_name: ID Card Number
  category: high
  pattern: '\b\d{17}[\dXx]\b'
  check_input: true
  check_output: true
  anonymization_method: mask
  anonymization_config:
    keep_prefix: 3
    keep_suffix: 2
- entity_type: PHONE_NUMBER
  display_name: Phone Number
  category: medium
  pattern: '\b1[3-9]\d{9}\b'
  check_input: true
  check_output: true
  anonymization_method: mask
  anonymization_config:
    keep_prefix: 3
    keep_suffix: 4
- entity_type: EMAIL_ADDRESS
  display_name: Email Address
  category: low
  pattern: '\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b'
  check_input: true
  check_output: true
  anonymization_method: replace
  anonymization_config:
    replacement: '<EMAIL>'
- entity_type: BANK_CARD_NUMBER
  display_name: Bank Card Number
  category: high
  pattern: '\b\d{16,19}\b'
  check_input: true
  check_output: true
  anonymization_method: mask
  anonymization_config:
    keep_suffix: 4
- entity_type: IP_ADDRESS
  display_name: IP Address
  category: low
  pattern: '\b(?:\d{1,3}\.){3}\d{1,3}\b'
  check_input: false
  check_output: true
  anonymization_method: replace
  anonymization_config:
    replacement: '<IP>'
- entity_type: PASSPORT_NUMBER
  display_name: Passport Number
  category: medium
  pattern: '\b[EeGg]\d{8}\b'
  check_input: true
  check_output: true
  anonymization_method: hash
`

type seedEntityType struct {
	EntityType          string                 `yaml:"entity_type"`
	DisplayName         string                 `yaml:"display_name"`
	Category            string                 `yaml:"category"`
	Pattern             string                 `yaml:"pattern"`
	CheckInput          bool                   `yaml:"check_input"`
	CheckOutput         bool                   `yaml:"check_output"`
	AnonymizationMethod string                 `yaml:"anonymization_method"`
	AnonymizationConfig map[string]interface{} `yaml:"anonymization_config"`
}

// SeedDefaultEntityTypes inserts the built-in global entity types when none
// exist yet. Idempotent across restarts and worker processes: a concurrent
// duplicate insert is swallowed.
func (r *ConfigRepository) SeedDefaultEntityTypes(ctx context.Context) error {
	count, err := r.CountGlobalEntityTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to count global entity types: %w", err)
	}
	if count > 0 {
		return nil
	}

	var seeds []seedEntityType
	if err := yaml.Unmarshal([]byte(defaultEntityTypesYAML), &seeds); err != nil {
		return fmt.Errorf("built-in entity type table invalid: %w", err)
	}

	for _, s := range seeds {
		e := &DataSecurityEntityType{
			EntityType:  s.EntityType,
			DisplayName: s.DisplayName,
			Category:    s.Category,
			Recognition: RecognitionConfig{
				Pattern:     s.Pattern,
				CheckInput:  s.CheckInput,
				CheckOutput: s.CheckOutput,
			},
			AnonymizationMethod: s.AnonymizationMethod,
			AnonymizationConfig: s.AnonymizationConfig,
			IsActive:            true,
			IsGlobal:            true,
		}
		if err := r.CreateEntityType(ctx, e); err != nil && err != ErrDuplicate {
			return fmt.Errorf("failed to seed entity type %s: %w", s.EntityType, err)
		}
	}
	return nil
}
