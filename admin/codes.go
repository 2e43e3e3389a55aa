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
	"crypto/rand"
	"fmt"
	"math/big"

	"xxai/platform/shared/logger"
)

// CodeSender delivers a registration verification code to the address.
// Deployments plug in a mail gateway; the default just logs the code.
type CodeSender interface {
	Send(email, code string) error
}

// LogCodeSender writes codes to the service log for dev and test setups
type LogCodeSender struct {
	Log *logger.Logger
}

// Send logs the code instead of mailing it
func (s *LogCodeSender) Send(email, code string) error {
	s.Log.Info("", "", "verification code issued", map[string]interface{}{
		"email": email,
		"code":  code,
	})
	return nil
}

// generateCode mints a 6-digit verification code
func generateCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "000000"
	}
	return fmt.Sprintf("%06d", n.Int64())
}
