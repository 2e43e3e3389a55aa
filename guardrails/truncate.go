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
	"math/rand"

	"xxai/platform/shared/types"
)

// TruncateMessages caps the concatenated content length at maxLen runes.
// Leading non-user messages are dropped so the conversation always opens with
// a user turn. When the tail message is an assistant reply the terminal
// user/assistant pair is preserved, each side cut with a random contiguous
// window; a random window rather than a head or tail slice keeps long-prompt
// evasion from reliably pushing risky text out of the inspected region.
// Otherwise the last user message is kept whole and earlier turns are
// backfilled newest-first while the budget allows.
func TruncateMessages(messages []types.Message, maxLen int) []types.Message {
	msgs := dropLeadingNonUser(messages)
	if len(msgs) == 0 || maxLen <= 0 {
		return msgs
	}
	if totalLength(msgs) <= maxLen {
		return msgs
	}

	last := msgs[len(msgs)-1]
	if last.Role == types.RoleAssistant {
		return truncateTerminalPair(msgs, maxLen)
	}
	return backfillFromTail(msgs, maxLen)
}

func dropLeadingNonUser(messages []types.Message) []types.Message {
	for i, m := range messages {
		if m.Role == types.RoleUser {
			return messages[i:]
		}
	}
	return nil
}

func totalLength(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += len([]rune(m.Content.PlainText()))
	}
	return total
}

// truncateTerminalPair keeps the final user->assistant exchange, splitting the
// budget between the two sides and random-windowing whichever overflows.
func truncateTerminalPair(msgs []types.Message, maxLen int) []types.Message {
	assistant := msgs[len(msgs)-1]
	var user *types.Message
	for i := len(msgs) - 2; i >= 0; i-- {
		if msgs[i].Role == types.RoleUser {
			user = &msgs[i]
			break
		}
	}
	if user == nil {
		// No user turn before the assistant tail; window the tail alone
		return []types.Message{windowed(assistant, maxLen)}
	}

	userText := []rune(user.Content.PlainText())
	assistantText := []rune(assistant.Content.PlainText())

	userBudget := maxLen / 2
	if len(userText) < userBudget {
		userBudget = len(userText)
	}
	assistantBudget := maxLen - userBudget
	if len(assistantText) < assistantBudget {
		assistantBudget = len(assistantText)
		// Give leftover budget back to the user side
		if extra := maxLen - userBudget - assistantBudget; extra > 0 && len(userText) > userBudget {
			userBudget += extra
			if userBudget > len(userText) {
				userBudget = len(userText)
			}
		}
	}

	return []types.Message{
		windowed(*user, userBudget),
		windowed(assistant, assistantBudget),
	}
}

// backfillFromTail keeps the last user message whole (windowed when it alone
// overflows) and prepends earlier whole messages newest-first.
func backfillFromTail(msgs []types.Message, maxLen int) []types.Message {
	last := msgs[len(msgs)-1]
	lastLen := len([]rune(last.Content.PlainText()))
	if lastLen >= maxLen {
		return []types.Message{windowed(last, maxLen)}
	}

	kept := []types.Message{last}
	budget := maxLen - lastLen
	for i := len(msgs) - 2; i >= 0; i-- {
		l := len([]rune(msgs[i].Content.PlainText()))
		if l > budget {
			break
		}
		kept = append([]types.Message{msgs[i]}, kept...)
		budget -= l
	}
	return dropLeadingNonUser(kept)
}

// windowed cuts the message's text content to a uniformly random contiguous
// slice of length n. Image parts are preserved.
func windowed(m types.Message, n int) types.Message {
	text := []rune(m.Content.PlainText())
	if len(text) <= n {
		return m
	}
	start := 0
	if span := len(text) - n; span > 0 {
		start = rand.Intn(span + 1)
	}
	cut := string(text[start : start+n])

	if !m.Content.IsParts {
		m.Content = types.StringContent(cut)
		return m
	}
	parts := []types.Part{types.TextPart(cut)}
	for _, p := range m.Content.Parts {
		if p.Type == types.PartTypeImageURL {
			parts = append(parts, p)
		}
	}
	m.Content = types.PartsContent(parts...)
	return m
}
