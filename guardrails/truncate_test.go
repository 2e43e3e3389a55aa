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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xxai/platform/shared/types"
)

func TestTruncateMessagesUnderBudget(t *testing.T) {
	msgs := []types.Message{
		types.UserMessage("short question"),
		types.AssistantMessage("short answer"),
	}
	got := TruncateMessages(msgs, 1000)
	assert.Equal(t, msgs, got)
}

func TestTruncateMessagesDropsLeadingNonUser(t *testing.T) {
	msgs := []types.Message{
		{Role: types.RoleSystem, Content: types.StringContent("system prompt")},
		types.AssistantMessage("greeting"),
		types.UserMessage("hello"),
	}
	got := TruncateMessages(msgs, 1000)
	require.Len(t, got, 1)
	assert.Equal(t, types.RoleUser, got[0].Role)
}

func TestTruncateMessagesTerminalPair(t *testing.T) {
	msgs := []types.Message{
		types.UserMessage(strings.Repeat("u", 500)),
		types.AssistantMessage(strings.Repeat("a", 500)),
	}
	got := TruncateMessages(msgs, 100)
	require.Len(t, got, 2)
	assert.Equal(t, types.RoleUser, got[0].Role)
	assert.Equal(t, types.RoleAssistant, got[1].Role)

	total := len([]rune(got[0].Content.PlainText())) + len([]rune(got[1].Content.PlainText()))
	assert.LessOrEqual(t, total, 100)
	// Both sides share the budget evenly when both overflow
	assert.Equal(t, 50, len([]rune(got[0].Content.PlainText())))
}

func TestTruncateMessagesWindowIsContiguous(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	msgs := []types.Message{types.UserMessage(strings.Repeat(text, 10))}
	got := TruncateMessages(msgs, 26)
	require.Len(t, got, 1)
	cut := got[0].Content.PlainText()
	assert.Len(t, []rune(cut), 26)
	assert.Contains(t, strings.Repeat(text, 10), cut)
}

func TestTruncateMessagesBackfill(t *testing.T) {
	msgs := []types.Message{
		types.UserMessage(strings.Repeat("x", 40)),
		types.AssistantMessage(strings.Repeat("y", 40)),
		types.UserMessage(strings.Repeat("z", 30)),
	}
	// Budget fits the last user message plus the assistant turn, not the
	// first user message
	got := TruncateMessages(msgs, 80)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, strings.Repeat("z", 30), last.Content.PlainText())
	assert.Equal(t, types.RoleUser, got[0].Role)
	total := 0
	for _, m := range got {
		total += len([]rune(m.Content.PlainText()))
	}
	assert.LessOrEqual(t, total, 80)
}

func TestTruncateMessagesKeepsImageParts(t *testing.T) {
	msgs := []types.Message{{
		Role: types.RoleUser,
		Content: types.PartsContent(
			types.TextPart(strings.Repeat("t", 200)),
			types.ImagePart("file:///img.png"),
		),
	}}
	got := TruncateMessages(msgs, 50)
	require.Len(t, got, 1)
	assert.Len(t, []rune(got[0].Content.PlainText()), 50)
	assert.Equal(t, []string{"file:///img.png"}, got[0].Content.ImageURLs())
}

func TestTruncateMessagesEmpty(t *testing.T) {
	assert.Empty(t, TruncateMessages(nil, 100))
	assert.Empty(t, TruncateMessages([]types.Message{types.AssistantMessage("only")}, 100))
}
