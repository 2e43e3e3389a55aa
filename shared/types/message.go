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

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Part is a typed fragment of message content: plain text or an image URL.
// The OpenAI wire format allows message content to be either a bare string or
// an array of such parts; MessageContent models that union.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference: data URI, http(s) URL, or file:// path
type ImageURL struct {
	URL string `json:"url"`
}

const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// TextPart builds a text part
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// ImagePart builds an image_url part
func ImagePart(url string) Part {
	return Part{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: url}}
}

// MessageContent is either a plain string or a list of typed parts
type MessageContent struct {
	// Text holds the content when the wire form was a bare string
	Text string
	// Parts holds the content when the wire form was an array
	Parts []Part
	// IsParts distinguishes an empty string from an empty array
	IsParts bool
}

// StringContent builds string-form content
func StringContent(s string) MessageContent {
	return MessageContent{Text: s}
}

// PartsContent builds array-form content
func PartsContent(parts ...Part) MessageContent {
	return MessageContent{Parts: parts, IsParts: true}
}

// PlainText flattens the content to its text portions.
// Array-form text parts are joined with newlines; image parts contribute nothing.
func (c MessageContent) PlainText() string {
	if !c.IsParts {
		return c.Text
	}
	var texts []string
	for _, p := range c.Parts {
		if p.Type == PartTypeText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ImageURLs returns the URLs of all image parts, in order
func (c MessageContent) ImageURLs() []string {
	if !c.IsParts {
		return nil
	}
	var urls []string
	for _, p := range c.Parts {
		if p.Type == PartTypeImageURL && p.ImageURL != nil {
			urls = append(urls, p.ImageURL.URL)
		}
	}
	return urls
}

// HasImages reports whether any image part is present
func (c MessageContent) HasImages() bool {
	return len(c.ImageURLs()) > 0
}

// MarshalJSON emits the original wire shape: string or array
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsParts {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts either a string or an array of parts
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Parts = nil
		c.IsParts = false
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of parts: %w", err)
	}
	c.Text = ""
	c.Parts = parts
	c.IsParts = true
	return nil
}

// Message is a single chat message
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UserMessage builds a user message with string content
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: StringContent(text)}
}

// AssistantMessage builds an assistant message with string content
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: StringContent(text)}
}

// LastUserContent returns the plain text of the last user message, or ""
func LastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content.PlainText()
		}
	}
	return ""
}

// JoinedContent concatenates the plain text of all messages with newlines
func JoinedContent(messages []Message) string {
	var parts []string
	for _, m := range messages {
		if t := m.Content.PlainText(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// CollectImageURLs gathers every image URL across the messages, in order
func CollectImageURLs(messages []Message) []string {
	var urls []string
	for _, m := range messages {
		urls = append(urls, m.Content.ImageURLs()...)
	}
	return urls
}
