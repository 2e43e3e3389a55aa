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

// Package logger emits one JSON object per line to stdout. Every entry
// carries the component and instance plus the tenant and request it concerns,
// so multi-tenant traffic can be filtered without parsing message text.
package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel is the severity of an entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger writes structured entries for one service component
type Logger struct {
	Component  string
	InstanceID string
}

type logEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	TenantID   string                 `json:"tenant_id"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a logger for the named component. The instance id comes from
// INSTANCE_ID, falling back to the hostname.
func New(component string) *Logger {
	instance := os.Getenv("INSTANCE_ID")
	if instance == "" {
		if host, err := os.Hostname(); err == nil {
			instance = host
		} else {
			instance = "unknown"
		}
	}
	return &Logger{Component: component, InstanceID: instance}
}

// Log writes one entry. tenantID and requestID may be empty for
// service-level events.
func (l *Logger) Log(level LogLevel, tenantID, requestID, message string, fields map[string]interface{}) {
	entry := logEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		TenantID:   tenantID,
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: unloggable entry: %v", err)
		return
	}
	log.Println(string(raw))
}

// Info logs at INFO
func (l *Logger) Info(tenantID, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, tenantID, requestID, message, fields)
}

// Warn logs at WARN
func (l *Logger) Warn(tenantID, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, tenantID, requestID, message, fields)
}

// Error logs at ERROR
func (l *Logger) Error(tenantID, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, tenantID, requestID, message, fields)
}

// Debug logs at DEBUG
func (l *Logger) Debug(tenantID, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, tenantID, requestID, message, fields)
}
