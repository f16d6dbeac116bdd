// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

// ParseLevel converts a LOG_LEVEL value into a LogLevel, defaulting to INFO.
func ParseLevel(value string) LogLevel {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := levelRank[level]; ok {
		return level
	}
	return INFO
}

// Logger provides structured logging for one router component
type Logger struct {
	Component  string
	InstanceID string
	Container  string
	MinLevel   LogLevel
	RequestID  string

	mu  *sync.Mutex
	out *log.Logger
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component writing to stdout
func New(component string) *Logger {
	return NewWithOutput(component, os.Stdout)
}

// NewWithOutput creates a Logger that writes JSON lines to w
func NewWithOutput(component string, w io.Writer) *Logger {
	// Get instance ID from environment (set during deployment)
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	// Get container name from hostname
	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
		MinLevel:   ParseLevel(os.Getenv("LOG_LEVEL")),
		mu:         &sync.Mutex{},
		out:        log.New(w, "", 0),
	}
}

// Discard returns a Logger that drops every entry
func Discard() *Logger {
	l := NewWithOutput("discard", io.Discard)
	l.MinLevel = ERROR
	return l
}

// Named returns a copy of the logger for another component sharing the same output
func (l *Logger) Named(component string) *Logger {
	c := *l
	c.Component = component
	return &c
}

// WithRequestID returns a copy of the logger that tags every entry with requestID
func (l *Logger) WithRequestID(requestID string) *Logger {
	c := *l
	c.RequestID = requestID
	return &c
}

// Enabled reports whether entries at level are written
func (l *Logger) Enabled(level LogLevel) bool {
	return levelRank[level] >= levelRank[l.MinLevel]
}

// Log creates a structured log entry and writes it out
func (l *Logger) Log(level LogLevel, message string, fields map[string]interface{}) {
	if !l.Enabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		RequestID:  l.RequestID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.Log(INFO, message, fields)
}

// Error logs an error message
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.Log(ERROR, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.Log(WARN, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.Log(DEBUG, message, fields)
}

// InfoWithDuration logs an info message with duration field
func (l *Logger) InfoWithDuration(message string, duration time.Duration, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = float64(duration.Microseconds()) / 1000
	l.Info(message, fields)
}

// ErrorWithErr logs an error message carrying err in the error field
func (l *Logger) ErrorWithErr(message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(message, fields)
}
