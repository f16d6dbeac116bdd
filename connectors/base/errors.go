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

package base

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Sentinel errors, matchable with errors.Is against the typed errors below.
var (
	ErrInvalidConfig         = errors.New("invalid router configuration")
	ErrNoSuchDatabase        = errors.New("no such database")
	ErrNoSuchCluster         = errors.New("no such cluster")
	ErrInvalidReadPreference = errors.New("invalid read preference")
	ErrRouterClosed          = errors.New("router closed")
	ErrInvalidTimeout        = errors.New("invalid timeout")
)

// ConfigError reports a malformed configuration. It is raised before any
// cluster or client exists and lists every problem found.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	switch len(e.Problems) {
	case 0:
		return ErrInvalidConfig.Error()
	case 1:
		return ErrInvalidConfig.Error() + ": " + e.Problems[0]
	}
	return fmt.Sprintf("%s: %d problems: %s", ErrInvalidConfig, len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Add records a problem. Format arguments follow fmt.Sprintf.
func (e *ConfigError) Add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// ErrOrNil returns e when at least one problem was recorded.
func (e *ConfigError) ErrOrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// NewConfigError creates a ConfigError with a single problem.
func NewConfigError(format string, args ...interface{}) *ConfigError {
	e := &ConfigError{}
	e.Add(format, args...)
	return e
}

// NoSuchDatabaseError is returned when a database name matches no cluster.
type NoSuchDatabaseError struct {
	Name string
}

func (e *NoSuchDatabaseError) Error() string {
	return fmt.Sprintf("no such database %s", e.Name)
}

func (e *NoSuchDatabaseError) Is(target error) bool {
	return target == ErrNoSuchDatabase
}

// NoSuchClusterError is returned when a label matches no configured cluster.
type NoSuchClusterError struct {
	Label string
}

func (e *NoSuchClusterError) Error() string {
	return fmt.Sprintf("no such cluster %s", e.Label)
}

func (e *NoSuchClusterError) Is(target error) bool {
	return target == ErrNoSuchCluster
}

// InvalidReadPreferenceError is returned for an unrecognised read preference name.
type InvalidReadPreferenceError struct {
	Label string
	Value string
}

func (e *InvalidReadPreferenceError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("cluster %s: invalid read preference: %s", e.Label, e.Value)
	}
	return fmt.Sprintf("invalid read preference: %s", e.Value)
}

func (e *InvalidReadPreferenceError) Is(target error) bool {
	return target == ErrInvalidReadPreference
}

// InvalidTimeoutError is returned when a socket timeout is negative or does
// not fit in a time.Duration.
type InvalidTimeoutError struct {
	Value string
}

func (e *InvalidTimeoutError) Error() string {
	return fmt.Sprintf("invalid timeout %s: must be between 0 and %v", e.Value, time.Duration(math.MaxInt64))
}

func (e *InvalidTimeoutError) Is(target error) bool {
	return target == ErrInvalidTimeout
}

// ClientError wraps a failure returned by a ClientFactory or a client.
// The cause is reachable with errors.Is / errors.As.
type ClientError struct {
	Cluster   string
	Operation string
	Cause     error
}

func (e *ClientError) Error() string {
	return e.Cluster + "." + e.Operation + ": " + e.Cause.Error()
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// NewClientError creates a new ClientError
func NewClientError(cluster, operation string, cause error) *ClientError {
	return &ClientError{
		Cluster:   cluster,
		Operation: operation,
		Cause:     cause,
	}
}
