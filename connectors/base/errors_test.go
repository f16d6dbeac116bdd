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
	"strings"
	"testing"
)

func TestConfigError(t *testing.T) {
	var empty *ConfigError
	if empty.ErrOrNil() != nil {
		t.Error("nil ConfigError should produce nil error")
	}
	if (&ConfigError{}).ErrOrNil() != nil {
		t.Error("ConfigError without problems should produce nil error")
	}

	single := NewConfigError("entry %d: missing %s", 0, "host")
	if got := single.Error(); got != "invalid router configuration: entry 0: missing host" {
		t.Errorf("Error() = %q", got)
	}

	multi := &ConfigError{}
	multi.Add("first")
	multi.Add("second")
	err := multi.ErrOrNil()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "2 problems") {
		t.Errorf("expected problem count in %q", err.Error())
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("expected errors.Is(err, ErrInvalidConfig)")
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{"no such database", &NoSuchDatabaseError{Name: "nosuchdb"}, ErrNoSuchDatabase, "no such database nosuchdb"},
		{"no such cluster", &NoSuchClusterError{Label: "label9"}, ErrNoSuchCluster, "no such cluster label9"},
		{"read preference", &InvalidReadPreferenceError{Value: "sometimes"}, ErrInvalidReadPreference, "invalid read preference: sometimes"},
		{"read preference with label", &InvalidReadPreferenceError{Label: "main", Value: "x"}, ErrInvalidReadPreference, "cluster main: invalid read preference: x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("resolve: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
			if tt.err.Error() != tt.message {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.message)
			}
		})
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewClientError("label1", "NewClient", cause)

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if err.Error() != "label1.NewClient: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestInvalidTimeoutError(t *testing.T) {
	err := fmt.Errorf("set timeout: %w", &InvalidTimeoutError{Value: "-1s"})
	if !errors.Is(err, ErrInvalidTimeout) {
		t.Error("expected errors.Is(err, ErrInvalidTimeout)")
	}
	if errors.Is(err, ErrInvalidConfig) {
		t.Error("timeout errors are not configuration errors")
	}
	if !strings.Contains(err.Error(), "invalid timeout -1s") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
