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

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted for the config file path.
const EnvConfigPath = "MONGOROUTER_CONFIG"

// File represents the root structure of a router configuration file
type File struct {
	TimeoutMs int         `yaml:"timeout_ms,omitempty"`
	Journal   bool        `yaml:"journal,omitempty"`
	Clusters  interface{} `yaml:"clusters"`
}

// RouterConfig is a loaded and validated configuration file
type RouterConfig struct {
	Path     string
	Timeout  time.Duration // 0 keeps the driver default
	Journal  bool
	Clusters []ClusterSpec
}

// LoadFile reads, expands and validates the configuration file at path
func LoadFile(path string) (*RouterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// ParseFile parses a YAML (or JSON) configuration document after expanding
// environment variable references in it
func ParseFile(data []byte) (*RouterConfig, error) {
	expanded := expandEnvVars(string(data))

	var file File
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if file.TimeoutMs < 0 {
		return nil, fmt.Errorf("timeout_ms must not be negative, got %d", file.TimeoutMs)
	}

	clusters, err := Parse(file.Clusters)
	if err != nil {
		return nil, err
	}

	return &RouterConfig{
		Timeout:  time.Duration(file.TimeoutMs) * time.Millisecond,
		Journal:  file.Journal,
		Clusters: clusters,
	}, nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references in the string.
// Supports ${VAR_NAME}, ${VAR_NAME:-default} and $VAR_NAME. Undefined
// variables expand to the empty string.
//
// A "$" that does not start a variable name is left alone, so dbpath
// anchors such as "users$" survive expansion.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

// ExampleConfigFile returns an annotated example configuration
func ExampleConfigFile() string {
	return `# mongorouter configuration
# Environment variables can be referenced using ${VAR_NAME} or ${VAR_NAME:-default} syntax

# Socket timeout passed to every client, in milliseconds (optional)
timeout_ms: ${MONGOROUTER_TIMEOUT_MS:-0}

# Request journal acknowledgment on writes (w=1 is always used)
journal: false

# Clusters are matched in order: the first dbpath that matches a database name wins.
clusters:
  - accounts:
      host: ${ACCOUNTS_HOST:-127.0.0.1}
      port: 27017
      dbpath: accounts

  - events:
      host: [events-1.internal, events-2.internal, events-3.internal]
      port: 27017
      replicaSet: events-rs
      read_preference: secondary_preferred
      dbpath: ["events_\\d{6}", "audit"]

  # Catch-all; declared last so it never shadows the clusters above.
  - default:
      host: 127.0.0.1
      port: 27018
      dbpath: ".*"
`
}
