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
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"mongorouter/connectors/base"
)

// Recognised keys of a cluster spec. replicaSet and read_preference are the
// only accepted spellings; their aliases are rejected rather than ignored.
const (
	KeyHost           = "host"
	KeyPort           = "port"
	KeyDBPath         = "dbpath"
	KeyReplicaSet     = "replicaSet"
	KeyReadPreference = "read_preference"
)

var rejectedAliases = map[string]string{
	"replica_set":    KeyReplicaSet,
	"replicaset":     KeyReplicaSet,
	"readPreference": KeyReadPreference,
}

// ClusterSpec is one validated cluster entry, in configuration order.
type ClusterSpec struct {
	Label          string   `json:"label" yaml:"label"`
	Hosts          []string `json:"hosts" yaml:"hosts"`
	Port           int      `json:"port" yaml:"port"`
	DBPath         []string `json:"dbpath" yaml:"dbpath"`
	ReplicaSet     string   `json:"replica_set,omitempty" yaml:"replicaSet,omitempty"`
	ReadPreference string   `json:"read_preference,omitempty" yaml:"read_preference,omitempty"`
}

// Parse validates a decoded configuration value and returns the cluster specs
// in configuration order. raw is a sequence of single-key mappings
// label -> {host, port, dbpath, replicaSet?, read_preference?}, as produced by
// yaml.v3, or by encoding/json with UseNumber (see ParseJSON). port must be
// an integer; floats are rejected even when integral.
//
// Every entry is checked before anything is returned; a single bad entry
// rejects the whole configuration with a *base.ConfigError listing all
// problems found.
func Parse(raw interface{}) ([]ClusterSpec, error) {
	entries, ok := asSequence(raw)
	if !ok {
		return nil, base.NewConfigError("config must be a list, got %s", describe(raw))
	}

	problems := &base.ConfigError{}
	specs := make([]ClusterSpec, 0, len(entries))

	for i, entry := range entries {
		spec, ok := parseEntry(i, entry, problems)
		if ok {
			specs = append(specs, spec)
		}
	}

	if err := problems.ErrOrNil(); err != nil {
		return nil, err
	}
	if err := ValidateSpecs(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

func parseEntry(index int, entry interface{}, problems *base.ConfigError) (ClusterSpec, bool) {
	outer, ok := asMap(entry)
	if !ok {
		problems.Add("entry %d: config must be a list of single-key mappings, got %s", index, describe(entry))
		return ClusterSpec{}, false
	}
	if len(outer) != 1 {
		problems.Add("entry %d: expected exactly one label, got %d keys", index, len(outer))
		return ClusterSpec{}, false
	}

	var label string
	var value interface{}
	for k, v := range outer {
		label, value = k, v
	}

	cfg, ok := asMap(value)
	if !ok {
		problems.Add("cluster %q: config structure is broken, expected a mapping, got %s", label, describe(value))
		return ClusterSpec{}, false
	}

	spec := ClusterSpec{Label: label}
	valid := true
	fail := func(format string, args ...interface{}) {
		problems.Add("cluster %q: "+format, append([]interface{}{label}, args...)...)
		valid = false
	}

	if v, present := cfg[KeyHost]; !present {
		fail("config entries must have a value for host")
	} else if hosts, ok := asStrings(v); !ok {
		fail("host must be a string or a list of strings, got %s", describe(v))
	} else {
		spec.Hosts = hosts
	}

	if v, present := cfg[KeyPort]; !present {
		fail("config entries must have a value for port")
	} else if port, ok := asInt(v); !ok {
		fail("port must be an int, got %s", describe(v))
	} else {
		spec.Port = port
	}

	if v, present := cfg[KeyDBPath]; !present {
		fail("config entries must have a value for dbpath")
	} else if paths, ok := asStrings(v); !ok {
		fail("dbpath must either be a string or a list of strings, got %s", describe(v))
	} else {
		spec.DBPath = paths
	}

	if v, present := cfg[KeyReplicaSet]; present {
		if s, ok := v.(string); ok {
			spec.ReplicaSet = s
		} else {
			fail("replicaSet must be a string, got %s", describe(v))
		}
	}

	if v, present := cfg[KeyReadPreference]; present {
		if s, ok := v.(string); ok {
			spec.ReadPreference = s
		} else {
			fail("read_preference must be a string, got %s", describe(v))
		}
	}

	aliases := make([]string, 0)
	for alias := range rejectedAliases {
		if _, present := cfg[alias]; present {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		fail("unsupported key %q, use %q", alias, rejectedAliases[alias])
	}

	return spec, valid
}

// ValidateSpecs checks specs built in code or by Parse: at least one cluster,
// unique non-empty labels, non-empty hosts and dbpaths, ports in range.
func ValidateSpecs(specs []ClusterSpec) error {
	problems := &base.ConfigError{}
	if len(specs) == 0 {
		problems.Add("config must declare at least one cluster")
	}

	seen := make(map[string]int, len(specs))
	for i, spec := range specs {
		name := spec.Label
		if name == "" {
			problems.Add("entry %d: label must not be empty", i)
			name = fmt.Sprintf("#%d", i)
		} else if first, dup := seen[name]; dup {
			problems.Add("cluster %q: duplicate label, first declared at entry %d", name, first)
		} else {
			seen[name] = i
		}

		if len(spec.Hosts) == 0 {
			problems.Add("cluster %q: host must not be empty", name)
		}
		for _, h := range spec.Hosts {
			if strings.TrimSpace(h) == "" {
				problems.Add("cluster %q: host entries must not be blank", name)
				break
			}
		}
		if spec.Port < 1 || spec.Port > math.MaxUint16 {
			problems.Add("cluster %q: port %d out of range", name, spec.Port)
		}
		if len(spec.DBPath) == 0 {
			problems.Add("cluster %q: dbpath must not be empty", name)
		}
		for _, p := range spec.DBPath {
			if p == "" {
				problems.Add("cluster %q: dbpath entries must not be empty", name)
				break
			}
		}
	}
	return problems.ErrOrNil()
}

func asSequence(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case []map[string]interface{}:
		out := make([]interface{}, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

// asMap accepts the two mapping shapes yaml.v3 and encoding/json produce.
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	}
	return nil, false
}

func asStrings(v interface{}) ([]string, bool) {
	switch s := v.(type) {
	case string:
		return []string{s}, true
	case []string:
		return append([]string(nil), s...), true
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// ParseJSON decodes a JSON configuration document and validates it like
// Parse. Numbers are decoded as json.Number, so "port": 27017.0 is rejected
// the same way as a YAML float.
func ParseJSON(data []byte) ([]ClusterSpec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return Parse(raw)
}

func describe(v interface{}) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
