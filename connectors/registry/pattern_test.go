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

package registry

import "testing"

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		name    string
		dbpath  []string
		source  string
		matches []string
		rejects []string
	}{
		{
			name:    "exact name",
			dbpath:  []string{"db1"},
			source:  "^(?:(db1)$)",
			matches: []string{"db1"},
			rejects: []string{"db10", "xdb1", "db"},
		},
		{
			name:    "short name does not match longer one",
			dbpath:  []string{"twit"},
			matches: []string{"twit"},
			rejects: []string{"twitter"},
		},
		{
			name:    "list is joined with alternation",
			dbpath:  []string{"arraydb1", `arraydb\dxyz`},
			source:  `^(?:(arraydb1|arraydb\dxyz)$)`,
			matches: []string{"arraydb1", "arraydb9xyz"},
			rejects: []string{"arraydb2", "arraydb9xyzz"},
		},
		{
			name:    "regex pattern",
			dbpath:  []string{`dbpattern\d*`},
			matches: []string{"dbpattern", "dbpattern123"},
			rejects: []string{"dbpatternx"},
		},
		{
			name:    "existing anchor is kept as is",
			dbpath:  []string{"logs_.*$"},
			source:  "^(?:logs_.*$)",
			matches: []string{"logs_2024"},
			rejects: []string{"applogs_2024"},
		},
		{
			name:    "match starts at the beginning of the name",
			dbpath:  []string{"users"},
			rejects: []string{"old_users"},
		},
		{
			name:    "trailing newline is not stripped",
			dbpath:  []string{"db1"},
			matches: []string{"db1"},
			rejects: []string{"db1\n", "db1\r\n"},
		},
		{
			name:    "explicit anchor ends at the end of the name",
			dbpath:  []string{"logs_[0-9]+$"},
			matches: []string{"logs_2024"},
			rejects: []string{"logs_2024\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern, err := CompilePattern(tt.dbpath)
			if err != nil {
				t.Fatalf("CompilePattern(%v): %v", tt.dbpath, err)
			}
			if tt.source != "" && pattern.String() != tt.source {
				t.Errorf("pattern = %q, want %q", pattern.String(), tt.source)
			}
			for _, name := range tt.matches {
				if !pattern.MatchString(name) {
					t.Errorf("expected %q to match %v", name, tt.dbpath)
				}
			}
			for _, name := range tt.rejects {
				if pattern.MatchString(name) {
					t.Errorf("expected %q not to match %v", name, tt.dbpath)
				}
			}
		})
	}
}

func TestCompilePattern_Invalid(t *testing.T) {
	if _, err := CompilePattern([]string{"db(["}); err == nil {
		t.Error("expected compile error")
	}
}
