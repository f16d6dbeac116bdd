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

import (
	"regexp"
	"strings"
)

// CompilePattern turns a dbpath (one or more alternatives) into the matcher
// used for database names.
//
// Alternatives are joined with "|". Unless the result already ends with "$"
// it is wrapped as "(<pattern>)$", so "twit" matches "twit" but not
// "twitter". The final expression is anchored at the start of the name.
// "$" matches only at the end of the name, never before a trailing newline.
func CompilePattern(dbpath []string) (*regexp.Regexp, error) {
	return regexp.Compile(PatternSource(dbpath))
}

// PatternSource returns the expression CompilePattern compiles.
func PatternSource(dbpath []string) string {
	pattern := strings.Join(dbpath, "|")
	if !strings.HasSuffix(pattern, "$") {
		pattern = "(" + pattern + ")$"
	}
	return "^(?:" + pattern + ")"
}
