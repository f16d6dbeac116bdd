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

import "strings"

// ReadPreference selects which cluster member answers reads.
type ReadPreference int

const (
	Primary ReadPreference = iota
	PrimaryPreferred
	Secondary
	SecondaryPreferred
	Nearest
)

var readPreferenceNames = map[ReadPreference]string{
	Primary:            "PRIMARY",
	PrimaryPreferred:   "PRIMARY_PREFERRED",
	Secondary:          "SECONDARY",
	SecondaryPreferred: "SECONDARY_PREFERRED",
	Nearest:            "NEAREST",
}

// DefaultReadPreference applies when a cluster does not set read_preference.
const DefaultReadPreference = Primary

// String returns the canonical upper-case name.
func (rp ReadPreference) String() string {
	if name, ok := readPreferenceNames[rp]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText implements encoding.TextMarshaler.
func (rp ReadPreference) MarshalText() ([]byte, error) {
	return []byte(rp.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (rp *ReadPreference) UnmarshalText(text []byte) error {
	parsed, err := ParseReadPreference(string(text))
	if err != nil {
		return err
	}
	*rp = parsed
	return nil
}

// ParseReadPreference converts a configured value such as "secondary_preferred"
// into a ReadPreference. Matching is case-insensitive.
func ParseReadPreference(value string) (ReadPreference, error) {
	upper := strings.ToUpper(strings.TrimSpace(value))
	for rp, name := range readPreferenceNames {
		if name == upper {
			return rp, nil
		}
	}
	return Primary, &InvalidReadPreferenceError{Value: value}
}
