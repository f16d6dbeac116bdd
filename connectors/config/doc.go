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

/*
Package config validates router configuration and loads it from YAML files.

# Configuration Shape

The router is configured with an ordered sequence of single-key mappings:

	clusters:
	  - label1:
	      host: 127.0.0.1               # string or list of strings
	      port: 27017                   # int
	      dbpath: db1                   # string or list of strings
	  - label2:
	      host: [h1, h2]
	      port: 27017
	      dbpath: ["arraydb1", "arraydb\\dxyz"]
	      replicaSet: rset0             # optional
	      read_preference: secondary    # optional, defaults to primary

Order matters: database names are matched against clusters in the order they
are declared.

# Validation

Parse accepts the decoded value (from yaml.v3, or from encoding/json with
UseNumber as ParseJSON does) and checks every entry before returning. A port
must be an integer; 27017.0 is rejected. All problems are collected into a single
*base.ConfigError; nothing is returned unless the whole configuration is
valid.

The keys replicaSet and read_preference are the only accepted spellings.
replica_set and readPreference are rejected with an explicit message instead
of being ignored.

# Loading Files

	cfg, err := config.LoadFile("/etc/mongorouter.yaml")
	if err != nil {
	    log.Fatal(err)
	}

Environment variables are expanded before parsing, using ${VAR},
${VAR:-default} or $VAR.
*/
package config
