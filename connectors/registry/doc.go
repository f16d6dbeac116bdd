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
Package registry holds the ordered set of configured MongoDB clusters and the
single live client each of them may own.

# Overview

The Registry is built once from validated cluster specs. It handles:

  - Compiling each cluster's dbpath into an anchored pattern
  - First-match resolution of database names, in configuration order
  - Lazy construction of at most one client per cluster
  - Closing every live client when the socket timeout changes
  - Health checking across all live clients

# Creating a Registry

	reg, err := registry.New(specs, registry.Options{
	    Timeout:                 5 * time.Second,
	    ClientFactory:           mongodb.NewSimpleClientFactory(),
	    ReplicaSetClientFactory: mongodb.NewReplicaSetClientFactory(),
	})

# Resolving Names

	cluster, err := reg.Match("orders_2024")
	if err != nil {
	    return err // *base.NoSuchDatabaseError
	}
	client, err := reg.Connection(ctx, cluster)

The first cluster whose pattern matches wins. A broad pattern declared early
shadows any narrower pattern declared after it.

# Thread Safety

All Registry methods are safe for concurrent use. Connection uses
double-checked locking, so concurrent first calls for the same cluster
construct exactly one client.
*/
package registry
