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
Package base provides the capability interfaces and error types shared by the
cluster registry, the router and the MongoDB client factories.

# Client Capability

The router never speaks the MongoDB protocol itself. It consumes clients
through two small interfaces:

	type ClientFactory interface {
	    NewClient(ctx context.Context, params *ClientParams) (Client, error)
	}

	type Client interface {
	    Database(name string) Database
	    Close(ctx context.Context) error
	}

A router holds one factory for single node / mongos clusters and one for
replica sets. Tests substitute a ClientFactoryFunc that records every call.

# Client Parameters

ClientParams carries everything a factory needs: the seed hosts and port
(or, for replica sets, the comma-joined HostsOrURI list), the read
preference, the replica set name, the socket timeout, and the fixed write
concern (W=1 plus the Journal flag).

# Errors

Every error type has a matching sentinel so callers can branch with
errors.Is:

	db, err := r.Resolve(ctx, "users")
	if errors.Is(err, base.ErrNoSuchDatabase) {
	    // no cluster serves "users"
	}

ConfigError and InvalidReadPreferenceError are raised at construction time.
NoSuchDatabaseError and NoSuchClusterError are per call and leave the router
unchanged. Errors returned by a ClientFactory reach the caller unmodified;
failures to close a client are wrapped in ClientError and joined.
*/
package base
