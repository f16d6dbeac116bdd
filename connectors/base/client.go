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
	"context"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultWriteConcernW is the fixed write acknowledgment level passed to every client.
const DefaultWriteConcernW = 1

// Database is a database handle scoped to one name within a Client.
// *mongo.Database satisfies it.
type Database interface {
	Name() string
}

// Client is an opaque handle to one cluster.
type Client interface {
	// Database returns the handle for the named database on this client.
	Database(name string) Database

	// Close releases the client and every pooled connection it holds.
	Close(ctx context.Context) error
}

// Pinger is implemented by clients that can verify their cluster is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientFactory constructs clients. The router holds two: one for single
// node / mongos deployments and one for replica sets.
type ClientFactory interface {
	NewClient(ctx context.Context, params *ClientParams) (Client, error)
}

// ClientFactoryFunc adapts a function to ClientFactory.
type ClientFactoryFunc func(ctx context.Context, params *ClientParams) (Client, error)

// NewClient calls f(ctx, params).
func (f ClientFactoryFunc) NewClient(ctx context.Context, params *ClientParams) (Client, error) {
	return f(ctx, params)
}

// ClientParams is the parameter bag handed to a ClientFactory.
type ClientParams struct {
	Label string `json:"label"` // Cluster label, informational

	// Simple clients
	Hosts []string `json:"hosts,omitempty"`
	Port  int      `json:"port,omitempty"`

	// Replica set clients: "h1:27017,h2:27017" or a mongodb:// URI
	HostsOrURI string `json:"hosts_or_uri,omitempty"`
	ReplicaSet string `json:"replica_set,omitempty"`

	ReadPreference ReadPreference `json:"read_preference"`
	SocketTimeout  time.Duration  `json:"socket_timeout"` // 0 keeps the driver default
	W              int            `json:"w"`
	Journal        bool           `json:"j"`
}

// IsReplicaSet reports whether the params target a replica set client.
func (p *ClientParams) IsReplicaSet() bool {
	return p.ReplicaSet != ""
}

// HostList returns the seed list as host:port pairs.
func (p *ClientParams) HostList() []string {
	if p.HostsOrURI != "" {
		parts := strings.Split(p.HostsOrURI, ",")
		hosts := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				hosts = append(hosts, part)
			}
		}
		return hosts
	}
	hosts := make([]string, 0, len(p.Hosts))
	for _, h := range p.Hosts {
		hosts = append(hosts, JoinHostPort(h, p.Port))
	}
	return hosts
}

// JoinHostPort formats host:port the way MongoDB seed lists expect.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// HealthStatus represents the health of one live client
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`         // Overall health status
	Latency   time.Duration `json:"latency"`         // Round trip of the ping
	Timestamp time.Time     `json:"timestamp"`       // When health check was performed
	Error     string        `json:"error,omitempty"` // Error message if unhealthy
}
