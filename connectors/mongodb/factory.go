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

package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"mongorouter/connectors/base"
)

const (
	// DefaultConnectTimeout is the default connection timeout
	DefaultConnectTimeout = 10 * time.Second
	// DefaultAppName is reported to the server for monitoring
	DefaultAppName = "mongorouter"
)

var (
	_ base.ClientFactory = (*Factory)(nil)
	_ base.Client        = (*Client)(nil)
	_ base.Pinger        = (*Client)(nil)
)

// Factory builds mongo-driver clients from router client params.
type Factory struct {
	// AppName is passed to the driver for server-side monitoring.
	AppName string

	// ConnectTimeout bounds the initial connection and the verification ping.
	ConnectTimeout time.Duration

	// VerifyConnection pings the cluster before handing the client out.
	// A failed ping disconnects the client and returns the driver error.
	VerifyConnection bool

	replicaSet bool
}

// NewSimpleClientFactory returns the factory for single node and mongos
// clusters. A single seed host is dialled directly.
func NewSimpleClientFactory() *Factory {
	return &Factory{AppName: DefaultAppName, ConnectTimeout: DefaultConnectTimeout}
}

// NewReplicaSetClientFactory returns the factory for replica set clusters.
func NewReplicaSetClientFactory() *Factory {
	return &Factory{AppName: DefaultAppName, ConnectTimeout: DefaultConnectTimeout, replicaSet: true}
}

// ClientOptions translates params into driver options
func (f *Factory) ClientOptions(params *base.ClientParams) (*options.ClientOptions, error) {
	if params == nil {
		return nil, fmt.Errorf("mongodb: nil client params")
	}

	opts := options.Client()
	fromURI := isURI(params.HostsOrURI)

	if fromURI {
		opts.ApplyURI(params.HostsOrURI)
	} else {
		hosts := params.HostList()
		if len(hosts) == 0 {
			return nil, fmt.Errorf("mongodb: cluster %s has no hosts", params.Label)
		}
		opts.SetHosts(hosts)
		if !f.replicaSet && len(hosts) == 1 {
			opts.SetDirect(true)
		}
	}

	if f.replicaSet {
		if params.ReplicaSet == "" {
			return nil, fmt.Errorf("mongodb: cluster %s has no replica set name", params.Label)
		}
		opts.SetReplicaSet(params.ReplicaSet)
	}

	rp, err := readPreference(params.ReadPreference)
	if err != nil {
		return nil, err
	}
	opts.SetReadPreference(rp)

	if params.SocketTimeout > 0 {
		opts.SetSocketTimeout(params.SocketTimeout)
	}

	w := params.W
	if w == 0 {
		w = base.DefaultWriteConcernW
	}
	journal := params.Journal
	opts.SetWriteConcern(&writeconcern.WriteConcern{W: w, Journal: &journal})

	appName := f.AppName
	if appName == "" {
		appName = DefaultAppName
	}
	opts.SetAppName(appName)

	if f.ConnectTimeout > 0 {
		opts.SetConnectTimeout(f.ConnectTimeout)
	}

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("mongodb: invalid options for cluster %s: %w", params.Label, err)
	}
	return opts, nil
}

// NewClient implements base.ClientFactory
func (f *Factory) NewClient(ctx context.Context, params *base.ClientParams) (base.Client, error) {
	opts, err := f.ClientOptions(params)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	c := &Client{client: client, label: params.Label, readPref: opts.ReadPreference}
	if !f.VerifyConnection {
		return c, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, f.pingTimeout())
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return c, nil
}

func (f *Factory) pingTimeout() time.Duration {
	if f.ConnectTimeout > 0 {
		return f.ConnectTimeout
	}
	return DefaultConnectTimeout
}

// Client adapts *mongo.Client to base.Client
type Client struct {
	client   *mongo.Client
	label    string
	readPref *readpref.ReadPref
}

// Database returns the *mongo.Database for name as a base.Database
func (c *Client) Database(name string) base.Database {
	return c.client.Database(name)
}

// Close disconnects the client and drains its pool
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Ping checks the cluster is reachable with the client's read preference
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, c.readPref)
}

// Label returns the cluster label the client was built for
func (c *Client) Label() string {
	return c.label
}

// Mongo returns the underlying driver client
func (c *Client) Mongo() *mongo.Client {
	return c.client
}

func readPreference(rp base.ReadPreference) (*readpref.ReadPref, error) {
	switch rp {
	case base.Primary:
		return readpref.Primary(), nil
	case base.PrimaryPreferred:
		return readpref.PrimaryPreferred(), nil
	case base.Secondary:
		return readpref.Secondary(), nil
	case base.SecondaryPreferred:
		return readpref.SecondaryPreferred(), nil
	case base.Nearest:
		return readpref.Nearest(), nil
	}
	return nil, &base.InvalidReadPreferenceError{Value: rp.String()}
}

func isURI(s string) bool {
	return strings.HasPrefix(s, "mongodb://") || strings.HasPrefix(s, "mongodb+srv://")
}
