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

package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"mongorouter/connectors/base"
	"mongorouter/connectors/config"
	"mongorouter/connectors/mongodb"
	"mongorouter/connectors/registry"
	"mongorouter/shared/logger"
)

// Options configures a Router
type Options struct {
	// Timeout is the socket timeout passed to every client; 0 keeps the
	// driver default.
	Timeout time.Duration

	// Journal sets the j flag of the write concern (W is always 1).
	Journal bool

	// ClientFactory builds clients for single node and mongos clusters.
	// Defaults to mongodb.NewSimpleClientFactory().
	ClientFactory base.ClientFactory

	// ReplicaSetClientFactory builds clients for replica set clusters.
	// Defaults to mongodb.NewReplicaSetClientFactory().
	ReplicaSetClientFactory base.ClientFactory

	Logger  *logger.Logger
	Metrics *Metrics
}

// Router resolves database names to database handles on the cluster whose
// dbpath matches first. It is safe for concurrent use.
type Router struct {
	registry *registry.Registry
	logger   *logger.Logger
	metrics  *Metrics

	mu         sync.RWMutex
	databases  map[string]base.Database
	generation uint64 // bumped by every effective SetTimeout
	closed     bool
}

// New builds a router from validated cluster specs. No client is constructed
// until a name is resolved.
func New(specs []config.ClusterSpec, opts Options) (*Router, error) {
	log := opts.Logger
	if log == nil {
		log = logger.New("router")
	}
	if opts.ClientFactory == nil {
		opts.ClientFactory = mongodb.NewSimpleClientFactory()
	}
	if opts.ReplicaSetClientFactory == nil {
		opts.ReplicaSetClientFactory = mongodb.NewReplicaSetClientFactory()
	}

	regOpts := registry.Options{
		Timeout:                 opts.Timeout,
		Journal:                 opts.Journal,
		ClientFactory:           opts.ClientFactory,
		ReplicaSetClientFactory: opts.ReplicaSetClientFactory,
		Logger:                  log.Named("registry"),
	}
	if opts.Metrics != nil {
		regOpts.Observer = opts.Metrics
	}

	reg, err := registry.New(specs, regOpts)
	if err != nil {
		return nil, err
	}

	log.Info("Router created", map[string]interface{}{
		"clusters":   len(specs),
		"timeout_ms": opts.Timeout.Milliseconds(),
		"journal":    opts.Journal,
	})

	return &Router{
		registry:  reg,
		logger:    log,
		metrics:   opts.Metrics,
		databases: make(map[string]base.Database),
	}, nil
}

// NewFromConfig validates a decoded configuration value (see config.Parse)
// and builds a router from it.
func NewFromConfig(raw interface{}, opts Options) (*Router, error) {
	specs, err := config.Parse(raw)
	if err != nil {
		return nil, err
	}
	return New(specs, opts)
}

// NewFromFile loads a YAML configuration file and builds a router from it.
// The file's timeout and journal settings apply unless opts sets them.
func NewFromFile(path string, opts Options) (*Router, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if opts.Timeout == 0 {
		opts.Timeout = cfg.Timeout
	}
	opts.Journal = opts.Journal || cfg.Journal
	return New(cfg.Clusters, opts)
}

// Resolve returns the database handle for name. The first call for a name
// matches it against the clusters in configuration order, constructs the
// cluster's client if needed and caches the handle; later calls return the
// cached handle. A name no cluster matches yields *base.NoSuchDatabaseError
// and leaves the router unchanged.
//
// Client construction runs without the router lock. A resolution that
// overlaps a SetTimeout is retried, so no handle bound to a client of the
// previous timeout is ever cached or returned.
func (r *Router) Resolve(ctx context.Context, name string) (base.Database, error) {
	start := time.Now()

	for {
		r.mu.RLock()
		closed := r.closed
		db, ok := r.databases[name]
		generation := r.generation
		r.mu.RUnlock()

		if closed {
			return nil, base.ErrRouterClosed
		}
		if ok {
			r.metrics.resolved(ResultHit, start)
			return db, nil
		}

		cluster, err := r.registry.Match(name)
		if err != nil {
			r.metrics.resolved(ResultNoMatch, start)
			return nil, err
		}

		client, err := r.registry.Connection(ctx, cluster)
		if err != nil {
			r.metrics.resolved(ResultError, start)
			return nil, err
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, base.ErrRouterClosed
		}
		if r.generation != generation {
			// Timeout changed while connecting; the client may be closed
			r.mu.Unlock()
			if err := ctx.Err(); err != nil {
				r.metrics.resolved(ResultError, start)
				return nil, err
			}
			continue
		}
		if db, ok := r.databases[name]; ok {
			r.mu.Unlock()
			r.metrics.resolved(ResultHit, start)
			return db, nil
		}
		db = client.Database(name)
		r.databases[name] = db
		r.mu.Unlock()

		r.metrics.resolved(ResultMiss, start)
		r.logger.Debug("Resolved database", map[string]interface{}{
			"database": name,
			"cluster":  cluster.Label,
		})
		return db, nil
	}
}

// Database resolves name with a background context
func (r *Router) Database(name string) (base.Database, error) {
	return r.Resolve(context.Background(), name)
}

// MongoDatabase resolves name and returns the driver database handle. It
// fails when the router was built with a non-driver client factory.
func (r *Router) MongoDatabase(ctx context.Context, name string) (*mongo.Database, error) {
	db, err := r.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	mdb, ok := db.(*mongo.Database)
	if !ok {
		return nil, fmt.Errorf("database %s is not backed by the MongoDB driver (%T)", name, db)
	}
	return mdb, nil
}

// SetTimeout changes the socket timeout. Setting the current value is a
// no-op. Otherwise every live client is closed and every cached handle is
// dropped before SetTimeout returns, so the next resolution of any name
// rebuilds its cluster's client with the new timeout. A negative timeout
// yields *base.InvalidTimeoutError and changes nothing. Close failures are
// returned joined; the invalidation completes regardless.
func (r *Router) SetTimeout(ctx context.Context, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return base.ErrRouterClosed
	}

	changed, err := r.registry.SetTimeout(ctx, timeout)
	if !changed {
		return err
	}

	dropped := len(r.databases)
	r.databases = make(map[string]base.Database)
	r.generation++
	r.metrics.invalidated()

	r.logger.Info("Timeout changed, cache invalidated", map[string]interface{}{
		"timeout_ms":        timeout.Milliseconds(),
		"dropped_databases": dropped,
	})
	return err
}

// Timeout returns the current socket timeout
func (r *Router) Timeout() time.Duration {
	return r.registry.Timeout()
}

// Route returns the cluster that would serve name, without connecting
func (r *Router) Route(name string) (*registry.Cluster, error) {
	return r.registry.Match(name)
}

// Cluster returns the client for the cluster with the given label,
// constructing it on first use.
func (r *Router) Cluster(ctx context.Context, label string) (base.Client, error) {
	if r.isClosed() {
		return nil, base.ErrRouterClosed
	}
	c, err := r.registry.Lookup(label)
	if err != nil {
		return nil, err
	}
	return r.registry.Connection(ctx, c)
}

// Clusters returns the configured clusters in configuration order
func (r *Router) Clusters() []*registry.Cluster {
	return r.registry.Clusters()
}

// Live returns the labels of clusters holding a live client
func (r *Router) Live() []string {
	return r.registry.Live()
}

// Resolved returns the cached database names, sorted
func (r *Router) Resolved() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.databases))
	for name := range r.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheck pings every live client.
// Returns a map of cluster labels to their health status
func (r *Router) HealthCheck(ctx context.Context) map[string]*base.HealthStatus {
	return r.registry.HealthCheck(ctx)
}

// Ping resolves name and checks its cluster answers. Driver databases run
// the ping command against the database itself; other clients are pinged
// when they implement base.Pinger. Resolution errors are returned as errors,
// ping failures as an unhealthy status.
func (r *Router) Ping(ctx context.Context, name string) (*base.HealthStatus, error) {
	db, err := r.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	switch d := db.(type) {
	case *mongo.Database:
		err = d.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
	default:
		err = r.pingCluster(ctx, name)
	}

	status := &base.HealthStatus{
		Healthy:   err == nil,
		Latency:   time.Since(start),
		Timestamp: time.Now(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}

func (r *Router) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// pingCluster pings the client serving name. After Close the registry
// refuses to build a client, so nothing is created outside the router's view.
func (r *Router) pingCluster(ctx context.Context, name string) error {
	if r.isClosed() {
		return base.ErrRouterClosed
	}
	cluster, err := r.registry.Match(name)
	if err != nil {
		return err
	}
	client, err := r.registry.Connection(ctx, cluster)
	if err != nil {
		return err
	}
	p, ok := client.(base.Pinger)
	if !ok {
		return errors.New("client does not support ping")
	}
	return p.Ping(ctx)
}

// Close closes every live client and drops every cached handle. Later
// calls fail with base.ErrRouterClosed. Closing twice is a no-op.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.databases = nil

	err := r.registry.Close(ctx)
	r.logger.Info("Router closed", nil)
	return err
}
