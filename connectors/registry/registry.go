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
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mongorouter/connectors/base"
	"mongorouter/connectors/config"
	"mongorouter/shared/logger"
)

// Client kinds, as reported to observers and in logs
const (
	KindSimple     = "simple"
	KindReplicaSet = "replica_set"
)

// Cluster is one configured cluster. It is immutable after New returns.
type Cluster struct {
	Label          string
	Hosts          []string
	Port           int
	Pattern        *regexp.Regexp
	ReplicaSet     string
	ReadPreference base.ReadPreference

	index int
}

// Matches reports whether the cluster's dbpath pattern accepts name.
func (c *Cluster) Matches(name string) bool {
	return c.Pattern.MatchString(name)
}

// Kind returns KindReplicaSet when a replica set name is configured.
func (c *Cluster) Kind() string {
	if c.ReplicaSet != "" {
		return KindReplicaSet
	}
	return KindSimple
}

// Params builds the factory parameters for this cluster. Replica set
// clusters get every host joined with the single port as HostsOrURI;
// simple clusters get Hosts and Port.
func (c *Cluster) Params(timeout time.Duration, journal bool) *base.ClientParams {
	params := &base.ClientParams{
		Label:          c.Label,
		ReadPreference: c.ReadPreference,
		SocketTimeout:  timeout,
		W:              base.DefaultWriteConcernW,
		Journal:        journal,
	}

	if c.ReplicaSet == "" {
		params.Hosts = append([]string(nil), c.Hosts...)
		params.Port = c.Port
		return params
	}

	seeds := make([]string, 0, len(c.Hosts))
	for _, h := range c.Hosts {
		seeds = append(seeds, base.JoinHostPort(h, c.Port))
	}
	params.HostsOrURI = strings.Join(seeds, ",")
	params.ReplicaSet = c.ReplicaSet
	return params
}

// Observer receives connection lifecycle events. The router uses it to
// feed Prometheus metrics.
type Observer interface {
	ClientConstructed(cluster *Cluster, err error)
	ClientsClosed(count int)
}

// Options configures a Registry
type Options struct {
	// Timeout is the initial socket timeout; 0 keeps the driver default.
	Timeout time.Duration

	// Journal is passed to every client as the write concern j flag.
	Journal bool

	// ClientFactory builds clients for clusters without a replica set.
	ClientFactory base.ClientFactory

	// ReplicaSetClientFactory builds clients for replica set clusters.
	ReplicaSetClientFactory base.ClientFactory

	Logger   *logger.Logger
	Observer Observer
}

type liveConnection struct {
	client     base.Client
	generation uint64
	createdAt  time.Time
}

// Registry holds the ordered cluster list and at most one live client per
// cluster. Thread-safe for concurrent access.
type Registry struct {
	clusters          []*Cluster
	byLabel           map[string]*Cluster
	clientFactory     base.ClientFactory
	replicaSetFactory base.ClientFactory
	journal           bool
	logger            *logger.Logger
	observer          Observer

	flights singleflight.Group // keyed by cluster label

	mu          sync.RWMutex
	timeout     time.Duration
	generation  uint64
	closed      bool
	connections []*liveConnection // indexed by Cluster.index
}

// New validates specs and builds the registry. Nothing is constructed when
// any spec is invalid: configuration problems yield *base.ConfigError and
// unknown read preferences *base.InvalidReadPreferenceError.
func New(specs []config.ClusterSpec, opts Options) (*Registry, error) {
	if opts.ClientFactory == nil || opts.ReplicaSetClientFactory == nil {
		return nil, errors.New("registry: both client factories are required")
	}
	if opts.Timeout < 0 {
		return nil, base.NewConfigError("timeout must not be negative, got %v", opts.Timeout)
	}
	if err := config.ValidateSpecs(specs); err != nil {
		return nil, err
	}

	problems := &base.ConfigError{}
	var readPrefErr error
	clusters := make([]*Cluster, 0, len(specs))

	for i, spec := range specs {
		pattern, err := CompilePattern(spec.DBPath)
		if err != nil {
			problems.Add("cluster %q: invalid dbpath: %v", spec.Label, err)
			continue
		}

		readPref := base.DefaultReadPreference
		if spec.ReadPreference != "" {
			readPref, err = base.ParseReadPreference(spec.ReadPreference)
			if err != nil {
				if readPrefErr == nil {
					readPrefErr = &base.InvalidReadPreferenceError{Label: spec.Label, Value: spec.ReadPreference}
				}
				continue
			}
		}

		clusters = append(clusters, &Cluster{
			Label:          spec.Label,
			Hosts:          append([]string(nil), spec.Hosts...),
			Port:           spec.Port,
			Pattern:        pattern,
			ReplicaSet:     spec.ReplicaSet,
			ReadPreference: readPref,
			index:          i,
		})
	}

	if err := problems.ErrOrNil(); err != nil {
		return nil, err
	}
	if readPrefErr != nil {
		return nil, readPrefErr
	}

	log := opts.Logger
	if log == nil {
		log = logger.New("registry")
	}

	byLabel := make(map[string]*Cluster, len(clusters))
	for _, c := range clusters {
		byLabel[c.Label] = c
	}

	return &Registry{
		clusters:          clusters,
		byLabel:           byLabel,
		clientFactory:     opts.ClientFactory,
		replicaSetFactory: opts.ReplicaSetClientFactory,
		journal:           opts.Journal,
		logger:            log,
		observer:          opts.Observer,
		timeout:           opts.Timeout,
		connections:       make([]*liveConnection, len(clusters)),
	}, nil
}

// Clusters returns the clusters in configuration order
func (r *Registry) Clusters() []*Cluster {
	return append([]*Cluster(nil), r.clusters...)
}

// Match returns the first cluster, in configuration order, whose pattern
// matches name. An earlier broad pattern shadows any later narrower one.
func (r *Registry) Match(name string) (*Cluster, error) {
	for _, c := range r.clusters {
		if c.Matches(name) {
			return c, nil
		}
	}
	return nil, &base.NoSuchDatabaseError{Name: name}
}

// Lookup returns the cluster with the given label
func (r *Registry) Lookup(label string) (*Cluster, error) {
	if c, ok := r.byLabel[label]; ok {
		return c, nil
	}
	return nil, &base.NoSuchClusterError{Label: label}
}

// Timeout returns the socket timeout passed to newly constructed clients
func (r *Registry) Timeout() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeout
}

// Generation counts invalidations (timeout changes, DisconnectAll, Close).
// Clients built for an older generation are closed.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Live returns the labels of clusters that currently hold a client, in
// configuration order
func (r *Registry) Live() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	labels := make([]string, 0)
	for i, lc := range r.connections {
		if lc != nil {
			labels = append(labels, r.clusters[i].Label)
		}
	}
	return labels
}

// Connection returns the client for cluster c, constructing it through the
// matching factory on first use. At most one client per cluster exists at a
// time and concurrent first calls share one construction. The factory runs
// without holding the registry lock, so lookups of other clusters never wait
// for it. Factory errors are returned as-is and nothing is cached.
func (r *Registry) Connection(ctx context.Context, c *Cluster) (base.Client, error) {
	if err := r.owns(c); err != nil {
		return nil, err
	}

	for {
		r.mu.RLock()
		closed := r.closed
		lc := r.connections[c.index]
		r.mu.RUnlock()

		if closed {
			return nil, base.ErrRouterClosed
		}
		if lc != nil {
			return lc.client, nil
		}

		ch := r.flights.DoChan(c.Label, func() (interface{}, error) {
			return r.connect(ctx, c)
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		switch {
		case res.Err == nil:
			return res.Val.(base.Client), nil
		case errors.Is(res.Err, errStaleBuild):
			// Invalidated while building; retry with the current timeout
			continue
		case res.Shared && ctx.Err() == nil && isContextErr(res.Err):
			// Another caller's context ended the shared build
			continue
		}
		return nil, res.Err
	}
}

// errStaleBuild marks a client built for a generation that was invalidated
// before it could be published.
var errStaleBuild = errors.New("registry: client built for a stale generation")

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Registry) owns(c *Cluster) error {
	if c == nil || c.index >= len(r.clusters) || r.clusters[c.index] != c {
		return fmt.Errorf("registry: cluster does not belong to this registry")
	}
	return nil
}

// connect builds the client for c outside the lock and publishes it only if
// no invalidation happened in the meantime.
func (r *Registry) connect(ctx context.Context, c *Cluster) (base.Client, error) {
	r.mu.RLock()
	if lc := r.connections[c.index]; lc != nil {
		r.mu.RUnlock()
		return lc.client, nil
	}
	generation := r.generation
	params := c.Params(r.timeout, r.journal)
	r.mu.RUnlock()

	factory := r.clientFactory
	if c.ReplicaSet != "" {
		factory = r.replicaSetFactory
	}

	start := time.Now()
	client, err := factory.NewClient(ctx, params)
	if err == nil && client == nil {
		err = fmt.Errorf("client factory returned no client for cluster %s", c.Label)
	}
	if r.observer != nil {
		r.observer.ClientConstructed(c, err)
	}
	if err != nil {
		r.logger.ErrorWithErr("Failed to construct client", err, map[string]interface{}{
			"cluster": c.Label,
			"kind":    c.Kind(),
		})
		return nil, err
	}

	r.mu.Lock()
	if r.closed || r.generation != generation {
		closed := r.closed
		r.mu.Unlock()

		r.discard(ctx, c, client, generation)
		if closed {
			return nil, base.ErrRouterClosed
		}
		return nil, errStaleBuild
	}
	r.connections[c.index] = &liveConnection{
		client:     client,
		generation: generation,
		createdAt:  time.Now(),
	}
	r.mu.Unlock()

	r.logger.InfoWithDuration("Constructed client", time.Since(start), map[string]interface{}{
		"cluster":    c.Label,
		"kind":       c.Kind(),
		"hosts":      params.HostList(),
		"generation": generation,
	})
	return client, nil
}

// discard closes a client that was built but never published
func (r *Registry) discard(ctx context.Context, c *Cluster, client base.Client, generation uint64) {
	if err := client.Close(ctx); err != nil {
		r.logger.ErrorWithErr("Error closing stale client", err, map[string]interface{}{"cluster": c.Label})
	}
	if r.observer != nil {
		r.observer.ClientsClosed(1)
	}
	r.logger.Info("Discarded client built before invalidation", map[string]interface{}{
		"cluster":  c.Label,
		"built_at": generation,
	})
}

// SetTimeout changes the timeout used for new clients. When it differs from
// the current one every live client is closed and discarded, so the next
// Connection call rebuilds it with the new value. Clients still being built
// for the old value are discarded when they finish. Setting the same timeout
// is a no-op. A negative timeout yields *base.InvalidTimeoutError. Close
// failures are returned joined, after every client has been discarded.
func (r *Registry) SetTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout < 0 {
		return false, &base.InvalidTimeoutError{Value: timeout.String()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if timeout == r.timeout {
		return false, nil
	}
	r.timeout = timeout
	r.generation++
	r.logger.Info("Socket timeout changed, closing live clients", map[string]interface{}{
		"timeout_ms": timeout.Milliseconds(),
		"generation": r.generation,
	})
	return true, r.closeAllLocked(ctx)
}

// DisconnectAll closes and discards every live client. Later Connection
// calls build new ones.
func (r *Registry) DisconnectAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	return r.closeAllLocked(ctx)
}

// Close closes every live client and refuses further connections with
// base.ErrRouterClosed. Closing twice is a no-op.
// Useful for graceful shutdown
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.generation++
	return r.closeAllLocked(ctx)
}

func (r *Registry) closeAllLocked(ctx context.Context) error {
	var errs []error
	closed := 0

	for i, lc := range r.connections {
		if lc == nil {
			continue
		}
		r.connections[i] = nil
		closed++

		label := r.clusters[i].Label
		if err := lc.client.Close(ctx); err != nil {
			r.logger.ErrorWithErr("Error closing client", err, map[string]interface{}{"cluster": label})
			errs = append(errs, base.NewClientError(label, "Close", err))
			continue
		}
		r.logger.Info("Closed client", map[string]interface{}{
			"cluster":  label,
			"age_ms":   time.Since(lc.createdAt).Milliseconds(),
			"built_at": lc.generation,
		})
	}

	if r.observer != nil && closed > 0 {
		r.observer.ClientsClosed(closed)
	}
	return errors.Join(errs...)
}

// HealthCheck pings every live client that implements base.Pinger.
// Returns a map of cluster labels to their health status
func (r *Registry) HealthCheck(ctx context.Context) map[string]*base.HealthStatus {
	type target struct {
		label  string
		pinger base.Pinger
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.connections))
	for i, lc := range r.connections {
		if lc == nil {
			continue
		}
		if p, ok := lc.client.(base.Pinger); ok {
			targets = append(targets, target{label: r.clusters[i].Label, pinger: p})
		}
	}
	r.mu.RUnlock()

	results := make(map[string]*base.HealthStatus, len(targets))
	for _, t := range targets {
		start := time.Now()
		err := t.pinger.Ping(ctx)
		status := &base.HealthStatus{
			Healthy:   err == nil,
			Latency:   time.Since(start),
			Timestamp: time.Now(),
		}
		if err != nil {
			r.logger.Warn("Health check failed", map[string]interface{}{"cluster": t.label, "error": err.Error()})
			status.Error = err.Error()
		}
		results[t.label] = status
	}
	return results
}
