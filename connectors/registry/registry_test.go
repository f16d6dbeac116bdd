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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongorouter/connectors/base"
	"mongorouter/connectors/clienttest"
	"mongorouter/connectors/config"
	"mongorouter/shared/logger"
)

func testSpecs() []config.ClusterSpec {
	return []config.ClusterSpec{
		{Label: "label1", Hosts: []string{"127.0.0.1"}, Port: 27017, DBPath: []string{"db1"}},
		{Label: "label2", Hosts: []string{"127.0.0.1"}, Port: 27017, DBPath: []string{"db2"}, ReplicaSet: "rset0"},
		{Label: "label3", Hosts: []string{"127.0.0.1"}, Port: 27018, DBPath: []string{"dbp"}},
		{Label: "label4", Hosts: []string{"127.0.0.1"}, Port: 27019, DBPath: []string{"dbpat"}},
		{Label: "label5", Hosts: []string{"127.0.0.1"}, Port: 27020, DBPath: []string{`dbpattern\d*`}},
		{Label: "label6", Hosts: []string{"127.0.0.1"}, Port: 27021, DBPath: []string{"arraydb1", `arraydb\dxyz`}},
	}
}

type fixture struct {
	registry *Registry
	simple   *clienttest.Factory
	rset     *clienttest.Factory
}

func newFixture(t *testing.T, specs []config.ClusterSpec, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{simple: clienttest.NewFactory(), rset: clienttest.NewFactory()}
	opts := Options{
		ClientFactory:           f.simple,
		ReplicaSetClientFactory: f.rset,
		Logger:                  logger.Discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := New(specs, opts)
	require.NoError(t, err)
	f.registry = r
	return f
}

func TestNew_BuildsClustersInOrder(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)

	clusters := f.registry.Clusters()
	require.Len(t, clusters, 6)
	for i, c := range clusters {
		assert.Equal(t, testSpecs()[i].Label, c.Label)
		assert.Equal(t, base.Primary, c.ReadPreference, "read preference defaults to primary")
	}
	assert.Equal(t, KindReplicaSet, clusters[1].Kind())
	assert.Equal(t, KindSimple, clusters[0].Kind())
	assert.Empty(t, f.registry.Live())
	assert.Zero(t, f.simple.CallCount()+f.rset.CallCount(), "construction must not open clients")
}

func TestNew_Errors(t *testing.T) {
	factory := clienttest.NewFactory()
	opts := Options{ClientFactory: factory, ReplicaSetClientFactory: factory, Logger: logger.Discard()}

	t.Run("invalid read preference", func(t *testing.T) {
		specs := testSpecs()
		specs[3].ReadPreference = "sometimes"
		_, err := New(specs, opts)
		require.Error(t, err)

		var rpErr *base.InvalidReadPreferenceError
		require.True(t, errors.As(err, &rpErr))
		assert.Equal(t, "label4", rpErr.Label)
		assert.True(t, errors.Is(err, base.ErrInvalidReadPreference))
	})

	t.Run("invalid dbpath regex", func(t *testing.T) {
		specs := testSpecs()
		specs[0].DBPath = []string{"db(["}
		_, err := New(specs, opts)
		assert.True(t, errors.Is(err, base.ErrInvalidConfig))
	})

	t.Run("empty registry", func(t *testing.T) {
		_, err := New(nil, opts)
		assert.True(t, errors.Is(err, base.ErrInvalidConfig))
	})

	t.Run("missing factory", func(t *testing.T) {
		_, err := New(testSpecs(), Options{ClientFactory: factory})
		assert.Error(t, err)
	})

	t.Run("negative timeout", func(t *testing.T) {
		o := opts
		o.Timeout = -time.Second
		_, err := New(testSpecs(), o)
		assert.True(t, errors.Is(err, base.ErrInvalidConfig))
	})

	assert.Zero(t, factory.CallCount())
}

func TestMatch_FirstMatchWins(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)

	tests := []struct {
		name  string
		label string
	}{
		{"db1", "label1"},
		{"db2", "label2"},
		{"dbp", "label3"},
		{"dbpat", "label4"},
		{"dbpattern123", "label5"},
		{"dbpattern", "label5"},
		{"arraydb1", "label6"},
		{"arraydb9xyz", "label6"},
	}

	for _, tt := range tests {
		c, err := f.registry.Match(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.label, c.Label, tt.name)
	}
}

func TestMatch_OverlappingPatternsResolveByOrder(t *testing.T) {
	specs := []config.ClusterSpec{
		{Label: "broad", Hosts: []string{"a"}, Port: 1, DBPath: []string{"users.*"}},
		{Label: "narrow", Hosts: []string{"b"}, Port: 2, DBPath: []string{"users_eu"}},
	}
	f := newFixture(t, specs, nil)

	c, err := f.registry.Match("users_eu")
	require.NoError(t, err)
	assert.Equal(t, "broad", c.Label, "earlier broad pattern shadows later narrow one")

	// Reversed declaration order flips the winner
	specs[0], specs[1] = specs[1], specs[0]
	f = newFixture(t, specs, nil)
	c, err = f.registry.Match("users_eu")
	require.NoError(t, err)
	assert.Equal(t, "narrow", c.Label)
}

func TestMatch_Anchoring(t *testing.T) {
	specs := []config.ClusterSpec{
		{Label: "twit", Hosts: []string{"a"}, Port: 1, DBPath: []string{"twit"}},
	}
	f := newFixture(t, specs, nil)

	_, err := f.registry.Match("twitter")
	var missErr *base.NoSuchDatabaseError
	require.True(t, errors.As(err, &missErr))
	assert.Equal(t, "twitter", missErr.Name)

	c, err := f.registry.Match("twit")
	require.NoError(t, err)
	assert.Equal(t, "twit", c.Label)
}

func TestLookup(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)

	c, err := f.registry.Lookup("label5")
	require.NoError(t, err)
	assert.Equal(t, 27020, c.Port)

	_, err = f.registry.Lookup("label9")
	assert.True(t, errors.Is(err, base.ErrNoSuchCluster))
}

func TestParams(t *testing.T) {
	c := &Cluster{Label: "rs", Hosts: []string{"h1", "h2"}, Port: 27017, ReplicaSet: "rs0", ReadPreference: base.Nearest}
	params := c.Params(5*time.Second, true)

	assert.Equal(t, "h1:27017,h2:27017", params.HostsOrURI)
	assert.Equal(t, "rs0", params.ReplicaSet)
	assert.Empty(t, params.Hosts)
	assert.Zero(t, params.Port)
	assert.Equal(t, base.Nearest, params.ReadPreference)
	assert.Equal(t, 5*time.Second, params.SocketTimeout)
	assert.Equal(t, 1, params.W)
	assert.True(t, params.Journal)

	simple := &Cluster{Label: "s", Hosts: []string{"127.0.0.1"}, Port: 27018}
	params = simple.Params(0, false)
	assert.Equal(t, []string{"127.0.0.1"}, params.Hosts)
	assert.Equal(t, 27018, params.Port)
	assert.Empty(t, params.HostsOrURI)
	assert.Empty(t, params.ReplicaSet)
	assert.Zero(t, params.SocketTimeout)
}

func TestConnection_SelectsFactoryAndMemoizes(t *testing.T) {
	f := newFixture(t, testSpecs(), func(o *Options) { o.Journal = true })
	ctx := context.Background()

	label1, _ := f.registry.Lookup("label1")
	c1, err := f.registry.Connection(ctx, label1)
	require.NoError(t, err)
	again, err := f.registry.Connection(ctx, label1)
	require.NoError(t, err)
	assert.Same(t, c1, again)
	assert.Equal(t, 1, f.simple.CallCount())
	assert.Equal(t, &base.ClientParams{
		Label:          "label1",
		Hosts:          []string{"127.0.0.1"},
		Port:           27017,
		ReadPreference: base.Primary,
		W:              1,
		Journal:        true,
	}, f.simple.LastCall())

	label2, _ := f.registry.Lookup("label2")
	_, err = f.registry.Connection(ctx, label2)
	require.NoError(t, err)
	assert.Equal(t, 1, f.rset.CallCount())
	assert.Equal(t, 1, f.simple.CallCount())
	assert.Equal(t, "127.0.0.1:27017", f.rset.LastCall().HostsOrURI)
	assert.Equal(t, "rset0", f.rset.LastCall().ReplicaSet)

	assert.Equal(t, []string{"label1", "label2"}, f.registry.Live())
}

func TestConnection_FactoryErrorPropagatesAndIsNotCached(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)
	driverErr := errors.New("server selection error")
	f.simple.SetError(driverErr)

	c, _ := f.registry.Lookup("label1")
	_, err := f.registry.Connection(context.Background(), c)
	assert.Same(t, driverErr, err, "driver errors propagate unmodified")
	assert.Empty(t, f.registry.Live())

	f.simple.SetError(nil)
	_, err = f.registry.Connection(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 2, f.simple.CallCount())
}

func TestConnection_ForeignCluster(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)
	_, err := f.registry.Connection(context.Background(), &Cluster{Label: "label1"})
	assert.Error(t, err)
	_, err = f.registry.Connection(context.Background(), nil)
	assert.Error(t, err)
}

func TestConnection_ConcurrentCallersShareOneClient(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)
	f.simple.SetDelay(20 * time.Millisecond)
	c, _ := f.registry.Lookup("label3")

	var wg sync.WaitGroup
	clients := make([]base.Client, 16)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, err := f.registry.Connection(context.Background(), c)
			assert.NoError(t, err)
			clients[i] = client
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.simple.CallCount())
	for _, client := range clients {
		assert.Same(t, clients[0], client)
	}
}

func TestSetTimeout(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)
	ctx := context.Background()
	label1, _ := f.registry.Lookup("label1")
	label2, _ := f.registry.Lookup("label2")

	_, err := f.registry.Connection(ctx, label1)
	require.NoError(t, err)
	_, err = f.registry.Connection(ctx, label2)
	require.NoError(t, err)

	changed, err := f.registry.SetTimeout(ctx, 0)
	require.NoError(t, err)
	assert.False(t, changed, "same timeout is a no-op")
	assert.Len(t, f.registry.Live(), 2)

	changed, err = f.registry.SetTimeout(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, f.registry.Live())
	assert.Equal(t, uint64(1), f.registry.Generation())
	assert.True(t, f.simple.Clients()[0].Closed())
	assert.True(t, f.rset.Clients()[0].Closed())

	_, err = f.registry.Connection(ctx, label1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.simple.CallCount())
	assert.Equal(t, 5*time.Millisecond, f.simple.LastCall().SocketTimeout)

	_, err = f.registry.SetTimeout(ctx, -time.Second)
	assert.Error(t, err)
}

func TestSetTimeout_CloseErrorsAreJoined(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)
	closeErr := errors.New("socket already closed")
	f.simple.SetCloseError(closeErr)
	ctx := context.Background()

	for _, label := range []string{"label1", "label3"} {
		c, _ := f.registry.Lookup(label)
		_, err := f.registry.Connection(ctx, c)
		require.NoError(t, err)
	}

	_, err := f.registry.SetTimeout(ctx, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, closeErr))
	assert.Empty(t, f.registry.Live(), "clients are discarded even when Close fails")

	var clientErr *base.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, "Close", clientErr.Operation)
}

type recordingObserver struct {
	mu          sync.Mutex
	constructed []string
	failed      []string
	closed      int
}

func (o *recordingObserver) ClientConstructed(c *Cluster, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failed = append(o.failed, c.Label)
		return
	}
	o.constructed = append(o.constructed, c.Label)
}

func (o *recordingObserver) ClientsClosed(count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed += count
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	f := newFixture(t, testSpecs(), func(o *Options) { o.Observer = obs })
	ctx := context.Background()

	c, _ := f.registry.Lookup("label1")
	_, _ = f.registry.Connection(ctx, c)
	_, _ = f.registry.Connection(ctx, c)

	f.rset.SetError(errors.New("no primary"))
	rs, _ := f.registry.Lookup("label2")
	_, _ = f.registry.Connection(ctx, rs)

	require.NoError(t, f.registry.DisconnectAll(ctx))

	assert.Equal(t, []string{"label1"}, obs.constructed)
	assert.Equal(t, []string{"label2"}, obs.failed)
	assert.Equal(t, 1, obs.closed)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)
	ctx := context.Background()

	c1, _ := f.registry.Lookup("label1")
	_, err := f.registry.Connection(ctx, c1)
	require.NoError(t, err)

	f.simple.SetPingError(errors.New("connection reset"))
	c3, _ := f.registry.Lookup("label3")
	_, err = f.registry.Connection(ctx, c3)
	require.NoError(t, err)

	health := f.registry.HealthCheck(ctx)
	require.Len(t, health, 2)
	assert.True(t, health["label1"].Healthy)
	assert.False(t, health["label3"].Healthy)
	assert.Equal(t, "connection reset", health["label3"].Error)
}

func TestConnection_SlowBuildDoesNotBlockOtherClusters(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)
	ctx := context.Background()

	label1, _ := f.registry.Lookup("label1")
	live, err := f.registry.Connection(ctx, label1)
	require.NoError(t, err)

	f.simple.SetDelay(time.Second)
	label3, _ := f.registry.Lookup("label3")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.registry.Connection(ctx, label3)
		assert.NoError(t, err)
	}()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	again, err := f.registry.Connection(ctx, label1)
	require.NoError(t, err)
	assert.Same(t, live, again)
	assert.Equal(t, []string{"label1"}, f.registry.Live())
	assert.Less(t, time.Since(start), 250*time.Millisecond, "live client lookup waited for another cluster's build")

	<-done
	assert.Equal(t, []string{"label1", "label3"}, f.registry.Live())
}

func TestConnection_BuildInvalidatedBySetTimeout(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)
	ctx := context.Background()
	f.simple.SetDelay(100 * time.Millisecond)
	c, _ := f.registry.Lookup("label1")

	type result struct {
		client base.Client
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		client, err := f.registry.Connection(ctx, c)
		resCh <- result{client, err}
	}()
	time.Sleep(20 * time.Millisecond)

	changed, err := f.registry.SetTimeout(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	require.True(t, changed)

	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, 5*time.Millisecond, res.client.(*clienttest.Client).Params.SocketTimeout)

	clients := f.simple.Clients()
	require.Len(t, clients, 2)
	assert.True(t, clients[0].Closed(), "client built for the old timeout is discarded")
	assert.Zero(t, clients[0].Params.SocketTimeout)
	assert.False(t, clients[1].Closed())
}

func TestClose_RefusesNewConnections(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)
	ctx := context.Background()
	f.simple.SetDelay(100 * time.Millisecond)
	c, _ := f.registry.Lookup("label1")

	errCh := make(chan error, 1)
	go func() {
		_, err := f.registry.Connection(ctx, c)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, f.registry.Close(ctx))
	assert.True(t, errors.Is(<-errCh, base.ErrRouterClosed))

	clients := f.simple.Clients()
	require.Len(t, clients, 1)
	assert.True(t, clients[0].Closed(), "client finished after Close is not leaked")
	assert.Empty(t, f.registry.Live())

	_, err := f.registry.Connection(ctx, c)
	assert.True(t, errors.Is(err, base.ErrRouterClosed))
	assert.NoError(t, f.registry.Close(ctx))
	assert.Equal(t, 1, f.simple.CallCount())
}

func TestSetTimeout_NegativeIsTyped(t *testing.T) {
	f := newFixture(t, testSpecs(), nil)

	changed, err := f.registry.SetTimeout(context.Background(), -time.Millisecond)
	assert.False(t, changed)
	assert.True(t, errors.Is(err, base.ErrInvalidTimeout))
	assert.Zero(t, f.registry.Generation())
}
