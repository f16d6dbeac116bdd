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

// Package clienttest provides recording fakes of the client capability for
// tests that exercise the registry and router without a MongoDB server.
package clienttest

import (
	"context"
	"sync"
	"time"

	"mongorouter/connectors/base"
)

// Database is a fake database handle
type Database struct {
	name   string
	Client *Client
}

// Name implements base.Database
func (d *Database) Name() string { return d.name }

// Client is a fake client recording Database and Close calls
type Client struct {
	Params *base.ClientParams

	mu            sync.Mutex
	closed        bool
	closeErr      error
	pingErr       error
	databaseCalls []string
}

// Database implements base.Client
func (c *Client) Database(name string) base.Database {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.databaseCalls = append(c.databaseCalls, name)
	return &Database{name: name, Client: c}
}

// Close implements base.Client
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.closeErr
}

// Ping implements base.Pinger
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return context.Canceled
	}
	return c.pingErr
}

// Closed reports whether Close was called
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DatabaseCalls returns the names passed to Database, in call order
func (c *Client) DatabaseCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.databaseCalls...)
}

// Factory is a base.ClientFactory that records every construction
type Factory struct {
	mu       sync.Mutex
	calls    []*base.ClientParams
	clients  []*Client
	err      error
	delay    time.Duration
	closeErr error
	pingErr  error
}

// NewFactory creates a new recording factory
func NewFactory() *Factory {
	return &Factory{}
}

// NewClient implements base.ClientFactory
func (f *Factory) NewClient(ctx context.Context, params *base.ClientParams) (base.Client, error) {
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	copied := *params
	f.calls = append(f.calls, &copied)
	if f.err != nil {
		return nil, f.err
	}

	client := &Client{Params: &copied, closeErr: f.closeErr, pingErr: f.pingErr}
	f.clients = append(f.clients, client)
	return client, nil
}

// SetError makes every following construction fail with err
func (f *Factory) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetDelay makes every following construction block for d
func (f *Factory) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// SetCloseError makes clients built afterwards fail Close with err
func (f *Factory) SetCloseError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeErr = err
}

// SetPingError makes clients built afterwards fail Ping with err
func (f *Factory) SetPingError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

// Calls returns the params of every construction, in call order
func (f *Factory) Calls() []*base.ClientParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*base.ClientParams(nil), f.calls...)
}

// CallCount returns the number of constructions attempted
func (f *Factory) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// LastCall returns the params of the most recent construction, or nil
func (f *Factory) LastCall() *base.ClientParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

// Clients returns every client constructed successfully
func (f *Factory) Clients() []*Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Client(nil), f.clients...)
}

// Reset forgets recorded calls and clients
func (f *Factory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.clients = nil
}
