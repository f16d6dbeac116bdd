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
Package router is the public facade of mongorouter: one logical handle over
several independently addressed MongoDB clusters.

# Overview

A caller asks for a database by name. The router finds the first cluster, in
configuration order, whose dbpath pattern matches the name, lazily builds one
pooled client for that cluster, and returns the database handle scoped to the
name. Handles are cached by name.

# Usage

	r, err := router.NewFromFile("/etc/mongorouter.yaml", router.Options{
	    Metrics: router.NewMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
	    log.Fatal(err)
	}
	defer r.Close(context.Background())

	db, err := r.MongoDatabase(ctx, "orders_2024")

# Timeout Changes

SetTimeout closes every live client and drops every cached handle when the
timeout actually changes. It holds the router's write lock while doing so,
so no resolution observes a half-invalidated cache. Client construction
happens outside that lock: cached lookups never wait for a slow cluster, and
a resolution that overlaps a timeout change starts over with the new value.

# Testing

Options.ClientFactory and Options.ReplicaSetClientFactory accept any
base.ClientFactory. The clienttest package provides a recording fake.
*/
package router
