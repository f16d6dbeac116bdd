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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mongorouter/connectors/registry"
)

// Resolution results, used as the "result" label
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultNoMatch = "no_match"
	ResultError   = "error"
)

// Metrics holds the router's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	resolutions        *prometheus.CounterVec
	resolveDuration    *prometheus.HistogramVec
	constructions      *prometheus.CounterVec
	constructionErrors *prometheus.CounterVec
	invalidations      prometheus.Counter
	liveClients        prometheus.Gauge
}

// NewMetrics creates the router collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mongorouter_resolutions_total",
				Help: "Total database name resolutions by result",
			},
			[]string{"result"},
		),
		resolveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mongorouter_resolve_duration_seconds",
				Help:    "Duration of database name resolutions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		constructions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mongorouter_client_constructions_total",
				Help: "Total clients constructed per cluster",
			},
			[]string{"cluster", "kind"},
		),
		constructionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mongorouter_client_construction_errors_total",
				Help: "Total failed client constructions per cluster",
			},
			[]string{"cluster"},
		),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "mongorouter_invalidations_total",
			Help: "Total cache invalidations caused by timeout changes",
		}),
		liveClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mongorouter_live_clients",
			Help: "Number of live cluster clients",
		}),
	}
}

func (m *Metrics) resolved(result string, start time.Time) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(result).Inc()
	m.resolveDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) invalidated() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}

// ClientConstructed implements registry.Observer
func (m *Metrics) ClientConstructed(cluster *registry.Cluster, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.constructionErrors.WithLabelValues(cluster.Label).Inc()
		return
	}
	m.constructions.WithLabelValues(cluster.Label, cluster.Kind()).Inc()
	m.liveClients.Inc()
}

// ClientsClosed implements registry.Observer
func (m *Metrics) ClientsClosed(count int) {
	if m == nil {
		return
	}
	m.liveClients.Sub(float64(count))
}
