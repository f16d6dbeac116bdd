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
Package logger provides structured JSON logging for the router components.

# Overview

Each log entry is a single JSON line including:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (registry, router, admin-api)
  - Instance ID and container name
  - Request ID when the entry belongs to an admin API request
  - Custom fields

# Usage

	log := logger.New("registry")

	log.Info("Constructed client", map[string]interface{}{
	    "cluster": "label1",
	    "kind":    "replica_set",
	})

	log.ErrorWithErr("Failed to close client", err, map[string]interface{}{
	    "cluster": "label1",
	})

# Environment Variables

  - INSTANCE_ID: Deployment instance identifier
  - LOG_LEVEL: Minimum level written (default INFO)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
Copies made with Named and WithRequestID share the same output.
*/
package logger
