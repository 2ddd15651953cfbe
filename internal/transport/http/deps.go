// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
)

type HealthChecker interface {
	Check(ctx context.Context) error
}
