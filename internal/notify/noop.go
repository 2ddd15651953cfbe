// SPDX-License-Identifier: Apache-2.0

package notify

import "context"

// NoopPublisher discards notifications. It is used when NATS_URL is empty.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() error { return nil }
