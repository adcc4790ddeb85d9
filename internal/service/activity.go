package service

import (
	"context"
	"sort"
	"time"
)

// activityBuffer bounds the notification channel; a consumer that falls
// this far behind loses notifications under the usual drop policy.
const activityBuffer = 16

// SubscribeTopicActivity opens a stream of topic-activity notifications.
//
// On a fixed interval it samples the store's distinct topic set, diffs it
// against the previous sample, and emits one notification per newly
// observed topic. The stream runs until ctx is cancelled and never
// terminates on its own; the returned channel is closed on cancellation.
func (s *BridgeService) SubscribeTopicActivity(ctx context.Context) <-chan string {
	out := make(chan string, activityBuffer)

	go func() {
		defer close(out)

		seen := s.store.Topics()
		ticker := time.NewTicker(s.activityInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current := s.store.Topics()

				fresh := make([]string, 0)
				for topic := range current {
					if _, ok := seen[topic]; !ok {
						fresh = append(fresh, topic)
					}
				}
				sort.Strings(fresh)

				for _, topic := range fresh {
					select {
					case out <- topic:
					default:
						s.logger.Warn("activity stream consumer behind, dropping notification", "topic", topic)
					}
				}

				seen = current
			}
		}
	}()

	return out
}
