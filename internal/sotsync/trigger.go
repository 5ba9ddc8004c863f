package sotsync

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/model"
)

// TriggerTopics are the events that cause an immediate sync.
var TriggerTopics = []string{
	events.TopicPagePublished,
	events.TopicPageUnpublished,
	events.TopicToolInstalled,
	events.TopicToolUninstalled,
	events.TopicCreditsPurchased,
	events.TopicCreditsConsumed,
	events.TopicAccountStatusChanged,
	events.TopicTenantUpdated,
	events.TopicBusinessIdentityUpdated,
	events.TopicSOTSyncRequested,
}

// IsTrigger reports whether topic causes an immediate sync.
func IsTrigger(topic string) bool {
	return slices.Contains(TriggerTopics, topic)
}

// Trigger starts a manual sync in the background. While one triggered sync
// is waiting to run, further triggers are folded into it. It reports
// whether a new sync was queued.
func (s *Service) Trigger(reason string) bool {
	if !s.triggerPending.CompareAndSwap(false, true) {
		s.logger.Debug("sot sync already queued", "reason", reason)
		return false
	}
	if !s.track() {
		s.triggerPending.Store(false)
		return false
	}
	go func() {
		defer s.wg.Done()
		s.runMu.Lock()
		// Clear before running so events arriving mid-run queue another.
		s.triggerPending.Store(false)
		s.runMu.Unlock()
		s.logger.Info("sot sync triggered", "reason", reason)
		s.RunSync(s.ctx, model.SyncEventManual)
	}()
	return true
}

// StartSubscriber listens for trigger events on the bus and runs a sync for
// each. It blocks until ctx is cancelled or every subscription closes.
func (s *Service) StartSubscriber(ctx context.Context, sub events.Subscriber) error {
	type delivery struct{ topic string }

	merged := make(chan delivery)
	var (
		cancels []func()
		wg      sync.WaitGroup
	)
	defer func() {
		for _, c := range cancels {
			c()
		}
		wg.Wait()
	}()

	for _, topic := range TriggerTopics {
		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("sotsync: subscribe %s: %w", topic, err)
		}
		cancels = append(cancels, cancel)
		wg.Add(1)
		go func(topic string, ch <-chan []byte) {
			defer wg.Done()
			for range ch {
				select {
				case merged <- delivery{topic: topic}:
				case <-ctx.Done():
					return
				}
			}
		}(topic, ch)
	}

	closed := make(chan struct{})
	go func() {
		wg.Wait()
		close(closed)
	}()

	s.logger.Info("sotsync: subscriber started", "topics", len(TriggerTopics))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sotsync: subscriber stopping")
			return nil
		case <-closed:
			s.logger.Info("sotsync: subscription channels closed")
			return nil
		case d := <-merged:
			s.Trigger(d.topic)
		}
	}
}
