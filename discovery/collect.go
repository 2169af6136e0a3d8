// Package discovery snapshots the retained topics under a Homie base topic.
//
// The snapshot is a list of "topic:payload" lines suitable for
// homie.ParseTopicDump.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	homie "github.com/duke1swd/homieGo"
)

// DefaultQuietPeriod is how long Collect waits after the last message.
const DefaultQuietPeriod = time.Second

// ErrSubscribeFailed is returned when the wildcard subscription is refused.
var ErrSubscribeFailed = errors.New("discovery: subscribe failed")

// Subscriber is the part of a connection the collector needs. OnRetained
// listeners only see messages served from the broker's retained store.
type Subscriber interface {
	Subscribe(topic string) bool
	OnRetained(h homie.MessageHandler) (remove func())
}

// Collect subscribes to baseTopic/# and gathers retained messages until none
// arrived for quiet. Live traffic and broadcast topics are skipped. The
// latest payload per topic wins and the result is sorted by topic.
func Collect(ctx context.Context, sub Subscriber, baseTopic string, quiet time.Duration) ([]string, error) {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}

	var (
		mu     sync.Mutex
		topics = make(map[string]string)
		seen   = make(chan struct{}, 1)
	)
	remove := sub.OnRetained(func(topic, payload string) {
		if isBroadcast(baseTopic, topic) {
			return
		}
		mu.Lock()
		topics[topic] = payload
		mu.Unlock()

		select {
		case seen <- struct{}{}:
		default:
		}
	})
	defer remove()

	if !sub.Subscribe(baseTopic + "/#") {
		return nil, fmt.Errorf("%w: %s/#", ErrSubscribeFailed, baseTopic)
	}

	timer := time.NewTimer(quiet)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-seen:
			timer.Reset(quiet)
		case <-timer.C:
			mu.Lock()
			defer mu.Unlock()
			return dump(topics), nil
		}
	}
}

func isBroadcast(baseTopic, topic string) bool {
	return strings.HasPrefix(topic, baseTopic+"/$broadcast")
}

func dump(topics map[string]string) []string {
	keys := lo.Keys(topics)
	slices.Sort(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+":"+topics[k])
	}
	return lines
}
