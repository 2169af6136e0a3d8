package discovery

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	homie "github.com/duke1swd/homieGo"
)

type message struct {
	topic, payload string
	retained       bool
}

// retainedBroker replays its messages on subscribe. Like a broker, it flags
// which of them come from the retained store.
type retainedBroker struct {
	mu        sync.Mutex
	handlers  []homie.MessageHandler
	messages  []message
	refuse    bool
	subscribe []string
}

func (b *retainedBroker) OnRetained(h homie.MessageHandler) func() {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.handlers = nil
		b.mu.Unlock()
	}
}

func (b *retainedBroker) Subscribe(topic string) bool {
	b.mu.Lock()
	b.subscribe = append(b.subscribe, topic)
	handlers := append([]homie.MessageHandler(nil), b.handlers...)
	b.mu.Unlock()
	if b.refuse {
		return false
	}

	go func() {
		for _, m := range b.messages {
			if !m.retained {
				continue
			}
			for _, h := range handlers {
				h(m.topic, m.payload)
			}
		}
	}()
	return true
}

func TestCollect(t *testing.T) {
	b := &retainedBroker{messages: []message{
		{"homie/dev/$state", "init", true},
		{"homie/dev/$homie", "4.0.0", true},
		{"homie/$broadcast/alert", "ignored", true},
		{"homie/dev/$state", "ready", true},
		{"homie/dev/node/prop/$datatype", "float", true},
	}}

	dump, err := Collect(context.Background(), b, "homie", 50*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, []string{"homie/#"}, b.subscribe)
	assert.Equal(t, []string{
		"homie/dev/$homie:4.0.0",
		"homie/dev/$state:ready",
		"homie/dev/node/prop/$datatype:float",
	}, dump)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.handlers, "listener is removed")
}

func TestCollectEmpty(t *testing.T) {
	dump, err := Collect(context.Background(), &retainedBroker{}, "homie", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, dump)
}

func TestCollectSubscribeRefused(t *testing.T) {
	_, err := Collect(context.Background(), &retainedBroker{refuse: true}, "homie", 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrSubscribeFailed)
}

func TestCollectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(ctx, &retainedBroker{}, "homie", time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollectSkipsLiveTraffic(t *testing.T) {
	var messages []message
	for _, line := range []string{
		"homie/dev/$homie:4.0.0",
		"homie/dev/$name:Dev",
		"homie/dev/$state:ready",
		"homie/dev/$nodes:node",
		"homie/dev/node/$properties:prop",
		"homie/dev/node/prop:on",
		"homie/dev/node/prop/$name:Prop",
		"homie/dev/node/prop/$datatype:enum",
		"homie/dev/node/prop/$format:on,off",
		"homie/dev/node/prop/$settable:true",
		"homie/dev/node/prop/$retained:true",
	} {
		topic, payload, _ := strings.Cut(line, ":")
		messages = append(messages, message{topic, payload, true})
	}
	// a controller sends a command while the snapshot is taken
	messages = append(messages, message{"homie/dev/node/prop/set", "off", false})

	dump, err := Collect(context.Background(), &retainedBroker{messages: messages}, "homie", 50*time.Millisecond)
	require.NoError(t, err)
	assert.NotContains(t, dump, "homie/dev/node/prop/set:off")

	r := homie.ParseTopicDump("homie", dump)
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
	require.Len(t, r.Devices, 1)
}
