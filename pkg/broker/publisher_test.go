package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/feed-collector/pkg/config"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+"/"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(t *testing.T, cfg config.BrokerConfig) (*Publisher, *[]*fakeChannel) {
	var dialed []*fakeChannel
	p := NewPublisher(cfg, zaptest.NewLogger(t))
	p.dial = func(string) (channel, func() error, error) {
		ch := &fakeChannel{}
		dialed = append(dialed, ch)
		return ch, func() error { return nil }, nil
	}
	p.now = func() time.Time { return time.Date(2024, 12, 8, 2, 0, 0, 0, time.UTC) }
	return p, &dialed
}

func TestPublish(t *testing.T) {
	p, dialed := newTestPublisher(t, config.BrokerConfig{URL: "amqp://x", Exchange: "collector-records"})

	rec := map[string]any{"date": "2024-12-08", "value1": "100"}
	require.NoError(t, p.Publish(context.Background(), "APISnapshotCollector", "api_snapshot_collector", rec))
	require.NoError(t, p.Publish(context.Background(), "APISnapshotCollector", "api_snapshot_collector", rec))

	require.Len(t, *dialed, 1)
	ch := (*dialed)[0]
	assert.Equal(t, []string{"collector-records/fanout"}, ch.declared)
	assert.Equal(t, []string{"api_snapshot_collector", "api_snapshot_collector"}, ch.keys)

	var ev Event
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &ev))
	assert.Equal(t, "APISnapshotCollector", ev.Collector)
	assert.Equal(t, "100", ev.Record["value1"])
	assert.Equal(t, ev.ID, ch.published[0].MessageId)
	assert.NotEqual(t, ch.published[0].MessageId, ch.published[1].MessageId)
}

func TestPublishReconnectsAfterFailure(t *testing.T) {
	p, dialed := newTestPublisher(t, config.BrokerConfig{URL: "amqp://x", Exchange: "e", RoutingKey: "records"})
	require.NoError(t, p.Publish(context.Background(), "c", "t", map[string]any{"a": 1}))

	(*dialed)[0].publishErr = errors.New("channel closed")
	require.Error(t, p.Publish(context.Background(), "c", "t", map[string]any{"a": 1}))
	assert.True(t, (*dialed)[0].closed)

	require.NoError(t, p.Publish(context.Background(), "c", "t", map[string]any{"a": 1}))
	require.Len(t, *dialed, 2)
	assert.Equal(t, []string{"records"}, (*dialed)[1].keys)
}

func TestPublishAfterClose(t *testing.T) {
	p, _ := newTestPublisher(t, config.BrokerConfig{URL: "amqp://x", Exchange: "e"})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Error(t, p.Publish(context.Background(), "c", "t", map[string]any{"a": 1}))
}

func TestDialFailure(t *testing.T) {
	p := NewPublisher(config.BrokerConfig{URL: "amqp://x", Exchange: "e"}, nil)
	p.dial = func(string) (channel, func() error, error) { return nil, nil, errors.New("refused") }
	err := p.Publish(context.Background(), "c", "t", map[string]any{"a": 1})
	assert.ErrorContains(t, err, "refused")
}
