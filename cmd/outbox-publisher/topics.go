package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherBuilder func(topic string) publisher

// topicPublishers keeps one publisher per topic for the lifetime of a run so
// Pub/Sub batching and flow control stay effective.
type topicPublishers struct {
	build publisherBuilder

	mu      sync.Mutex
	byTopic map[string]publisher
}

func newTopicPublishers(build publisherBuilder) *topicPublishers {
	return &topicPublishers{build: build, byTopic: map[string]publisher{}}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.byTopic[topic]; ok {
		return pub
	}
	pub := t.build(topic)
	if pub != nil {
		t.byTopic[topic] = pub
	}
	return pub
}

// stopAll flushes pending messages on every cached publisher.
func (t *topicPublishers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, pub := range t.byTopic {
		if s, ok := pub.(interface{ Stop() }); ok {
			s.Stop()
		}
		delete(t.byTopic, topic)
	}
}

func gcpPublisherBuilder(src topicSource) publisherBuilder {
	return func(topic string) publisher {
		p := src.Publisher(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p}
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpResult{p.Publisher.Publish(ctx, msg)}
}

type gcpResult struct {
	*gcppubsub.PublishResult
}

func (r gcpResult) Get(ctx context.Context) (string, error) {
	if r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
