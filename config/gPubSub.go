package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex

	// topics already verified or created by this process
	knownTopics sync.Map
)

// pubsubClientFor lazily builds the shared client used for ESS change fan-out.
// PUBSUB_CREDENTIALS_JSON overrides Application Default Credentials.
func pubsubClientFor(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := PubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	for attempt := 1; ; attempt++ {
		c, err := pubsub.NewClient(ctx, projectID, opts...)
		if err == nil {
			pubsubClient = c
			logg.WithFields(logrus.Fields{"project_id": projectID, "attempt": attempt}).Info("pubsub client ready")
			return c, nil
		}
		if attempt >= 3 {
			return nil, fmt.Errorf("pubsub client for %s: %w", projectID, err)
		}
		sleep := backoff(attempt)
		logg.WithFields(logrus.Fields{"project_id": projectID, "attempt": attempt, "retry_in": sleep.String()}).
			WithError(err).Warn("pubsub client init failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func PubSubProjectID() string {
	for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// ensureTopic returns the topic handle, creating the topic on first use.
func ensureTopic(ctx context.Context, c *pubsub.Client, name string) (*pubsub.Topic, error) {
	if v, ok := knownTopics.Load(name); ok {
		return v.(*pubsub.Topic), nil
	}
	t := c.Topic(name)
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %q: %w", name, err)
	}
	if !exists {
		if t, err = c.CreateTopic(ctx, name); err != nil {
			return nil, fmt.Errorf("create topic %q: %w", name, err)
		}
		logg.WithField("topic", name).Info("pubsub topic created")
	}
	actual, _ := knownTopics.LoadOrStore(name, t)
	return actual.(*pubsub.Topic), nil
}

// PublishJSON publishes obj to topicName and returns the server-assigned message ID.
func PublishJSON(ctx context.Context, topicName string, obj any, attrs map[string]string) (string, error) {
	if topicName == "" {
		return "", errors.New("topicName is required")
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	client, err := pubsubClientFor(ctx)
	if err != nil {
		return "", err
	}
	topic, err := ensureTopic(ctx, client, topicName)
	if err != nil {
		return "", err
	}
	return topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

// ClosePubSub flushes cached topics and closes the shared client.
func ClosePubSub() {
	knownTopics.Range(func(k, v any) bool {
		v.(*pubsub.Topic).Stop()
		knownTopics.Delete(k)
		return true
	})
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		_ = pubsubClient.Close()
		pubsubClient = nil
	}
}
