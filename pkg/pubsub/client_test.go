package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/courseforge/courseforge-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "courseforge-dev"}

	require.Equal(t, "projects/courseforge-dev/topics/cf-notification-events", c.topicResourceName("cf-notification-events"))
	require.Equal(t, "projects/other/topics/t", c.topicResourceName("projects/other/topics/t"))
	require.Empty(t, c.topicResourceName("  "))

	var nilClient *Client
	require.Empty(t, nilClient.topicResourceName("x"))
	require.Nil(t, nilClient.Publisher("x"))
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	require.Empty(t, topicNames(config.PubSubConfig{NotificationTopic: " "}))
	require.Equal(t, []string{"notify"}, topicNames(config.PubSubConfig{NotificationTopic: " notify "}))
}

func TestClientOptions(t *testing.T) {
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}), 1)
	require.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/key.json"}), 1)
	require.Empty(t, clientOptions(config.GCPConfig{}))
}
