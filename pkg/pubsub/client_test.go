package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/stockflow-backend/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		name, project, input, want string
	}{
		{"short id", "erp-prod", "sf-sales-order-events", "projects/erp-prod/topics/sf-sales-order-events"},
		{"full name", "erp-prod", "projects/other/topics/t1", "projects/other/topics/t1"},
		{"trimmed", "erp-prod", "  t2 ", "projects/erp-prod/topics/t2"},
		{"empty", "erp-prod", " ", ""},
		{"no project", "", "t3", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, resourceName(tc.project, "topics", tc.input))
		})
	}
}

func TestTopicNames(t *testing.T) {
	require.Empty(t, topicNames(config.PubSubConfig{}))
	require.Equal(t, []string{"orders"}, topicNames(config.PubSubConfig{OrdersTopic: " orders "}))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "t"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("t"))
	require.Error(t, c.Ping(context.Background()))
	require.NoError(t, c.Close())
}
