package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
)

func fakeServer(t *testing.T) (*pstest.Server, option.ClientOption) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, option.WithGRPCConn(conn)
}

func TestPublishReport(t *testing.T) {
	ctx := context.Background()
	srv, opt := fakeServer(t)

	admin, err := pubsub.NewClient(ctx, "heavy-project", opt)
	require.NoError(t, err)
	_, err = admin.CreateTopic(ctx, "harvest-runs")
	require.NoError(t, err)

	pub, err := New(ctx, "heavy-project", "harvest-runs", opt)
	require.NoError(t, err)
	defer func() { require.NoError(t, pub.Close()) }()

	report := harvest.Report{RunID: "run-9", Source: "nasga", Records: map[string]int{"games": 3}}
	id, err := pub.Publish(ctx, report)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "run-9", msgs[0].Attributes["run_id"])
	assert.Equal(t, "nasga", msgs[0].Attributes["source"])
	var got harvest.Report
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, 3, got.Records["games"])
}

func TestNewMissingTopic(t *testing.T) {
	_, opt := fakeServer(t)
	_, err := New(context.Background(), "heavy-project", "absent", opt)
	require.Error(t, err)
}

func TestPublishWithoutTopic(t *testing.T) {
	_, err := (&Publisher{}).Publish(context.Background(), harvest.Report{})
	require.Error(t, err)
}
