// Package pubsub_test contains unit tests for the Pub/Sub notifier.
package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sedamusic/claim-verifier/internal/claims"
	"github.com/sedamusic/claim-verifier/internal/notify/pubsub"
)

func TestPublisherNotify(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := gpubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "claim-notifications")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "sub-id", gpubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	publisher := pubsub.NewWithTopic(topic)

	err = publisher.Notify(ctx, "user-1", claims.NotifyApproved, map[string]any{
		"request_id":  "req-1",
		"artist_name": "The Lowlands",
	})
	require.NoError(t, err)

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	received := make(chan *gpubsub.Message, 1)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *gpubsub.Message) {
			msg.Ack()
			received <- msg
			cancel()
		})
	}()

	select {
	case msg := <-received:
		require.Equal(t, "approved", msg.Attributes["kind"])
		require.Equal(t, "user-1", msg.Attributes["user_id"])

		var body struct {
			UserID  string         `json:"user_id"`
			Kind    string         `json:"kind"`
			Payload map[string]any `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &body))
		require.Equal(t, "user-1", body.UserID)
		require.Equal(t, "approved", body.Kind)
		require.Equal(t, "req-1", body.Payload["request_id"])
	case <-recvCtx.Done():
		t.Fatal("timed out waiting for notification")
	}
}

func TestPublisherNotifyUnconfigured(t *testing.T) {
	publisher := pubsub.NewWithTopic(nil)

	err := publisher.Notify(context.Background(), "user-1", claims.NotifyDenied, nil)
	require.Error(t, err)
}
