//go:build integration

package reminderservice_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/go-reminder-service/reminderservice"
	"github.com/tinywideclouds/go-reminder-service/reminderservice/config"
)

func TestReminderService_PoisonPill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	t.Cleanup(cancel)

	logger := newTestLogger()
	projectID := "test-project-dlq"

	// 1. Setup Pub/Sub Emulator
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	// 2. Arrange: Create main topic, DLQ topic, and subscriptions
	runID := uuid.NewString()
	mainTopicID := "reminder-main-" + runID
	dlqTopicID := "reminder-dlq-" + runID
	mainSubID := mainTopicID + "-sub"
	dlqSubID := dlqTopicID + "-sub"

	createPubsubResources(t, ctx, psClient, projectID, dlqTopicID, dlqSubID)
	dlqTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, dlqTopicID)

	mainTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, mainTopicID)
	_, err = psClient.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: mainTopicName})
	require.NoError(t, err)

	mainSubName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, mainSubID)
	_, err = psClient.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:  mainSubName,
		Topic: mainTopicName,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlqTopicName,
			MaxDeliveryAttempts: 5,
		},
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	})
	require.NoError(t, err)

	// 3. Arrange: the provider and store must never be reached.
	fcm := &fakeFCM{}
	fcmServer := httptest.NewServer(fcm)
	t.Cleanup(fcmServer.Close)

	cfg := &config.Config{
		ProjectID:          projectID,
		ListenAddr:         ":0",
		SubscriptionID:     mainSubID,
		NumPipelineWorkers: 2,
		Credential:         testCredentialConfig(t),
		Provider:           config.ProviderConfig{Transport: config.TransportHTTP, Endpoint: fcmServer.URL, ProjectID: projectID},
	}
	sa, err := reminderservice.LoadServiceAccount(cfg.Credential, projectID)
	require.NoError(t, err)
	source, err := reminderservice.NewCredentialSource(ctx, cfg.Credential, sa, nil, logger)
	require.NoError(t, err)
	sender, err := reminderservice.NewSender(ctx, cfg.Provider, source, fcmServer.Client(), logger)
	require.NoError(t, err)

	consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(mainSubID)
	consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
	require.NoError(t, err)

	noopAuth := func(h http.Handler) http.Handler { return h }
	svc, err := reminderservice.New(cfg, consumer, newMemStore(), sender, source, noopAuth, logger)
	require.NoError(t, err)

	// 4. Act: Start the service and publish poison pills
	serviceCtx, serviceCancel := context.WithCancel(ctx)
	defer serviceCancel()
	go func() {
		if err := svc.Start(serviceCtx); err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("service.Start() returned an error: %v", err)
		}
	}()
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	poisonPayload := []byte(`{"this is not valid json"`)
	_, err = psClient.Publisher(mainTopicID).Publish(ctx, &pubsub.Message{Data: poisonPayload}).Get(ctx)
	require.NoError(t, err)

	// 5. Assert: Verify the message arrives on the DLQ subscription
	dlqSub := psClient.Subscriber(dlqSubID)
	var wg sync.WaitGroup
	wg.Add(1)
	var receivedMsg *pubsub.Message

	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		err := dlqSub.Receive(cctx, func(ctx context.Context, msg *pubsub.Message) {
			msg.Ack()
			receivedMsg = msg
			cancel()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("DLQ Receive returned an unexpected error: %v", err)
		}
	}()

	wg.Wait()
	require.NotNil(t, receivedMsg, "Did not receive message on the DLQ subscription")
	assert.Equal(t, poisonPayload, receivedMsg.Data)

	// 6. Negative Assertion: the provider was never called
	assert.Empty(t, fcm.Tokens(), "provider should not be called for a poison pill message")
}
