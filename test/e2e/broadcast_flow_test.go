package e2e

import (
	"context"
	"errors"
	"testing"
	"time"

	gateway "github.com/nimasrn/congregation-messenger/internal/gateways"
	"github.com/nimasrn/congregation-messenger/internal/handlers"
	"github.com/nimasrn/congregation-messenger/internal/history"
	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/notify"
	"github.com/nimasrn/congregation-messenger/internal/phone"
	"github.com/nimasrn/congregation-messenger/internal/processor"
	"github.com/nimasrn/congregation-messenger/internal/queue"
	"github.com/nimasrn/congregation-messenger/internal/recipients"
	"github.com/nimasrn/congregation-messenger/internal/repository"
	"github.com/nimasrn/congregation-messenger/internal/retry"
	"github.com/nimasrn/congregation-messenger/internal/services"
	xhttp "github.com/nimasrn/congregation-messenger/pkg/http"
	"github.com/nimasrn/congregation-messenger/pkg/redis"
	"github.com/nimasrn/congregation-messenger/test/fixtures"
	"github.com/nimasrn/congregation-messenger/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type TestEnvironment struct {
	Gateway      *helpers.FakeGateway
	RedisAdapter redis.RedisAdapter
	Members      map[string]*model.Member
	HistoryRepo  *repository.HistoryRepository
	ReportRepo   *repository.DeliveryReportRepository
	Directory    *services.DirectoryService
	Broadcasts   *services.BroadcastService
	Center       *notify.Center
	Queue        *queue.Queue
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	st := helpers.SetupTestStore(t)
	_, adapter := helpers.SetupTestRedis(t)
	fake := helpers.NewFakeGateway(t)

	client, err := gateway.NewClient(gateway.Config{
		BaseURL:  fake.URL(),
		APIKey:   "test-key",
		SenderID: "CHURCH",
		Timeout:  2 * time.Second,
	})
	require.NoError(t, err)

	normalizer, err := phone.NewNormalizer("233", 12)
	require.NoError(t, err)

	memberRepo := repository.NewMemberRepository(st)
	historyRepo := repository.NewHistoryRepository(st)
	center := notify.NewCenter(10)

	env := &TestEnvironment{
		Gateway:      fake,
		RedisAdapter: adapter,
		Members:      map[string]*model.Member{},
		HistoryRepo:  historyRepo,
		ReportRepo:   repository.NewDeliveryReportRepository(st),
		Center:       center,
		Directory: services.NewDirectoryService(memberRepo, repository.NewOrganizationRepository(st),
			repository.NewTemplateRepository(st), historyRepo, normalizer),
		Broadcasts: services.NewBroadcastService(client, memberRepo, recipients.NewResolver(normalizer),
			history.NewRecorder(historyRepo), center, services.BroadcastOptions{
				Policy: retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
				Now:    func() time.Time { return fixtures.BirthdayToday },
			}),
	}

	env.Queue, err = queue.NewQueue(adapter, queue.QueueConfig{
		Name:              "test:delivery",
		ConsumerGroup:     "test-group",
		ConsumerName:      "api",
		MaxRetries:        3,
		VisibilityTimeout: time.Second,
		PollInterval:      20 * time.Millisecond,
		BatchSize:         10,
	})
	require.NoError(t, err)

	ctx := context.Background()
	for _, m := range fixtures.Congregation() {
		created, err := env.Directory.CreateMember(ctx, m)
		require.NoError(t, err)
		env.Members[created.FirstName()] = created
	}
	return env
}

func TestE2E_BroadcastToAllDedupesSharedPhone(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	res, err := env.Broadcasts.Broadcast(ctx, services.BroadcastRequest{
		Text: "Sunday service starts at 9am",
		Mode: model.ModeAll,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Destinations)
	assert.Equal(t, 4, res.Recipients)
	assert.Equal(t, 4, res.Sent)
	assert.Equal(t, []string{"batch-1"}, res.BatchIDs)

	calls := env.Gateway.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, gateway.PathSend, calls[0].Path)
	assert.Equal(t, "CHURCH", calls[0].Sender)
	assert.ElementsMatch(t, []string{"233244111111", "233244333333", "233244444444"}, calls[0].Numbers())

	// one entry per logical recipient, Alice and Bob both logged
	entries, err := env.Directory.History(ctx, model.HistoryFilter{Category: model.CategoryGeneral})
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, model.HistoryStatusSent, e.Status)
		assert.Equal(t, "batch-1", e.ProviderBatchID)
	}

	bob, err := env.Directory.History(ctx, model.HistoryFilter{MemberID: env.Members["Bob"].ID})
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, model.PhoneNumber("233244111111"), bob[0].RecipientPhone)
}

func TestE2E_PersonalizedIndividualSends(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	res, err := env.Broadcasts.Broadcast(ctx, services.BroadcastRequest{
		Text:        "Dear {$name}, see you on Sunday",
		Mode:        model.ModeIndividual,
		Personalize: true,
		MemberIDs:   []string{env.Members["Alice"].ID, env.Members["Kwame"].ID},
	})
	require.NoError(t, err)
	assert.Equal(t, model.DestinationPersonalized.String(), res.Kind)

	calls := env.Gateway.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"233244111111"}, calls[0].Numbers())
	assert.Equal(t, []string{"233244333333"}, calls[1].Numbers())

	require.Len(t, res.History, 2)
	assert.Equal(t, "Dear Alice, see you on Sunday", res.History[0].Content)
	assert.Equal(t, "Dear Kwame, see you on Sunday", res.History[1].Content)
}

func TestE2E_BirthdayGreetsTodaysCelebrant(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	res, err := env.Broadcasts.SendBirthday(ctx, services.BirthdayRequest{Template: "Happy birthday {$name}!"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	calls := env.Gateway.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Happy birthday Kwame!", calls[0].Text)
	assert.Equal(t, []string{"233244333333"}, calls[0].Numbers())

	entries, err := env.Directory.History(ctx, model.HistoryFilter{Category: model.CategoryBirthday})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, env.Members["Kwame"].ID, entries[0].MemberID)
	assert.Equal(t, "Happy birthday Kwame!", entries[0].Content)
}

func TestE2E_RejectedHandshakeFailsAndOffersRetry(t *testing.T) {
	env := setupE2EEnvironment(t)
	env.Gateway.SetReject(true)
	ctx := context.Background()

	res, err := env.Broadcasts.Broadcast(ctx, services.BroadcastRequest{Text: "Prayer meeting tonight", Mode: model.ModeAll})
	var rejection *gateway.GatewayRejection
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, 4, res.Failed)

	failed, err := env.Directory.History(ctx, model.HistoryFilter{Status: model.HistoryStatusFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 4)

	notices := env.Center.List()
	require.NotEmpty(t, notices)
	var retryID string
	for _, n := range notices {
		if n.Kind == notify.KindFailure && n.Retryable {
			retryID = n.ID
		}
	}
	require.NotEmpty(t, retryID)

	env.Gateway.SetReject(false)
	require.NoError(t, env.Center.Retry(ctx, retryID))

	sent, err := env.Directory.History(ctx, model.HistoryFilter{Status: model.HistoryStatusSent})
	require.NoError(t, err)
	assert.Len(t, sent, 4)
}

func TestE2E_DeliveryWebhookIsStoredOnce(t *testing.T) {
	env := setupE2EEnvironment(t)
	webhook := handlers.NewWebhookHandler(env.Queue)

	post := func(body []byte) *xhttp.RequestCtx {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.Header.SetMethod(fasthttp.MethodPost)
		ctx.Request.SetRequestURI("/api/v1/webhooks/delivery")
		ctx.Request.SetBody(body)
		webhook.Delivery(ctx)
		return ctx
	}

	body := fixtures.DeliveryWebhook("batch-1-0", "233244111111", "DELIVERED")
	first := post(body)
	assert.Equal(t, fasthttp.StatusOK, first.Response.StatusCode())
	assert.JSONEq(t, `{"handshake":{"id":0,"label":"HSHK_OK"}}`, string(first.Response.Body()))
	post(body)

	idem := processor.NewIdempotencyService(env.RedisAdapter, processor.DefaultIdempotencyConfig())
	svc := processor.NewProcessorService(env.RedisAdapter, processor.NewDeliveryReportProcessor(env.ReportRepo, idem), processor.Options{
		Queue: queue.QueueConfig{
			Name:              "test:delivery",
			ConsumerGroup:     "test-group",
			ConsumerName:      "processor",
			MaxRetries:        3,
			VisibilityTimeout: time.Second,
			PollInterval:      20 * time.Millisecond,
			BatchSize:         10,
		},
		Consumers: 1,
		Workers:   2,
	})
	require.NoError(t, svc.Start())
	defer svc.Stop()

	helpers.AssertEventually(t, 5*time.Second, func() bool {
		return svc.Metrics().GetStats().TotalProcessed == 2
	}, "both webhook items should be consumed")

	reports, err := env.ReportRepo.ListByMessageID(context.Background(), "batch-1-0")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "delivered", reports[0].Status)
	assert.Equal(t, "233244111111", reports[0].Phone)
	require.NotNil(t, reports[0].ReportedAt)
}
