package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/cost"
	gateway "github.com/nimasrn/congregation-messenger/internal/gateways"
	"github.com/nimasrn/congregation-messenger/internal/history"
	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/retry"
	"github.com/nimasrn/congregation-messenger/internal/templates"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/nimasrn/congregation-messenger/pkg/prom"
)

const DefaultFallbackName = "Beloved"

var ErrPartialDispatch = errors.New("some personalized messages failed")

type Dispatcher interface {
	CheckConfigured() error
	Send(ctx context.Context, text string, destinations []model.PhoneNumber) (*gateway.Outcome, error)
	SendPersonalized(ctx context.Context, text string, destinations []model.PersonalizedDestination) (*gateway.Outcome, error)
	ScheduleSend(ctx context.Context, text string, set model.DestinationSet, at time.Time) (*gateway.Outcome, error)
	GetBalance(ctx context.Context) (*gateway.Balance, error)
}

type MemberLister interface {
	List(ctx context.Context) ([]model.Member, error)
}

type Resolver interface {
	Resolve(req model.ResolutionRequest) (model.DestinationSet, error)
}

type HistoryRecorder interface {
	RecordSent(ctx context.Context, s history.Send) ([]*model.HistoryEntry, error)
	RecordFailed(ctx context.Context, s history.Send, cause error) ([]*model.HistoryEntry, error)
	RecordScheduled(ctx context.Context, s history.Send) ([]*model.HistoryEntry, error)
}

type BroadcastOptions struct {
	Policy       retry.Policy
	FallbackName string
	Estimator    *cost.Estimator
	Now          func() time.Time
}

type BroadcastService struct {
	gateway  Dispatcher
	members  MemberLister
	resolver Resolver
	history  HistoryRecorder
	notifier retry.Notifier
	policy   retry.Policy
	fallback string
	pricing  *cost.Estimator
	now      func() time.Time
}

type BroadcastRequest struct {
	Text            string                `json:"text"`
	Mode            model.DestinationMode `json:"mode"`
	Personalize     bool                  `json:"personalize"`
	MemberIDs       []string              `json:"member_ids"`
	OrganizationIDs []string              `json:"organization_ids"`
}

type BirthdayRequest struct {
	MemberIDs []string `json:"member_ids"`
	Template  string   `json:"template"`
}

type BroadcastResult struct {
	Kind         string                `json:"kind"`
	Destinations int                   `json:"destinations"`
	Recipients   int                   `json:"recipients"`
	Sent         int                   `json:"sent"`
	Failed       int                   `json:"failed"`
	Scheduled    int                   `json:"scheduled"`
	BatchIDs     []string              `json:"batch_ids,omitempty"`
	Estimate     cost.Estimate         `json:"estimate"`
	History      []*model.HistoryEntry `json:"history"`
	Errors       []string              `json:"errors,omitempty"`
}

func NewBroadcastService(d Dispatcher, members MemberLister, resolver Resolver, recorder HistoryRecorder, notifier retry.Notifier, opts BroadcastOptions) *BroadcastService {
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.Policy.ShouldRetry == nil {
		opts.Policy.ShouldRetry = gateway.IsRetryable
	}
	if opts.FallbackName == "" {
		opts.FallbackName = DefaultFallbackName
	}
	if opts.Estimator == nil {
		opts.Estimator = cost.NewEstimator(cost.DefaultUnitPrice)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BroadcastService{
		gateway:  d,
		members:  members,
		resolver: resolver,
		history:  recorder,
		notifier: notifier,
		policy:   opts.Policy,
		fallback: opts.FallbackName,
		pricing:  opts.Estimator,
		now:      opts.Now,
	}
}

// Broadcast resolves the request and dispatches it. Validation and configuration
// problems are returned before any gateway call; gateway failures are retried
// and then logged as failed history.
func (s *BroadcastService) Broadcast(ctx context.Context, req BroadcastRequest) (*BroadcastResult, error) {
	text, set, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	// the send must finish and be logged even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	switch set.Kind {
	case model.DestinationPersonalized:
		return s.dispatchPersonalized(ctx, text, set)
	default:
		res := s.newResult(text, set)
		part, err := s.dispatchFlat(ctx, text, set, model.CategoryGeneral)
		res.merge(part)
		return res, err
	}
}

// Schedule hands the resolved set to the gateway for delivery at a later time.
func (s *BroadcastService) Schedule(ctx context.Context, req BroadcastRequest, at time.Time) (*BroadcastResult, error) {
	if at.IsZero() || !at.After(s.now()) {
		return nil, gateway.NewValidationError("schedule", "time must be in the future", nil)
	}
	text, set, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	res := s.newResult(text, set)

	var op attempt
	op = func(ctx context.Context) (*BroadcastResult, error) {
		part := &BroadcastResult{}
		send := history.Send{Recipients: set.Recipients, Text: text, Category: model.CategoryGeneral, ScheduledFor: &at}
		outcome, err := retry.Do(ctx, s.policy, gateway.OpSchedule, s.rerunNotifier(op), func(ctx context.Context) (*gateway.Outcome, error) {
			return s.gateway.ScheduleSend(ctx, text, set, at)
		})
		if err != nil {
			part.Failed += len(set.Recipients)
			part.record(s.history.RecordFailed(ctx, send, err))
			part.Errors = append(part.Errors, err.Error())
			return part, err
		}
		send.BatchID = outcome.BatchID
		part.Scheduled += len(set.Recipients)
		part.record(s.history.RecordScheduled(ctx, send))
		part.BatchIDs = appendBatch(part.BatchIDs, outcome.BatchID)
		return part, nil
	}

	part, err := op(ctx)
	res.merge(part)
	return res, err
}

// SendBirthday greets members, by default today's celebrants. Each member's
// greeting is rendered before resolution and members sharing the same rendered
// text go out in one flat, deduplicated send.
func (s *BroadcastService) SendBirthday(ctx context.Context, req BirthdayRequest) (*BroadcastResult, error) {
	tpl := strings.TrimSpace(req.Template)
	if tpl == "" {
		return nil, gateway.NewValidationError("template", "birthday message is empty", nil)
	}

	members, err := s.members.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}

	celebrants := selectMembers(members, req.MemberIDs)
	if len(req.MemberIDs) == 0 {
		today := s.now()
		celebrants = nil
		for _, m := range members {
			if m.HasBirthdayOn(today) {
				celebrants = append(celebrants, m)
			}
		}
	}

	type group struct {
		text string
		set  model.DestinationSet
	}
	var order []string
	byText := make(map[string][]string)
	for _, m := range celebrants {
		text := templates.RenderName(tpl, m.FirstName(), s.fallback)
		if _, ok := byText[text]; !ok {
			order = append(order, text)
		}
		byText[text] = append(byText[text], m.ID)
	}

	// resolve every group first so one bad phone blocks the whole run
	groups := make([]group, 0, len(order))
	for _, text := range order {
		set, err := s.resolver.Resolve(model.ResolutionRequest{
			Members:     members,
			Mode:        model.ModeBirthday,
			SelectedIDs: byText[text],
		})
		if err != nil {
			return nil, gateway.NewValidationError("recipients", "", err)
		}
		groups = append(groups, group{text: text, set: set})
	}
	if len(groups) == 0 {
		return nil, gateway.NewValidationError("recipients", "no birthdays to celebrate", nil)
	}
	if err := s.gateway.CheckConfigured(); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	res := &BroadcastResult{Kind: model.DestinationFlat.String()}
	var errs []error
	for _, g := range groups {
		est := s.pricing.EstimateBatch(g.text, g.set.Len())
		res.Estimate.Cost += est.Cost
		res.Estimate.Segments = max(res.Estimate.Segments, est.Segments)
		res.Destinations += g.set.Len()
		res.Recipients += len(g.set.Recipients)
		part, err := s.dispatchFlat(ctx, g.text, g.set, model.CategoryBirthday)
		res.merge(part)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}

// Estimate prices text for n destinations.
func (s *BroadcastService) Estimate(text string, destinations int) cost.Estimate {
	if destinations <= 0 {
		return s.pricing.Estimate(text)
	}
	return s.pricing.EstimateBatch(text, destinations)
}

// EstimateBroadcast resolves the request to price it per gateway destination.
func (s *BroadcastService) EstimateBroadcast(ctx context.Context, req BroadcastRequest) (cost.Estimate, error) {
	text, set, err := s.resolve(ctx, req)
	if err != nil {
		return cost.Estimate{}, err
	}
	return s.pricing.EstimateBatch(text, set.Len()), nil
}

// Balance is informational only and never gates a send.
func (s *BroadcastService) Balance(ctx context.Context) (*gateway.Balance, error) {
	if err := s.gateway.CheckConfigured(); err != nil {
		return nil, err
	}
	return retry.Do(context.WithoutCancel(ctx), s.policy, gateway.OpBalance, s.notifier, s.gateway.GetBalance)
}

func (s *BroadcastService) prepare(ctx context.Context, req BroadcastRequest) (string, model.DestinationSet, error) {
	text, set, err := s.resolve(ctx, req)
	if err != nil {
		return "", model.DestinationSet{}, err
	}
	if err := s.gateway.CheckConfigured(); err != nil {
		return "", model.DestinationSet{}, err
	}
	return text, set, nil
}

func (s *BroadcastService) resolve(ctx context.Context, req BroadcastRequest) (string, model.DestinationSet, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", model.DestinationSet{}, gateway.NewValidationError("text", "message is empty", nil)
	}
	if req.Mode == model.ModeBirthday {
		return "", model.DestinationSet{}, gateway.NewValidationError("mode", "use the birthday endpoint", nil)
	}

	members, err := s.members.List(ctx)
	if err != nil {
		return "", model.DestinationSet{}, fmt.Errorf("failed to load members: %w", err)
	}

	set, err := s.resolver.Resolve(model.ResolutionRequest{
		Members:        members,
		Mode:           req.Mode,
		Personalize:    req.Personalize,
		SelectedIDs:    req.MemberIDs,
		SelectedOrgIDs: req.OrganizationIDs,
	})
	if err != nil {
		return "", model.DestinationSet{}, gateway.NewValidationError("recipients", "", err)
	}
	return text, set, nil
}

func (s *BroadcastService) newResult(text string, set model.DestinationSet) *BroadcastResult {
	est := s.pricing.EstimateBatch(text, set.Len())
	prom.AddMessageSegments(string(est.Encoding), est.Segments)
	return &BroadcastResult{
		Kind:         set.Kind.String(),
		Destinations: set.Len(),
		Recipients:   len(set.Recipients),
		Estimate:     est,
	}
}

// attempt runs one dispatch and its history writes. Every run, the first one or
// a manual retry, returns its own result so reruns never touch a result that
// was already handed back to a caller.
type attempt func(ctx context.Context) (*BroadcastResult, error)

// dispatchFlat makes one gateway call for the whole set and logs every logical recipient.
// On a partial rejection only the refused numbers are logged as failed.
func (s *BroadcastService) dispatchFlat(ctx context.Context, text string, set model.DestinationSet, category model.Category) (*BroadcastResult, error) {
	var op attempt
	op = func(ctx context.Context) (*BroadcastResult, error) {
		part := &BroadcastResult{}
		send := history.Send{Recipients: set.Recipients, Text: text, Category: category}
		outcome, err := retry.Do(ctx, s.policy, gateway.OpSend, s.rerunNotifier(op), func(ctx context.Context) (*gateway.Outcome, error) {
			return s.gateway.Send(ctx, text, set.Flat)
		})
		if err != nil {
			sent, failed := splitRejected(set.Recipients, err)
			if len(sent) > 0 {
				ok := send
				ok.Recipients = sent
				part.Sent += len(sent)
				part.record(s.history.RecordSent(ctx, ok))
			}
			bad := send
			bad.Recipients = failed
			part.Failed += len(failed)
			part.record(s.history.RecordFailed(ctx, bad, err))
			part.Errors = append(part.Errors, err.Error())
			return part, err
		}
		send.BatchID = outcome.BatchID
		part.Sent += len(set.Recipients)
		part.record(s.history.RecordSent(ctx, send))
		part.BatchIDs = appendBatch(part.BatchIDs, outcome.BatchID)
		return part, nil
	}
	return op(ctx)
}

// dispatchPersonalized sends one destination at a time, awaiting each before
// the next, so history lands in submission order.
func (s *BroadcastService) dispatchPersonalized(ctx context.Context, text string, set model.DestinationSet) (*BroadcastResult, error) {
	res := s.newResult(text, set)

	for i, dest := range set.Personalized {
		rc := set.Recipients[i]
		if len(dest.Values) == 0 {
			dest.Values = []string{s.fallback}
			rc.Values = dest.Values
		}
		one := []model.PersonalizedDestination{dest}

		var op attempt
		op = func(ctx context.Context) (*BroadcastResult, error) {
			part := &BroadcastResult{}
			send := history.Send{Recipients: []model.Recipient{rc}, Text: text, Category: model.CategoryGeneral}
			outcome, err := retry.Do(ctx, s.policy, gateway.OpSendPersonalized, s.rerunNotifier(op), func(ctx context.Context) (*gateway.Outcome, error) {
				return s.gateway.SendPersonalized(ctx, text, one)
			})
			if err != nil {
				part.Failed++
				part.record(s.history.RecordFailed(ctx, send, err))
				part.Errors = append(part.Errors, fmt.Sprintf("%s: %v", rc.Name, err))
				return part, err
			}
			send.BatchID = outcome.BatchID
			part.Sent++
			part.record(s.history.RecordSent(ctx, send))
			part.BatchIDs = appendBatch(part.BatchIDs, outcome.BatchID)
			return part, nil
		}
		part, err := op(ctx)
		res.merge(part)
		if err != nil {
			logger.Warn("personalized send failed", "member_id", rc.MemberID, "error", err)
		}
	}

	if res.Failed > 0 {
		return res, fmt.Errorf("%w: %d of %d", ErrPartialDispatch, res.Failed, len(set.Personalized))
	}
	return res, nil
}

// record keeps whatever history was written and reports a failed audit write.
func (r *BroadcastResult) record(entries []*model.HistoryEntry, err error) {
	r.History = append(r.History, entries...)
	if err != nil {
		logger.Error("failed to record history", "error", err)
		r.Errors = append(r.Errors, "history: "+err.Error())
	}
}

func (r *BroadcastResult) merge(part *BroadcastResult) {
	if part == nil {
		return
	}
	r.Sent += part.Sent
	r.Failed += part.Failed
	r.Scheduled += part.Scheduled
	r.BatchIDs = append(r.BatchIDs, part.BatchIDs...)
	r.History = append(r.History, part.History...)
	r.Errors = append(r.Errors, part.Errors...)
}

// splitRejected separates recipients the gateway accepted from the ones it
// refused. Without a per-number report every recipient counts as failed.
func splitRejected(recipients []model.Recipient, err error) (sent, failed []model.Recipient) {
	var rejection *gateway.GatewayRejection
	if !errors.As(err, &rejection) || !rejection.Partial() {
		return nil, recipients
	}
	refused := make(map[string]struct{}, len(rejection.Rejected))
	for _, d := range rejection.Rejected {
		number := digitsOnly(d.Number)
		if number == "" {
			return nil, recipients
		}
		refused[number] = struct{}{}
	}
	for _, rc := range recipients {
		if _, ok := refused[digitsOnly(string(rc.Phone))]; ok {
			failed = append(failed, rc)
		} else {
			sent = append(sent, rc)
		}
	}
	if len(failed) == 0 {
		// the report names numbers we did not send to
		return nil, recipients
	}
	return sent, failed
}

func digitsOnly(v string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, v)
}

// rerunNotifier swaps the manual retry action for one that repeats the whole
// operation, history included.
func (s *BroadcastService) rerunNotifier(op attempt) retry.Notifier {
	if s.notifier == nil {
		return nil
	}
	return &rerunNotifier{inner: s.notifier, rerun: op}
}

type rerunNotifier struct {
	inner retry.Notifier
	rerun attempt
}

func (n *rerunNotifier) Retrying(label string, attempt, maxAttempts int, delay time.Duration, err error) {
	n.inner.Retrying(label, attempt, maxAttempts, delay, err)
}

func (n *rerunNotifier) Recovered(label string, attempts int) {
	n.inner.Recovered(label, attempts)
}

func (n *rerunNotifier) Failed(label string, attempts int, err error, _ func(ctx context.Context) error) {
	rerun := n.rerun
	n.inner.Failed(label, attempts, err, func(ctx context.Context) error {
		// the rerun reports through history and notices, its result has no caller
		_, err := rerun(context.WithoutCancel(ctx))
		return err
	})
}

func selectMembers(members []model.Member, ids []string) []model.Member {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []model.Member
	for _, m := range members {
		if _, ok := want[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

func appendBatch(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	return append(ids, id)
}
