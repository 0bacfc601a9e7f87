package recipients

import (
	"errors"
	"fmt"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/phone"
)

var (
	ErrNoRecipients = errors.New("no recipients selected")
	ErrUnknownMode  = errors.New("unknown destination mode")
	ErrInvalidPhone = errors.New("member has no valid phone number")
)

type PhoneNormalizer interface {
	Normalize(raw string) (model.PhoneNumber, error)
}

type Resolver struct {
	phones PhoneNormalizer
}

func NewResolver(phones PhoneNormalizer) *Resolver {
	if phones == nil {
		phones = phone.Default()
	}
	return &Resolver{phones: phones}
}

// Resolve applies the destination policy:
//
//	individual + personalize  -> personalized, one entry per member, duplicates kept
//	individual                -> flat, deduped by canonical phone
//	organization, all         -> flat, deduped, personalization ignored
//	birthday                  -> flat, deduped, personalization ignored
//
// A member with an unusable phone fails the whole request.
func (r *Resolver) Resolve(req model.ResolutionRequest) (model.DestinationSet, error) {
	if !req.Mode.Valid() {
		return model.DestinationSet{}, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}

	selected := r.selectMembers(req)
	if len(selected) == 0 {
		return model.DestinationSet{}, ErrNoRecipients
	}

	recipients := make([]model.Recipient, 0, len(selected))
	for _, m := range selected {
		p, err := r.phones.Normalize(m.Phone)
		if err != nil {
			return model.DestinationSet{}, fmt.Errorf("%w: %s (%s): %v", ErrInvalidPhone, m.FullName, m.ID, err)
		}
		recipients = append(recipients, model.Recipient{
			MemberID: m.ID,
			Name:     m.FullName,
			Phone:    p,
		})
	}

	if req.Mode == model.ModeIndividual && req.Personalize {
		return personalized(selected, recipients), nil
	}
	return flat(recipients), nil
}

func (r *Resolver) selectMembers(req model.ResolutionRequest) []model.Member {
	switch req.Mode {
	case model.ModeAll:
		return req.Members
	case model.ModeOrganization:
		orgs := toSet(req.SelectedOrgIDs)
		var out []model.Member
		for _, m := range req.Members {
			for _, id := range m.OrganizationIDs {
				if _, ok := orgs[id]; ok {
					out = append(out, m)
					break
				}
			}
		}
		return out
	case model.ModeBirthday:
		if len(req.SelectedIDs) == 0 {
			return req.Members
		}
		return byID(req.Members, req.SelectedIDs)
	default:
		return byID(req.Members, req.SelectedIDs)
	}
}

func personalized(members []model.Member, recipients []model.Recipient) model.DestinationSet {
	dests := make([]model.PersonalizedDestination, 0, len(recipients))
	for i := range recipients {
		values := []string{}
		if first := members[i].FirstName(); first != "" {
			values = append(values, first)
		}
		recipients[i].Values = values
		dests = append(dests, model.PersonalizedDestination{Number: recipients[i].Phone, Values: values})
	}
	return model.NewPersonalizedSet(dests, recipients)
}

func flat(recipients []model.Recipient) model.DestinationSet {
	seen := make(map[model.PhoneNumber]struct{}, len(recipients))
	numbers := make([]model.PhoneNumber, 0, len(recipients))
	for _, rc := range recipients {
		if _, ok := seen[rc.Phone]; ok {
			continue
		}
		seen[rc.Phone] = struct{}{}
		numbers = append(numbers, rc.Phone)
	}
	return model.NewFlatSet(numbers, recipients)
}

// byID keeps member list order; unknown and repeated ids are ignored.
func byID(members []model.Member, ids []string) []model.Member {
	want := toSet(ids)
	var out []model.Member
	for _, m := range members {
		if _, ok := want[m.ID]; ok {
			out = append(out, m)
			delete(want, m.ID)
		}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
