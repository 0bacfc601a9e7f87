package model

import "errors"

// PhoneNumber is a canonical, country-code prefixed digit string (no "+", no trunk "0").
type PhoneNumber string

func (p PhoneNumber) String() string { return string(p) }

type DestinationMode string

const (
	ModeIndividual   DestinationMode = "individual"
	ModeOrganization DestinationMode = "organization"
	ModeAll          DestinationMode = "all"
	ModeBirthday     DestinationMode = "birthday"
)

func (m DestinationMode) Valid() bool {
	switch m {
	case ModeIndividual, ModeOrganization, ModeAll, ModeBirthday:
		return true
	}
	return false
}

// ResolutionRequest is built once per user action and never mutated afterwards.
type ResolutionRequest struct {
	Members        []Member
	Mode           DestinationMode
	Personalize    bool
	SelectedIDs    []string
	SelectedOrgIDs []string
}

// Recipient is one logical target of a send.
type Recipient struct {
	MemberID string      `json:"member_id"`
	Name     string      `json:"name"`
	Phone    PhoneNumber `json:"phone"`
	Values   []string    `json:"values,omitempty"`
}

type DestinationKind int

const (
	DestinationFlat DestinationKind = iota + 1
	DestinationPersonalized
)

func (k DestinationKind) String() string {
	switch k {
	case DestinationFlat:
		return "flat"
	case DestinationPersonalized:
		return "personalized"
	default:
		return "unknown"
	}
}

// PersonalizedDestination is one gateway destination with positional template values.
type PersonalizedDestination struct {
	Number PhoneNumber `json:"number"`
	Values []string    `json:"values"`
}

// DestinationSet is the resolved target of a broadcast. Exactly one of Flat or
// Personalized is populated, as named by Kind. Recipients always lists every
// logical recipient so history can be written per member even when phones collapse.
type DestinationSet struct {
	Kind         DestinationKind
	Flat         []PhoneNumber
	Personalized []PersonalizedDestination
	Recipients   []Recipient
}

var ErrMixedDestinationSet = errors.New("destination set must carry exactly one shape")

func NewFlatSet(numbers []PhoneNumber, recipients []Recipient) DestinationSet {
	return DestinationSet{Kind: DestinationFlat, Flat: numbers, Recipients: recipients}
}

func NewPersonalizedSet(dests []PersonalizedDestination, recipients []Recipient) DestinationSet {
	return DestinationSet{Kind: DestinationPersonalized, Personalized: dests, Recipients: recipients}
}

// Len is the number of gateway destinations, not logical recipients.
func (d DestinationSet) Len() int {
	switch d.Kind {
	case DestinationFlat:
		return len(d.Flat)
	case DestinationPersonalized:
		return len(d.Personalized)
	}
	return 0
}

func (d DestinationSet) Validate() error {
	switch d.Kind {
	case DestinationFlat:
		if len(d.Personalized) > 0 {
			return ErrMixedDestinationSet
		}
	case DestinationPersonalized:
		if len(d.Flat) > 0 {
			return ErrMixedDestinationSet
		}
	default:
		return ErrMixedDestinationSet
	}
	return nil
}
