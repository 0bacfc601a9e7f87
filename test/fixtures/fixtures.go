package fixtures

import (
	"time"

	"github.com/nimasrn/congregation-messenger/internal/model"
)

// BirthdayToday is the date the birthday scenarios run on.
var BirthdayToday = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// Congregation returns fresh members: Alice and Bob share a household phone,
// Kwame celebrates on BirthdayToday.
func Congregation() []*model.Member {
	return []*model.Member{
		{FullName: "Alice Mensah", Phone: "0244111111", OrganizationIDs: []string{}},
		{FullName: "Bob Mensah", Phone: "+233 24 411 1111", OrganizationIDs: []string{}},
		{FullName: "Kwame Asante", Phone: "0244333333", DateOfBirth: date(1990, time.March, 14)},
		{FullName: "Esi Boateng", Phone: "0244444444", DateOfBirth: date(1985, time.July, 2)},
	}
}

func Organizations() []*model.Organization {
	return []*model.Organization{
		{Name: "Choir"},
		{Name: "Youth Fellowship"},
	}
}

func Templates() []*model.MessageTemplate {
	return []*model.MessageTemplate{
		{Title: "Birthday", Body: "Happy birthday {$name}! God bless you.", Category: model.CategoryBirthday},
		{Title: "Service reminder", Body: "Sunday service starts at 9am.", Category: model.CategoryGeneral},
	}
}

var (
	ValidPhoneNumbers = []string{
		"0244111111",
		"233244111111",
		"+233244111111",
		"244111111",
		"024 411 1111",
	}

	InvalidPhoneNumbers = []string{
		"",
		"123",
		"invalid",
		"+1 555 0100",
		"02441111111",
	}

	ValidMessageContents = []string{
		"Sunday service starts at 9am",
		"Happy birthday {$name}!",
		"Akwaaba ✓",
	}

	InvalidMessageContents = []string{
		"",
		"   ",
		"\n\t",
	}
)

// DeliveryWebhook is a callback body as the gateway posts it.
func DeliveryWebhook(messageID, phone, status string) []byte {
	return []byte(`{"handshake":{"id":0,"label":"HSHK_OK"},"data":[{"message_id":"` + messageID +
		`","phone":"` + phone + `","status":"` + status + `","timestamp":"2026-03-14 09:00:00"}]}`)
}
