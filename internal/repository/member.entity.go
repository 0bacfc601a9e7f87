package repository

import (
	"time"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/store"
)

const dateLayout = "2006-01-02"

type MemberEntity struct {
	Code            string   `json:"code"`
	FullName        string   `json:"full_name"`
	Phone           string   `json:"phone"`
	OrganizationIDs []string `json:"organization_ids"`
	DateOfBirth     string   `json:"date_of_birth,omitempty"`
}

func toMemberEntity(m *model.Member) *MemberEntity {
	if m == nil {
		return nil
	}
	e := &MemberEntity{
		Code:            m.Code,
		FullName:        m.FullName,
		Phone:           m.Phone,
		OrganizationIDs: m.OrganizationIDs,
	}
	if e.OrganizationIDs == nil {
		e.OrganizationIDs = []string{}
	}
	if m.DateOfBirth != nil {
		e.DateOfBirth = m.DateOfBirth.Format(dateLayout)
	}
	return e
}

func toMemberModel(r store.Record) (*model.Member, error) {
	var e MemberEntity
	if err := fromFields(r.Fields, &e); err != nil {
		return nil, err
	}
	m := &model.Member{
		ID:              r.ID,
		Code:            e.Code,
		FullName:        e.FullName,
		Phone:           e.Phone,
		OrganizationIDs: e.OrganizationIDs,
		CreatedAt:       r.CreatedAt,
	}
	if e.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, e.DateOfBirth)
		if err == nil {
			m.DateOfBirth = &dob
		}
	}
	return m, nil
}
