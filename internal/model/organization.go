package model

import "time"

// OrganizationKind classifies an organization for affiliation purposes.
// High schools are special-cased: membership is vetted manually, so the
// affiliation resolver approves them without a domain or code check.
type OrganizationKind string

const (
	KindHighSchool OrganizationKind = "High School"
	KindUniversity OrganizationKind = "University"
	KindCompany    OrganizationKind = "Company"
	KindOther      OrganizationKind = "Other"
)

// Organization is a school, university, or company users may affiliate with.
// Organizations and their email domains are provisioned out-of-band; this
// service only reads them.
type Organization struct {
	ID               int64
	Name             string
	Kind             OrganizationKind
	VerificationCode *string
}

// OrganizationEmailDomain binds one domain string to an organization.
// The value is either a full email domain ("cs.example.edu") or a
// registrable suffix ("example.edu") that matches any subdomain of it.
type OrganizationEmailDomain struct {
	OrganizationID int64
	Domain         string
}

// Game is a finished match between bots. This service only ever deletes
// games (when removing a participant's account); ingestion lives in the
// game coordinator.
type Game struct {
	ID         int64
	ReplayName string
	TimePlayed time.Time
}

// GameParticipant links one user to one game with their finishing rank.
type GameParticipant struct {
	GameID int64
	UserID int64
	Rank   int
}
