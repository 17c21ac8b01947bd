// Package model defines the data structures used throughout the application.
package model

import "time"

// OAuthProvider identifies which identity provider an account came from.
// Stored as an integer so new providers can be appended without a schema change.
type OAuthProvider int

const (
	ProviderGitHub OAuthProvider = 1
)

// PlayerLevel is the self-reported experience level of a player.
type PlayerLevel string

const (
	LevelHighSchool   PlayerLevel = "High School"
	LevelUniversity   PlayerLevel = "University"
	LevelProfessional PlayerLevel = "Professional"
)

// Valid reports whether l is one of the known player levels.
func (l PlayerLevel) Valid() bool {
	switch l {
	case LevelHighSchool, LevelUniversity, LevelProfessional:
		return true
	}
	return false
}

// User is a stored account row.
//
// Accounts are created with minimal fields at OAuth first-login and completed
// later through the account-setup endpoint. VerificationCode is non-empty
// exactly while IsEmailGood is false; every write path maintains that pairing.
//
// Email is the address the user supplied during setup; GitHubEmail is the one
// the OAuth provider reported. Accounts that never supply an email fall back
// to the provider address.
type User struct {
	ID                     int64
	Username               string
	OAuthProvider          OAuthProvider
	OAuthID                int64
	GitHubEmail            string
	Email                  *string
	IsEmailGood            bool
	IsAdmin                bool
	VerificationCode       *string
	OrganizationID         *int64
	PlayerLevel            PlayerLevel
	CountryCode            *string
	CountrySubdivisionCode *string
	Score                  float64
	Mu                     float64
	Sigma                  float64
	NumBots                int
	NumSubmissions         int
	NumGames               int
	APIKeyHash             *string
	IsGPUEnabled           bool
	CreationTime           time.Time
}

// RankedUser is the joined row behind the public user projection: the user,
// the name of their organization (if any), and their leaderboard rank.
// Rank is nil for users with no ranked submissions.
type RankedUser struct {
	UserID                 int64
	Username               string
	PlayerLevel            PlayerLevel
	OrganizationID         *int64
	OrganizationName       *string
	CountryCode            *string
	CountrySubdivisionCode *string
	NumBots                int
	NumSubmissions         int
	NumGames               int
	Score                  float64
	Mu                     float64
	Sigma                  float64
	Rank                   *int
	IsEmailGood            bool
	IsGPUEnabled           bool
	PersonalEmail          *string
}

// UserChanges is a partial update over a user row. Nil pointers mean
// "leave the column alone". The country pair carries explicit Set flags
// because, unlike every other column, those two may be overwritten with
// NULL on purpose.
type UserChanges struct {
	PlayerLevel *PlayerLevel

	SetCountry             bool
	CountryCode            *string
	CountrySubdivisionCode *string

	SetOrganization bool
	OrganizationID  *int64

	Email            *string
	IsEmailGood      *bool
	VerificationCode *string // empty string clears the code
	IsGPUEnabled     *bool
	APIKeyHash       *string
}

// BotHistory is one retired bot version's final standing. Rows are written by
// the rating pipeline when a new version replaces an old one and are never
// modified afterwards.
type BotHistory struct {
	UserID          int64
	VersionNumber   int
	LastRank        int
	LastScore       float64
	LastNumPlayers  int
	LastGamesPlayed int
	WhenRetired     time.Time
}

// LegacyUser is a season-1 leaderboard row, provisioned out-of-band and
// matched to current accounts by username.
type LegacyUser struct {
	UserID         int64
	Username       string
	Level          string
	Organization   string
	Language       string
	Mu             float64
	Sigma          float64
	NumSubmissions int
	NumGames       int
	Rank           *int
}
