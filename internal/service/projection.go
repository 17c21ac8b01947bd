package service

import (
	"github.com/botarena/apiserver/internal/model"
)

// Tier names, best to worst. Cutoffs are fractions of the ranked population.
var tierCutoffs = []struct {
	Fraction float64
	Name     string
}{
	{1.0 / 512, "Diamond"},
	{1.0 / 128, "Platinum"},
	{1.0 / 32, "Gold"},
	{1.0 / 8, "Silver"},
}

const tierDefault = "Bronze"

// TierForRank buckets a leaderboard rank into a named tier. A rank within
// the top 1/512 of totalRanked players is Diamond, within 1/128 Platinum,
// 1/32 Gold, 1/8 Silver, everything else Bronze.
func TierForRank(rank, totalRanked int) string {
	if totalRanked <= 0 {
		return tierDefault
	}
	frac := float64(rank) / float64(totalRanked)
	for _, t := range tierCutoffs {
		if frac <= t.Fraction {
			return t.Name
		}
	}
	return tierDefault
}

// UserProfile is the public JSON shape of a user. Email addresses and other
// credentials never appear here; IsNewUser is present only on a self-view.
type UserProfile struct {
	UserID                 int64   `json:"user_id"`
	Username               string  `json:"username"`
	Level                  string  `json:"level"`
	OrganizationID         *int64  `json:"organization_id"`
	Organization           *string `json:"organization"`
	CountryCode            *string `json:"country_code"`
	CountrySubdivisionCode *string `json:"country_subdivision_code"`
	NumBots                int     `json:"num_bots"`
	NumSubmissions         int     `json:"num_submissions"`
	NumGames               int     `json:"num_games"`
	Score                  float64 `json:"score"`
	Mu                     float64 `json:"mu"`
	Sigma                  float64 `json:"sigma"`
	Rank                   *int    `json:"rank"`
	Tier                   *string `json:"tier"`
	IsEmailGood            bool    `json:"is_email_good"`
	IsGPUEnabled           bool    `json:"is_gpu_enabled"`
	IsNewUser              *bool   `json:"is_new_user,omitempty"`
}

// ProjectUser maps a ranked row to its public profile. Tier is derived from
// the rank against the ranked population; users with no submissions have no
// rank and no tier. selfView marks a user looking at their own record, which
// exposes the is_new_user flag (true until a personal email is stored).
func ProjectUser(row *model.RankedUser, totalRanked int, selfView bool) UserProfile {
	p := UserProfile{
		UserID:                 row.UserID,
		Username:               row.Username,
		Level:                  string(row.PlayerLevel),
		OrganizationID:         row.OrganizationID,
		Organization:           row.OrganizationName,
		CountryCode:            row.CountryCode,
		CountrySubdivisionCode: row.CountrySubdivisionCode,
		NumBots:                row.NumBots,
		NumSubmissions:         row.NumSubmissions,
		NumGames:               row.NumGames,
		Score:                  row.Score,
		Mu:                     row.Mu,
		Sigma:                  row.Sigma,
		Rank:                   row.Rank,
		IsEmailGood:            row.IsEmailGood,
		IsGPUEnabled:           row.IsGPUEnabled,
	}
	if row.Rank != nil {
		tier := TierForRank(*row.Rank, totalRanked)
		p.Tier = &tier
	}
	if selfView && row.PersonalEmail == nil {
		isNew := true
		p.IsNewUser = &isNew
	}
	return p
}

// HistoryRecord is the JSON shape of one retired bot version.
type HistoryRecord struct {
	BotVersionNumber int     `json:"bot_version"`
	LastRank         int     `json:"last_rank"`
	LastScore        float64 `json:"last_score"`
	LastNumPlayers   int     `json:"last_num_players"`
	LastGamesPlayed  int     `json:"last_games_played"`
	WhenRetired      string  `json:"when_retired"`
}

// ProjectHistory maps retired bot rows to their JSON shape.
func ProjectHistory(rows []model.BotHistory) []HistoryRecord {
	out := make([]HistoryRecord, 0, len(rows))
	for _, h := range rows {
		out = append(out, HistoryRecord{
			BotVersionNumber: h.VersionNumber,
			LastRank:         h.LastRank,
			LastScore:        h.LastScore,
			LastNumPlayers:   h.LastNumPlayers,
			LastGamesPlayed:  h.LastGamesPlayed,
			WhenRetired:      h.WhenRetired.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	return out
}

// Season1Profile is the JSON shape of an archived first-season record,
// looked up by the current account's username. Field names keep the archived
// table's camelCase spelling.
type Season1Profile struct {
	UserID         int64   `json:"userID"`
	Username       string  `json:"username"`
	Level          string  `json:"level"`
	Organization   string  `json:"organization"`
	Language       string  `json:"language"`
	Mu             float64 `json:"mu"`
	Sigma          float64 `json:"sigma"`
	NumSubmissions int     `json:"numSubmissions"`
	NumGames       int     `json:"numGames"`
	Rank           *int    `json:"rank"`
}

func ProjectSeason1(u *model.LegacyUser) Season1Profile {
	return Season1Profile{
		UserID:         u.UserID,
		Username:       u.Username,
		Level:          u.Level,
		Organization:   u.Organization,
		Language:       u.Language,
		Mu:             u.Mu,
		Sigma:          u.Sigma,
		NumSubmissions: u.NumSubmissions,
		NumGames:       u.NumGames,
		Rank:           u.Rank,
	}
}
