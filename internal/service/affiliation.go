// Package service contains the business logic layer: affiliation resolution,
// the account lifecycle rules, and the public user projection. Handlers stay
// HTTP-only; repositories stay SQL-only.
package service

import (
	"context"

	"github.com/botarena/apiserver/internal/apperror"
	"github.com/botarena/apiserver/internal/emaildomain"
	"github.com/botarena/apiserver/internal/model"
	"github.com/botarena/apiserver/internal/repository"
)

// AffiliationService decides whether a user may associate with an
// organization, and guesses an organization from an email address.
type AffiliationService struct {
	orgs repository.OrganizationRepository
}

func NewAffiliationService(orgs repository.OrganizationRepository) *AffiliationService {
	return &AffiliationService{orgs: orgs}
}

// Verify checks that the email (or, failing a domain match, the provided
// code) entitles the caller to join the organization.
//
// High-school organizations are approved unconditionally — membership is
// vetted manually for them, before any email-shape check. Otherwise the
// email's domain and its registrable form are matched against the
// organization's registered domains; any match approves. With no match the
// organization's verification code is the fallback: exact match required
// when the organization defines one, a hard validation failure when it
// doesn't.
func (s *AffiliationService) Verify(ctx context.Context, orgID int64, email string, providedCode *string) error {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return err
	}

	if org.Kind == model.KindHighSchool {
		return nil
	}

	if email == "" {
		return apperror.ValidationFailed("Invalid email for organization.")
	}
	domain, ok := emaildomain.Parse(email)
	if !ok {
		return apperror.ValidationFailed("Email invalid.")
	}

	count, err := s.orgs.CountDomainMatches(ctx, orgID, domain.MatchKeys())
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if org.VerificationCode != nil {
		if providedCode != nil && *providedCode == *org.VerificationCode {
			return nil
		}
		return apperror.ValidationFailed("Invalid verification code.")
	}
	return apperror.ValidationFailed("Invalid email for organization.")
}

// Guess infers an organization from the email's domain. A malformed email or
// an unmatched domain yields (nil, nil) — no organization, not an error.
func (s *AffiliationService) Guess(ctx context.Context, email string) (*model.Organization, error) {
	domain, ok := emaildomain.Parse(email)
	if !ok {
		return nil, nil
	}
	return s.orgs.FindByDomains(ctx, domain.MatchKeys())
}
