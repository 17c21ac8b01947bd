package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botarena/apiserver/internal/apperror"
	"github.com/botarena/apiserver/internal/model"
)

func strPtr(s string) *string { return &s }

func TestVerify_OrgNotFound(t *testing.T) {
	aff := NewAffiliationService(newMockOrgs())

	err := aff.Verify(context.Background(), 99, "someone@example.com", nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestVerify_HighSchoolAutoApproves(t *testing.T) {
	orgs := newMockOrgs()
	orgs.add(1, "Central High", model.KindHighSchool, nil)
	aff := NewAffiliationService(orgs)

	// No email shape check, no domain check: high schools are vetted
	// manually.
	assert.NoError(t, aff.Verify(context.Background(), 1, "", nil))
	assert.NoError(t, aff.Verify(context.Background(), 1, "not-an-email", nil))
}

func TestVerify_EmailShape(t *testing.T) {
	orgs := newMockOrgs()
	orgs.add(1, "Example University", model.KindUniversity, nil, "example.edu")
	aff := NewAffiliationService(orgs)

	err := aff.Verify(context.Background(), 1, "", nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	err = aff.Verify(context.Background(), 1, "no-at-sign", nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestVerify_DomainMatch(t *testing.T) {
	orgs := newMockOrgs()
	orgs.add(1, "Example University", model.KindUniversity, nil, "example.edu")
	aff := NewAffiliationService(orgs)

	assert.NoError(t, aff.Verify(context.Background(), 1, "student@example.edu", nil))
	assert.ErrorIs(t, aff.Verify(context.Background(), 1, "student@other.edu", nil), apperror.ErrValidation)
}

func TestVerify_RegistrableDomainMatch(t *testing.T) {
	orgs := newMockOrgs()
	orgs.add(1, "Example University", model.KindUniversity, nil, "example.edu")
	aff := NewAffiliationService(orgs)

	// A departmental subdomain address counts when the organization
	// registered the parent domain.
	assert.NoError(t, aff.Verify(context.Background(), 1, "student@mail.cs.example.edu", nil))
}

func TestVerify_CodeFallback(t *testing.T) {
	orgs := newMockOrgs()
	orgs.add(1, "Acme Corp", model.KindCompany, strPtr("sesame"), "acme.example")
	aff := NewAffiliationService(orgs)

	// Unmatched domain, correct code.
	assert.NoError(t, aff.Verify(context.Background(), 1, "me@gmail.com", strPtr("sesame")))

	// Unmatched domain, wrong or missing code.
	err := aff.Verify(context.Background(), 1, "me@gmail.com", strPtr("wrong"))
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Invalid verification code.", err.Error())

	err = aff.Verify(context.Background(), 1, "me@gmail.com", nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestVerify_NoCodeDefined(t *testing.T) {
	orgs := newMockOrgs()
	orgs.add(1, "Acme Corp", model.KindCompany, nil, "acme.example")
	aff := NewAffiliationService(orgs)

	err := aff.Verify(context.Background(), 1, "me@gmail.com", strPtr("anything"))
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Invalid email for organization.", err.Error())
}

func TestGuess(t *testing.T) {
	orgs := newMockOrgs()
	orgs.add(1, "Example University", model.KindUniversity, nil, "example.edu")
	aff := NewAffiliationService(orgs)

	org, err := aff.Guess(context.Background(), "student@example.edu")
	require.NoError(t, err)
	require.NotNil(t, org)
	assert.Equal(t, "Example University", org.Name)

	org, err = aff.Guess(context.Background(), "student@cs.example.edu")
	require.NoError(t, err)
	require.NotNil(t, org)

	org, err = aff.Guess(context.Background(), "someone@gmail.com")
	require.NoError(t, err)
	assert.Nil(t, org)

	// Malformed emails guess nothing rather than erroring.
	org, err = aff.Guess(context.Background(), "garbage")
	require.NoError(t, err)
	assert.Nil(t, org)
}
