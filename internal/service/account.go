package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/botarena/apiserver/internal/apperror"
	"github.com/botarena/apiserver/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateCountry checks an ISO 3166-1 alpha-2 country code and, when given,
// an ISO 3166-2 subdivision belonging to that country.
func validateCountry(cc string, sub *string) error {
	if err := validate.Var(cc, "iso3166_1_alpha2"); err != nil {
		return apperror.ValidationField("country_code", "Invalid country code.")
	}
	if sub != nil {
		if validate.Var(*sub, "iso3166_2") != nil || !strings.HasPrefix(*sub, cc+"-") {
			return apperror.ValidationField("country_subdivision_code", "Invalid country subdivision code.")
		}
	}
	return nil
}

// CreateAccountRequest is the account-setup payload. Every field is
// optional; absent fields keep whatever the OAuth first-login stored.
type CreateAccountRequest struct {
	Level                  *string `json:"level"`
	OrganizationID         *int64  `json:"organization_id"`
	Email                  *string `json:"email"`
	VerificationCode       *string `json:"verification_code"`
	CountryCode            *string `json:"country_code"`
	CountrySubdivisionCode *string `json:"country_subdivision_code"`
}

// CreateAccount completes account setup after OAuth first-login.
//
// Setup runs at most once: an account with a pending verification code, or
// one already verified, is rejected. An explicit organization is checked
// through affiliation verification; with no organization but an email, one
// is guessed from the email's domain. Supplying an email under a non-trivial
// organization stores a verification code and sends the verification mail
// (after the row is written); high-school players joining a high-school
// organization, and org-less accounts, are trusted outright. With no email
// at all the OAuth provider's address is adopted as already-good.
func (s *UserService) CreateAccount(ctx context.Context, userID int64, req CreateAccountRequest) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.VerificationCode != nil {
		return "", apperror.ValidationFailed("User needs to verify email.")
	}
	if user.IsEmailGood {
		return "", apperror.ValidationFailed("You have already successfully confirmed your membership with this organization.")
	}

	level := user.PlayerLevel
	if req.Level != nil {
		level = model.PlayerLevel(*req.Level)
		if !level.Valid() {
			return "", apperror.ValidationField("level", "Invalid player level.")
		}
	}
	if req.Email != nil && !strings.Contains(*req.Email, "@") {
		return "", apperror.ValidationField("email", "Invalid user email.")
	}

	changes := model.UserChanges{PlayerLevel: &level}

	if req.CountryCode != nil || req.CountrySubdivisionCode != nil {
		if req.CountryCode == nil {
			return "", apperror.ValidationField("country_code", "Must provide country to save subdivision.")
		}
		if err := validateCountry(*req.CountryCode, req.CountrySubdivisionCode); err != nil {
			return "", err
		}
		changes.SetCountry = true
		changes.CountryCode = req.CountryCode
		changes.CountrySubdivisionCode = req.CountrySubdivisionCode
	}

	var messages []string
	orgID := req.OrganizationID

	if orgID == nil && req.Email != nil {
		org, err := s.affiliation.Guess(ctx, *req.Email)
		if err != nil {
			return "", err
		}
		if org != nil {
			orgID = &org.ID
			messages = append(messages, fmt.Sprintf("You've been added to the %s organization.", org.Name))
		} else {
			messages = append(messages, "We could not associate an organization with your email, but you can still compete as an individual.")
		}
	}

	if req.OrganizationID != nil {
		affEmail := user.GitHubEmail
		if req.Email != nil {
			affEmail = *req.Email
		}
		if err := s.affiliation.Verify(ctx, *orgID, affEmail, req.VerificationCode); err != nil {
			return "", err
		}
	}

	good := true
	cleared := ""
	changes.SetOrganization = true
	changes.OrganizationID = orgID

	if req.Email != nil {
		changes.Email = req.Email

		needVerification := false
		if orgID != nil {
			org, err := s.orgs.GetByID(ctx, *orgID)
			if err != nil {
				return "", err
			}
			// High-school players joining a high-school org are vetted
			// manually, not by email.
			if !(org.Kind == model.KindHighSchool && level == model.LevelHighSchool) {
				needVerification = true
			}
		}
		if needVerification {
			code := newVerificationCode()
			notGood := false
			changes.IsEmailGood = &notGood
			changes.VerificationCode = &code
		} else {
			changes.IsEmailGood = &good
			changes.VerificationCode = &cleared
		}
	} else {
		ghEmail := user.GitHubEmail
		changes.Email = &ghEmail
		changes.IsEmailGood = &good
		changes.VerificationCode = &cleared
		if orgID != nil {
			messages = append(messages, "You've been added to the organization!")
		}
	}

	if err := s.users.Update(ctx, userID, changes); err != nil {
		return "", err
	}

	if changes.VerificationCode != nil && *changes.VerificationCode != "" {
		s.sendVerification(ctx, user, *changes.Email, *changes.VerificationCode, orgID, level)
		messages = append(messages, "Please check your email for a verification code.")
	}

	if len(messages) == 0 {
		messages = append(messages, "Account created.")
	}
	return strings.Join(messages, "\n"), nil
}

// updatableFields are the profile fields a user may change after setup.
// verification_code is accepted as input to affiliation checks but never
// stored on the user.
var updatableFields = map[string]struct{}{
	"level":                    {},
	"country_code":             {},
	"country_subdivision_code": {},
	"organization_id":          {},
	"email":                    {},
	"verification_code":        {},
	"is_gpu_enabled":           {},
}

// Update applies a partial profile change. Only the user themselves may
// call it; unknown fields are rejected by name.
//
// Country and subdivision merge against the stored values so either can be
// sent alone, but a subdivision can never end up stored without its country.
// A new organization goes through affiliation verification. A new email
// resets verification: a fresh code is stored, the verification mail goes
// out after the write, and — unless the request pinned an organization — the
// affiliation is re-guessed from the new address.
func (s *UserService) Update(ctx context.Context, callerID, targetID int64, fields map[string]any) (string, error) {
	if callerID != targetID {
		return "", apperror.UserMismatch()
	}
	for key := range fields {
		if _, ok := updatableFields[key]; !ok {
			return "", apperror.ValidationField(key, fmt.Sprintf("Cannot update '%s'.", key))
		}
	}

	user, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return "", err
	}

	var (
		changes  model.UserChanges
		messages []string
	)

	level := user.PlayerLevel
	if raw, ok := fields["level"]; ok && raw != nil {
		str, ok := raw.(string)
		if !ok || !model.PlayerLevel(str).Valid() {
			return "", apperror.ValidationField("level", "Invalid player level.")
		}
		level = model.PlayerLevel(str)
		changes.PlayerLevel = &level
	}

	ccRaw, ccPresent := fields["country_code"]
	subRaw, subPresent := fields["country_subdivision_code"]
	if ccPresent || subPresent {
		cc := user.CountryCode
		if ccPresent {
			if cc, err = optionalString(ccRaw, "country_code"); err != nil {
				return "", err
			}
		}
		sub := user.CountrySubdivisionCode
		if subPresent {
			if sub, err = optionalString(subRaw, "country_subdivision_code"); err != nil {
				return "", err
			}
		}
		if sub != nil && cc == nil {
			return "", apperror.ValidationField("country_subdivision_code", "Must provide country to save subdivision.")
		}
		if cc != nil {
			if err := validateCountry(*cc, sub); err != nil {
				return "", err
			}
		}
		changes.SetCountry = true
		changes.CountryCode = cc
		changes.CountrySubdivisionCode = sub
	}

	var newEmail *string
	if raw, ok := fields["email"]; ok && raw != nil {
		str, ok := raw.(string)
		if !ok || !strings.Contains(str, "@") {
			return "", apperror.ValidationField("email", "Invalid user email.")
		}
		newEmail = &str
	}

	var orgCode *string
	if raw, ok := fields["verification_code"]; ok && raw != nil {
		str, ok := raw.(string)
		if !ok {
			return "", apperror.ValidationField("verification_code", "Invalid verification code.")
		}
		orgCode = &str
	}

	orgRaw, orgPresent := fields["organization_id"]
	if orgPresent && orgRaw == nil {
		// A null organization_id is dropped, same as omitting the key: it
		// neither clears the stored org nor suppresses the re-guess on an
		// email change below.
		orgPresent = false
	}
	var orgID *int64
	if orgPresent {
		num, ok := orgRaw.(float64)
		if !ok || num != math.Trunc(num) {
			return "", apperror.ValidationField("organization_id", "Invalid organization.")
		}
		v := int64(num)
		orgID = &v
		changes.SetOrganization = true
		changes.OrganizationID = orgID
	}

	if orgID != nil {
		org, err := s.orgs.GetByID(ctx, *orgID)
		if err != nil {
			return "", err
		}
		if newEmail == nil && level != model.LevelHighSchool && org.Kind == model.KindHighSchool {
			return "", apperror.ValidationField("email", "Provide email to associate with organization.")
		}
		affEmail := ""
		if newEmail != nil {
			affEmail = *newEmail
		}
		if err := s.affiliation.Verify(ctx, *orgID, affEmail, orgCode); err != nil {
			return "", err
		}
	}

	if newEmail != nil {
		code := newVerificationCode()
		notGood := false
		changes.Email = newEmail
		changes.IsEmailGood = &notGood
		changes.VerificationCode = &code

		if !orgPresent {
			org, err := s.affiliation.Guess(ctx, *newEmail)
			if err != nil {
				return "", err
			}
			changes.SetOrganization = true
			if org != nil {
				orgID = &org.ID
				changes.OrganizationID = orgID
				messages = append(messages, fmt.Sprintf("You've been added to the %s organization.", org.Name))
			} else {
				changes.OrganizationID = nil
				messages = append(messages, "You've been removed from your organization.")
			}
		}
		messages = append(messages, "Please check your inbox for your verification email.")
	}

	if raw, ok := fields["is_gpu_enabled"]; ok && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return "", apperror.ValidationField("is_gpu_enabled", "Invalid value for is_gpu_enabled.")
		}
		changes.IsGPUEnabled = &b
	}

	if err := s.users.Update(ctx, targetID, changes); err != nil {
		return "", err
	}

	if newEmail != nil {
		s.sendVerification(ctx, user, *newEmail, *changes.VerificationCode, orgID, level)
	}

	if len(messages) == 0 {
		messages = append(messages, "Updated.")
	}
	return strings.Join(messages, "\n"), nil
}

// optionalString unpacks a JSON value that must be a string or null.
func optionalString(raw any, field string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	str, ok := raw.(string)
	if !ok {
		return nil, apperror.ValidationField(field, fmt.Sprintf("Invalid value for %s.", field))
	}
	return &str, nil
}
