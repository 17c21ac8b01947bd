package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/botarena/apiserver/internal/apperror"
	"github.com/botarena/apiserver/internal/model"
)

func TestOrganizationGetByID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	org := &model.Organization{
		Name:             "Example University",
		Kind:             model.KindUniversity,
		VerificationCode: strp("sesame"),
	}
	if err := db.InsertOrganization(ctx, org, []string{"example.edu"}); err != nil {
		t.Fatalf("InsertOrganization() error = %v", err)
	}

	got, err := db.Orgs().GetByID(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Example University" || got.Kind != model.KindUniversity {
		t.Errorf("GetByID() = %+v, wrong fields", got)
	}
	if got.VerificationCode == nil || *got.VerificationCode != "sesame" {
		t.Errorf("verification code = %v, want sesame", got.VerificationCode)
	}

	_, err = db.Orgs().GetByID(ctx, 9999)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCountDomainMatches(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	org := &model.Organization{Name: "Example University", Kind: model.KindUniversity}
	if err := db.InsertOrganization(ctx, org, []string{"example.edu", "example.ac.uk"}); err != nil {
		t.Fatalf("InsertOrganization() error = %v", err)
	}

	n, err := db.CountDomainMatches(ctx, org.ID, []string{"cs.example.edu", "example.edu"})
	if err != nil {
		t.Fatalf("CountDomainMatches() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountDomainMatches() = %d, want 1", n)
	}

	n, _ = db.CountDomainMatches(ctx, org.ID, []string{"gmail.com"})
	if n != 0 {
		t.Errorf("CountDomainMatches(no match) = %d, want 0", n)
	}

	n, _ = db.CountDomainMatches(ctx, org.ID, nil)
	if n != 0 {
		t.Errorf("CountDomainMatches(no keys) = %d, want 0", n)
	}
}

func TestFindByDomains(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.Organization{Name: "First University", Kind: model.KindUniversity}
	if err := db.InsertOrganization(ctx, first, []string{"shared.edu"}); err != nil {
		t.Fatalf("InsertOrganization() error = %v", err)
	}
	second := &model.Organization{Name: "Second University", Kind: model.KindUniversity}
	if err := db.InsertOrganization(ctx, second, []string{"shared.edu", "second.edu"}); err != nil {
		t.Fatalf("InsertOrganization() error = %v", err)
	}

	// Ties break toward the lowest organization ID.
	got, err := db.FindByDomains(ctx, []string{"shared.edu"})
	if err != nil {
		t.Fatalf("FindByDomains() error = %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Errorf("FindByDomains(shared) = %+v, want first org", got)
	}

	got, err = db.FindByDomains(ctx, []string{"second.edu"})
	if err != nil {
		t.Fatalf("FindByDomains() error = %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Errorf("FindByDomains(second) = %+v, want second org", got)
	}

	got, err = db.FindByDomains(ctx, []string{"unknown.org"})
	if err != nil {
		t.Fatalf("FindByDomains() error = %v", err)
	}
	if got != nil {
		t.Errorf("FindByDomains(unknown) = %+v, want nil", got)
	}

	got, err = db.FindByDomains(ctx, nil)
	if err != nil || got != nil {
		t.Errorf("FindByDomains(no keys) = (%+v, %v), want (nil, nil)", got, err)
	}
}
