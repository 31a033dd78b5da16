package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/guidexpert/counsellor-api/internal/models"
	appErrors "github.com/guidexpert/counsellor-api/pkg/errors"
)

type profileRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.CounsellorProfile, error)
	SlugTaken(ctx context.Context, slug, excludeUserID string) (bool, error)
	Upsert(ctx context.Context, profile *models.CounsellorProfile) error
}

// UpdateProfileRequest holds the editable counsellor profile fields.
type UpdateProfileRequest struct {
	DisplayName    string `json:"display_name" validate:"required,min=2,max=120"`
	Email          string `json:"email" validate:"required,email"`
	Specialization string `json:"specialization" validate:"max=200"`
	Phone          string `json:"phone" validate:"max=20"`
	Slug           string `json:"slug" validate:"required,min=3,max=60"`
}

// ProfileService manages counsellor profiles and referral links.
type ProfileService struct {
	repo          profileRepository
	validator     *validator.Validate
	logger        *zap.Logger
	publicBaseURL string
}

// NewProfileService constructs the profile service.
func NewProfileService(repo profileRepository, validate *validator.Validate, logger *zap.Logger, publicBaseURL string) *ProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{repo: repo, validator: validate, logger: logger, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// ReferralLink builds the public referral URL for a slug.
func (s *ProfileService) ReferralLink(slug string) string {
	if slug == "" {
		return ""
	}
	return fmt.Sprintf("%s/counsellor/%s", s.publicBaseURL, slug)
}

// Get returns the profile for a counsellor account with the referral link
// populated.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.CounsellorProfile, error) {
	profile, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not set up yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	profile.ReferralLink = s.ReferralLink(profile.Slug)
	return profile, nil
}

// Update writes the profile, enforcing slug uniqueness across counsellors.
func (s *ProfileService) Update(ctx context.Context, userID string, req UpdateProfileRequest) (*models.CounsellorProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	slug := Slugify(req.Slug)
	if slug == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slug must contain letters or digits")
	}

	taken, err := s.repo.SlugTaken(ctx, slug, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate slug")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "slug already in use")
	}

	profile := &models.CounsellorProfile{
		UserID:         userID,
		DisplayName:    strings.TrimSpace(req.DisplayName),
		Email:          req.Email,
		Specialization: strings.TrimSpace(req.Specialization),
		Phone:          strings.TrimSpace(req.Phone),
		Slug:           slug,
	}
	if err := s.repo.Upsert(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save profile")
	}
	profile.ReferralLink = s.ReferralLink(profile.Slug)
	return profile, nil
}

// Slugify lowercases the input and collapses runs of non-alphanumeric
// characters into single hyphens.
func Slugify(raw string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
