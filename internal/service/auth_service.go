package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/clipsyncapp/api-clipsync/internal/repository"
	"github.com/clipsyncapp/api-clipsync/pkg/auth"
	"github.com/clipsyncapp/api-clipsync/pkg/mailer"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	codeLength      = 6
	codeRateLimit   = 3 // max verification codes per hour per identifier
	codeRateWindow  = time.Hour
	codeRedisPrefix = "clipsync:propcode:"
)

// AuthService handles accounts, properties and session issuance
type AuthService struct {
	accountRepo *repository.AccountRepository
	sessionRepo *repository.SessionRepository
	instRepo    *repository.InstallationRepository
	jwtManager  *auth.JWTManager
	mailer      *mailer.Mailer
	rdb         *redis.Client
}

func NewAuthService(
	accountRepo *repository.AccountRepository,
	sessionRepo *repository.SessionRepository,
	instRepo *repository.InstallationRepository,
	jwtManager *auth.JWTManager,
	mailer *mailer.Mailer,
	rdb *redis.Client,
) *AuthService {
	return &AuthService{
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		instRepo:    instRepo,
		jwtManager:  jwtManager,
		mailer:      mailer,
		rdb:         rdb,
	}
}

// ==================== Properties ====================

// ClaimProperty handles both scopes of POST /accounts/properties:
// "claim" creates an unverified property and sends its code,
// "verify" checks the code and transitions the claim to verified.
func (s *AuthService) ClaimProperty(req model.ClaimPropertyRequest) (*model.PropertyResponse, error) {
	content := normalizeContent(req.Content)
	propType := req.Type
	if propType == "" {
		propType = model.PropertyTypeEmail
	}

	if req.Scope == "verify" {
		return s.verifyProperty(content, req.Code)
	}

	// An owned primary property with the same content blocks a new claim.
	taken, err := s.accountRepo.PrimaryPropertyExists(content)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrConflict
	}

	if err := s.checkCodeRateLimit(content); err != nil {
		return nil, err
	}

	code, err := generateCode(codeLength)
	if err != nil {
		return nil, errors.New("failed to generate verification code")
	}

	prop := &model.AccountProperty{
		ID:      uuid.New(),
		Content: content,
		Type:    propType,
		State:   model.PropertyStateUnverified,
		Code:    code,
	}
	if err := s.accountRepo.CreateProperty(prop); err != nil {
		return nil, errors.New("failed to save property claim")
	}

	// Deliver the code asynchronously; the claim stands either way.
	if propType == model.PropertyTypeEmail && s.mailer != nil {
		go func() {
			if err := s.mailer.SendVerificationCode(content, code); err != nil {
				log.Printf("failed to send verification code: %v", err)
			}
		}()
	}

	return propToResponse(prop), nil
}

func (s *AuthService) verifyProperty(content, code string) (*model.PropertyResponse, error) {
	prop, err := s.accountRepo.FindClaimedProperty(content)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if code == "" || prop.Code != code {
		return nil, NewValidationError("code", "invalid verification code")
	}
	if prop.State == model.PropertyStateUnverified {
		if err := s.accountRepo.MarkPropertyVerified(prop.ID); err != nil {
			return nil, err
		}
		prop.State = model.PropertyStateVerified
	}
	return propToResponse(prop), nil
}

// ==================== Accounts ====================

// CreateAccount signs up a new account. challenges maps property id to the
// code presented in Challenge-Response headers; every referenced property
// must already be verified and its code must match. The properties become
// owned primary properties of the new account.
func (s *AuthService) CreateAccount(req model.CreateAccountRequest, challenges map[uuid.UUID]string) (*model.Account, error) {
	if len(challenges) == 0 {
		return nil, NewValidationError("challenge_response", "at least one verified property is required")
	}

	propertyIDs := make([]uuid.UUID, 0, len(challenges))
	for id, code := range challenges {
		prop, err := s.accountRepo.FindPropertyByID(id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if !prop.IsVerified() || prop.Code != code {
			return nil, NewValidationError("challenge_response", "property not verified or code mismatch")
		}
		taken, err := s.accountRepo.PrimaryPropertyExists(prop.Content)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrConflict
		}
		propertyIDs = append(propertyIDs, id)
	}

	handle := normalizeContent(req.Name)
	if taken, err := s.accountRepo.HandleTaken(handle); err != nil {
		return nil, err
	} else if taken {
		return nil, NewValidationError("name", "handle already in use")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash secret")
	}

	acc := &model.Account{
		ID:         uuid.New(),
		Handle:     handle,
		Name:       req.Name,
		SecretHash: string(hash),
	}
	if _, err := s.accountRepo.CreateWithSecretUpdate(acc, propertyIDs); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.New("failed to create account")
	}
	return acc, nil
}

// ChangeSecret rotates the account credential. Sessions pinned to older
// SecretUpdate rows stop refreshing.
func (s *AuthService) ChangeSecret(accountID uuid.UUID, newSecret string) error {
	if len(newSecret) < 8 {
		return NewValidationError("secret", "must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newSecret), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("failed to hash secret")
	}
	_, err = s.accountRepo.AddSecretUpdate(accountID, string(hash))
	return err
}

// ==================== Sessions ====================

// CreateSession is login. Resolves the account by handle or by a verified
// primary property, compares the secret, and issues tokens. When linkID is
// supplied the session reuses that link (it must belong to the account);
// otherwise prior active links for the pair are rotated out.
func (s *AuthService) CreateSession(installationID uuid.UUID, req model.CreateSessionRequest) (*model.SessionResponse, error) {
	if _, err := s.instRepo.FindByID(installationID); err != nil {
		return nil, ErrNotFound
	}

	acc, err := s.resolveAccount(req.Unique)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.SecretHash), []byte(req.Secret)) != nil {
		return nil, NewValidationError("secret", "invalid credentials")
	}

	update, err := s.accountRepo.LatestSecretUpdate(acc.ID)
	if err != nil {
		return nil, errors.New("account has no credential record")
	}

	session := &model.AuthSession{
		ID:             uuid.New(),
		AccountID:      acc.ID,
		InstallationID: installationID,
		SecretUpdateID: update.ID,
		RefreshToken:   auth.NewRefreshToken(),
	}

	var link *model.InstallationLink
	if req.LinkID != nil {
		link, err = s.sessionRepo.FindLink(*req.LinkID)
		if err != nil {
			return nil, ErrNotFound
		}
		if link.AccountID != acc.ID {
			return nil, ErrForbidden
		}
		session.LinkID = link.ID
		if err := s.sessionRepo.CreateSession(session); err != nil {
			return nil, errors.New("failed to create session")
		}
	} else {
		link, err = s.sessionRepo.CreateSessionWithLinkRotation(session)
		if err != nil {
			return nil, errors.New("failed to create session")
		}
	}

	return s.sessionResponse(session, acc, link)
}

// Refresh rotates a session. The refresh token must belong to the calling
// installation (403, distinguished from 401) and the session must still be
// pinned to the account's latest SecretUpdate. The consumed row is
// soft-deleted in the same transaction that mints the replacement, so a
// replayed token fails with 401.
func (s *AuthService) Refresh(refreshToken string, installationID uuid.UUID) (*model.SessionResponse, error) {
	session, err := s.sessionRepo.FindByRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if session.InstallationID != installationID {
		return nil, ErrForbidden
	}

	latest, err := s.accountRepo.LatestSecretUpdate(session.AccountID)
	if err != nil || latest.ID != session.SecretUpdateID {
		return nil, ErrUnauthorized
	}

	replacement := &model.AuthSession{
		ID:             uuid.New(),
		AccountID:      session.AccountID,
		InstallationID: session.InstallationID,
		LinkID:         session.LinkID,
		SecretUpdateID: session.SecretUpdateID,
		RefreshToken:   auth.NewRefreshToken(),
	}
	if err := s.sessionRepo.Rotate(session.ID, replacement); err != nil {
		// Lost a race with a concurrent rotation of the same token.
		return nil, ErrUnauthorized
	}

	acc, err := s.accountRepo.FindByID(session.AccountID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	link, err := s.sessionRepo.FindLink(session.LinkID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return s.sessionResponse(replacement, acc, link)
}

// ==================== Links ====================

// ActiveLinks returns the account's device list
func (s *AuthService) ActiveLinks(accountID uuid.UUID) ([]model.InstallationLink, error) {
	return s.sessionRepo.ActiveLinksForAccount(accountID)
}

// RenameLink sets the optional name of a link owned by the account
func (s *AuthService) RenameLink(accountID uuid.UUID, req model.RenameLinkRequest) error {
	link, err := s.sessionRepo.FindLink(req.LinkID)
	if err != nil {
		return ErrNotFound
	}
	if link.AccountID != accountID {
		return ErrForbidden
	}
	return s.sessionRepo.RenameLink(link.ID, req.Name)
}

// ==================== Internal Helpers ====================

func (s *AuthService) resolveAccount(unique string) (*model.Account, error) {
	acc, err := s.accountRepo.FindByHandle(normalizeContent(unique))
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	acc, err = s.accountRepo.FindAccountByPrimaryProperty(normalizeContent(unique))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError("unique", "account not found")
		}
		return nil, err
	}
	return acc, nil
}

func (s *AuthService) sessionResponse(session *model.AuthSession, acc *model.Account, link *model.InstallationLink) (*model.SessionResponse, error) {
	token, err := s.jwtManager.GenerateAccessToken(acc.Handle, acc.ID, link.ID, session.InstallationID)
	if err != nil {
		return nil, errors.New("failed to generate access token")
	}
	return &model.SessionResponse{
		SessionID:    session.ID,
		AccessToken:  token,
		RefreshToken: session.RefreshToken,
		Account:      *acc,
		Link:         *link,
	}, nil
}

// checkCodeRateLimit allows codeRateLimit sends per identifier per window.
// Counted in Redis so the limit holds across instances; without Redis it
// falls back to counting recent claim rows in the database.
func (s *AuthService) checkCodeRateLimit(content string) error {
	if s.rdb == nil {
		count, err := s.accountRepo.RecentPropertyClaims(content, time.Now().Add(-codeRateWindow))
		if err != nil || count < codeRateLimit {
			return nil
		}
		return errors.New("too many verification codes requested. Please try again later")
	}
	ctx := context.Background()
	key := codeRedisPrefix + content
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil // rate limiting is best-effort
	}
	if count == 1 {
		s.rdb.Expire(ctx, key, codeRateWindow)
	}
	if count > codeRateLimit {
		return errors.New("too many verification codes requested. Please try again later")
	}
	return nil
}

func normalizeContent(content string) string {
	return strings.ToLower(strings.TrimSpace(content))
}

func propToResponse(p *model.AccountProperty) *model.PropertyResponse {
	return &model.PropertyResponse{
		ID:      p.ID,
		Content: p.Content,
		Type:    p.Type,
		State:   p.State,
	}
}

// generateCode generates a cryptographically secure random numeric code
func generateCode(length int) (string, error) {
	code := ""
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code += fmt.Sprintf("%d", n.Int64())
	}
	return code, nil
}
