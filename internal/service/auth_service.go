package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"ecoreports/config"
	"ecoreports/internal/auth"
	"ecoreports/internal/domain"
	"ecoreports/internal/models"
	"ecoreports/internal/repository"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 8

// TokenPair is returned on every successful sign-in.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthResult struct {
	User   *models.User `json:"usuario"`
	Tokens TokenPair    `json:"tokens"`
	IsNew  bool         `json:"nuevo,omitempty"`
}

type AuthService struct {
	cfg      *config.Config
	userRepo *repository.UserRepository
	audit    *Auditor
}

func NewAuthService(cfg *config.Config, userRepo *repository.UserRepository, audit *Auditor) *AuthService {
	return &AuthService{cfg: cfg, userRepo: userRepo, audit: audit}
}

func (s *AuthService) issue(u *models.User) (TokenPair, error) {
	access, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrValidation("email inválido")
	}
	return email, nil
}

// Register creates a citizen account. Authority and admin roles are granted by admins.
func (s *AuthService) Register(ctx context.Context, email, name, password string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 120 {
		return nil, ErrValidation("el nombre debe tener entre 2 y 120 caracteres")
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return nil, ErrValidation("la contraseña debe tener al menos %d caracteres", minPasswordLen)
	}
	_, err = s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil, ErrConflict("EMAIL_EXISTS", "el email ya está registrado")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         domain.RoleCitizen,
		Level:        1,
		Active:       true,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}
	tokens, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, u.ID, "user.register", "user", u.ID, nil)
	return &AuthResult{User: u, Tokens: tokens, IsNew: true}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := ErrUnauthorized("email o contraseña incorrectos")
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, invalid
	}
	if !u.Active {
		return nil, ErrInactiveUser()
	}
	tokens, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Tokens: tokens}, nil
}

// LoginWithGoogle finds the user by Google id, links an existing account by email,
// or creates a new citizen.
func (s *AuthService) LoginWithGoogle(ctx context.Context, googleID, email, name, avatarURL string) (*AuthResult, error) {
	if googleID == "" {
		return nil, ErrUnauthorized("cuenta de Google inválida")
	}
	u, err := s.userRepo.GetByGoogleID(ctx, googleID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	isNew := false
	if u == nil {
		email, err = normalizeEmail(email)
		if err != nil {
			return nil, err
		}
		existing, err := s.userRepo.GetByEmail(ctx, email)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		gid := googleID
		if existing != nil {
			if err := s.userRepo.LinkGoogle(ctx, existing.ID, gid, avatarURL); err != nil {
				return nil, err
			}
			existing.GoogleID = &gid
			if existing.AvatarURL == "" {
				existing.AvatarURL = avatarURL
			}
			u = existing
		} else {
			if strings.TrimSpace(name) == "" {
				name = strings.Split(email, "@")[0]
			}
			u = &models.User{
				Email:     email,
				Name:      truncate(strings.TrimSpace(name), 120),
				GoogleID:  &gid,
				AvatarURL: avatarURL,
				Role:      domain.RoleCitizen,
				Level:     1,
				Active:    true,
			}
			if err := s.userRepo.Create(ctx, u); err != nil {
				return nil, err
			}
			isNew = true
			s.audit.Record(ctx, u.ID, "user.register_google", "user", u.ID, nil)
		}
	}
	if !u.Active {
		return nil, ErrInactiveUser()
	}
	tokens, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Tokens: tokens, IsNew: isNew}, nil
}

// ChangePassword requires the current password. Google-only accounts cannot use it.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return notFoundOr(err, "usuario")
	}
	if u.PasswordHash == "" {
		return ErrValidation("la cuenta usa inicio de sesión con Google")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrUnauthorized("la contraseña actual es incorrecta")
	}
	if utf8.RuneCountInString(newPassword) < minPasswordLen {
		return ErrValidation("la contraseña debe tener al menos %d caracteres", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.userRepo.SetPasswordHash(ctx, u.ID, string(hash)); err != nil {
		return err
	}
	s.audit.Record(ctx, u.ID, "user.change_password", "user", u.ID, nil)
	return nil
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := auth.ParseRefreshToken(&s.cfg.JWT, refreshToken)
	if err != nil {
		return nil, ErrUnauthorized("refresh token inválido o expirado")
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized("refresh token inválido o expirado")
		}
		return nil, err
	}
	if !u.Active {
		return nil, ErrInactiveUser()
	}
	tokens, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	return &tokens, nil
}
