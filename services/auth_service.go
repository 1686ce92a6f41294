package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"eventure/database"
	"eventure/mailer"
	"eventure/models"
)

const (
	minPasswordLength = 6
	resetPurpose      = "password_reset"
)

// AuthOptions configures password reset tokens.
type AuthOptions struct {
	// ResetSecret signs reset tokens. A random secret is generated when empty,
	// which invalidates outstanding tokens on restart.
	ResetSecret string
	ResetTTL    time.Duration
	// ResetURL is the page that receives ?token=... in the mailed link.
	ResetURL string
}

// AuthService registers users, checks credentials and resets passwords.
type AuthService struct {
	db       *sqlx.DB
	profiles *ProfileService
	mailer   mailer.Mailer
	logger   *zap.Logger

	resetSecret []byte
	resetTTL    time.Duration
	resetURL    string
}

// NewAuthService creates an AuthService.
func NewAuthService(db *sqlx.DB, profiles *ProfileService, m mailer.Mailer, opts AuthOptions, logger *zap.Logger) (*AuthService, error) {
	secret := []byte(opts.ResetSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate reset secret: %w", err)
		}
		logger.Warn("no reset secret configured, using a random one; reset links will not survive a restart")
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}

	return &AuthService{
		db:          db,
		profiles:    profiles,
		mailer:      m,
		logger:      logger,
		resetSecret: secret,
		resetTTL:    opts.ResetTTL,
		resetURL:    opts.ResetURL,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("invalid email address: %w", ErrInvalidInput)
	}
	return email, nil
}

// Register creates a user and the row for their role. Sponsors start with
// their display name as company name.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, ErrInvalidInput)
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, fmt.Errorf("display name is required: %w", ErrInvalidInput)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("role must be organizer or sponsor: %w", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	ts := now()
	user := &models.User{
		ID:           newID(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         req.Role,
		DisplayName:  displayName,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}

	err = database.WithTx(ctx, s.db, s.logger, "register user", func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO users (id, email, password_hash, role, display_name, photo_url, cover_image_url, about, created_at, updated_at)
			VALUES (:id, :email, :password_hash, :role, :display_name, :photo_url, :cover_image_url, :about, :created_at, :updated_at)`, user)
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("email %s is already registered: %w", email, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("error inserting user: %w", err)
		}

		switch user.Role {
		case models.RoleOrganizer:
			_, err = tx.ExecContext(ctx, `INSERT INTO organizers (user_id, past_events, updated_at) VALUES (?, '', ?)`, user.ID, ts)
		case models.RoleSponsor:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO sponsors (user_id, company_name, event_types_sponsored, preferred_promotion_format, updated_at)
				VALUES (?, ?, ?, ?, ?)`, user.ID, displayName, models.StringList{}, models.StringList{}, ts)
		}
		if err != nil {
			return fmt.Errorf("error inserting %s details: %w", user.Role, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Login checks credentials. Unknown emails and wrong passwords fail the same way.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("email and password are required: %w", ErrInvalidInput)
	}

	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// UserExists reports whether userID still has an account.
func (s *AuthService) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID)
	if err != nil {
		return false, fmt.Errorf("error checking user: %w", err)
	}
	return exists, nil
}

// GetCurrentUserProfile returns the signed-in user's profile.
func (s *AuthService) GetCurrentUserProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return s.profiles.GetUserProfile(ctx, userID)
}

func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}

// RequestPasswordReset mails a reset link to email when it belongs to a user.
// Unknown addresses succeed without sending anything. Delivery failures are
// logged, not returned, so the result never reveals whether email is registered.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	var user models.User
	err = s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("error getting user: %w", err)
	}

	token, err := s.resetToken(&user, now())
	if err != nil {
		return err
	}

	link := s.resetURL + "?token=" + url.QueryEscape(token)
	err = s.mailer.Send(ctx, mailer.Email{
		To:       user.Email,
		Subject:  "Reset your Eventure password",
		TextBody: fmt.Sprintf("Hi %s,\n\nUse this link to choose a new password:\n%s\n\nThe link expires in %s.", user.DisplayName, link, s.resetTTL),
		HTMLBody: fmt.Sprintf("<p>Hi %s,</p><p><a href=\"%s\">Choose a new password</a></p><p>The link expires in %s.</p>", user.DisplayName, link, s.resetTTL),
	})
	if err != nil {
		// Same answer as for an unknown address.
		s.logger.Warn("failed to send password reset email", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

func (s *AuthService) resetToken(user *models.User, issued time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     user.ID,
		"purpose": resetPurpose,
		"fp":      passwordFingerprint(user.PasswordHash),
		"iat":     issued.Unix(),
		"exp":     issued.Add(s.resetTTL).Unix(),
	})
	signed, err := token.SignedString(s.resetSecret)
	if err != nil {
		return "", fmt.Errorf("error signing reset token: %w", err)
	}
	return signed, nil
}

// ConfirmPasswordReset sets a new password using a mailed token. A token
// stops working once the password it was issued for has changed.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, tokenString, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, ErrInvalidInput)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return s.resetSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["purpose"] != resetPurpose {
		return ErrInvalidToken
	}
	userID, _ := claims["sub"].(string)
	fp, _ := claims["fp"].(string)
	if userID == "" || fp == "" {
		return ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	return database.WithTx(ctx, s.db, s.logger, "confirm password reset", func(tx *sqlx.Tx) error {
		user, err := getUser(ctx, tx, userID)
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		if err != nil {
			return err
		}
		if passwordFingerprint(user.PasswordHash) != fp {
			return ErrInvalidToken
		}

		_, err = tx.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, string(hash), now(), userID)
		if err != nil {
			return fmt.Errorf("error updating password: %w", err)
		}
		s.logger.Info("password reset", zap.String("user_id", userID))
		return nil
	})
}
