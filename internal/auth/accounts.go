package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/notify"
)

// TokenTypeBearer is the token_type of every issued session.
const TokenTypeBearer = "Bearer"

// Notifier accepts outbound notifications without blocking.
type Notifier interface {
	Enqueue(msg notify.Message) bool
}

// AccountsDeps holds the collaborators of the account flows.
type AccountsDeps struct {
	Users     UserRepository
	Roles     RoleRepository
	Codec     *Codec
	Refresh   *RefreshTokens
	Ephemeral *EphemeralTokens
	Notifier  Notifier     // optional
	Activity  ActivitySink // optional
	Logger    *slog.Logger // optional

	// RotateRefresh replaces the refresh token on every refresh.
	RotateRefresh bool
}

// Accounts implements registration, login, confirmation, password recovery
// and token refresh on top of the directory and token managers.
type Accounts struct {
	users         UserRepository
	roles         RoleRepository
	codec         *Codec
	refresh       *RefreshTokens
	ephemeral     *EphemeralTokens
	notifier      Notifier
	activity      ActivitySink
	logger        *slog.Logger
	rotateRefresh bool
	now           func() time.Time
}

// NewAccounts creates the account flows.
func NewAccounts(deps AccountsDeps) *Accounts {
	a := &Accounts{
		users:         deps.Users,
		roles:         deps.Roles,
		codec:         deps.Codec,
		refresh:       deps.Refresh,
		ephemeral:     deps.Ephemeral,
		notifier:      deps.Notifier,
		activity:      deps.Activity,
		logger:        deps.Logger,
		rotateRefresh: deps.RotateRefresh,
		now:           time.Now,
	}
	if a.activity == nil {
		a.activity = noopActivitySink{}
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

// Register creates a self-service account with the default role. The
// account starts enabled and unconfirmed, and a confirmation token is
// sent. A failure to issue or send the token does not fail registration.
func (a *Accounts) Register(ctx context.Context, reg Registration) (*User, error) {
	role, err := a.roles.GetDefault(ctx)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return nil, fmt.Errorf("no default role configured: %w", err)
		}
		return nil, err
	}

	u, err := a.createUser(ctx, reg, role, false)
	if err != nil {
		a.record(ctx, ActivityRegister, reg.Email, "", err)
		return nil, err
	}

	a.sendToken(ctx, u, PurposeConfirmAccount, notify.KindConfirmationRequested)
	a.record(ctx, ActivityRegister, u.Email, u.ID, nil)
	return u, nil
}

// CreateAdmin creates a confirmed administrator account. No notification
// is sent.
func (a *Accounts) CreateAdmin(ctx context.Context, reg Registration) (*User, error) {
	role, err := a.roles.GetByName(ctx, RoleAdmin)
	if err != nil {
		return nil, err
	}

	u, err := a.createUser(ctx, reg, role, true)
	a.record(ctx, ActivityCreateAdmin, reg.Email, userID(u), err)
	return u, err
}

// Login checks the password and account state and issues a session.
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
func (a *Accounts) Login(ctx context.Context, email, password string) (*Session, error) {
	s, u, err := a.login(ctx, email, password)
	a.record(ctx, ActivityLogin, NormalizeEmail(email), userID(u), err)
	return s, err
}

func (a *Accounts) login(ctx context.Context, email, password string) (*Session, *User, error) {
	u, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			equalizePasswordTiming(password)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	ok, err := VerifyPassword(password, u.PasswordHash)
	if err != nil {
		return nil, u, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, u, ErrInvalidCredentials
	}

	if err := checkAccountState(u); err != nil {
		return nil, u, err
	}

	s, err := a.newSession(ctx, u)
	return s, u, err
}

// ConfirmAccount redeems a confirmation token and marks its owner confirmed.
func (a *Accounts) ConfirmAccount(ctx context.Context, token string) error {
	var owner string
	err := a.ephemeral.Consume(ctx, token, PurposeConfirmAccount, func(ctx context.Context, uid string) error {
		owner = uid
		return a.users.SetConfirmed(ctx, uid, true)
	})
	a.record(ctx, ActivityConfirm, "", owner, err)
	return err
}

// ForgotPassword sends a password reset token to the account at email.
// Unknown addresses return ErrUserNotFound.
func (a *Accounts) ForgotPassword(ctx context.Context, email string) error {
	u, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		a.record(ctx, ActivityForgotPassword, NormalizeEmail(email), "", err)
		return err
	}

	raw, err := a.ephemeral.Generate(ctx, u.ID, PurposeResetPassword)
	if err != nil {
		a.record(ctx, ActivityForgotPassword, u.Email, u.ID, err)
		return err
	}
	a.enqueue(u, raw, notify.KindPasswordResetRequested)
	a.record(ctx, ActivityForgotPassword, u.Email, u.ID, nil)
	return nil
}

// ResetPassword redeems a reset token, stores the new password and revokes
// every refresh token of the owner.
func (a *Accounts) ResetPassword(ctx context.Context, token, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	var owner string
	err = a.ephemeral.Consume(ctx, token, PurposeResetPassword, func(ctx context.Context, uid string) error {
		owner = uid
		if err := a.users.UpdatePassword(ctx, uid, hash); err != nil {
			return err
		}
		revoked, err := a.refresh.RevokeAll(ctx, uid)
		if err != nil {
			return fmt.Errorf("revoking refresh tokens: %w", err)
		}
		a.logger.Info("password reset", "user_id", uid, "refresh_tokens_revoked", revoked)
		return nil
	})
	a.record(ctx, ActivityResetPassword, "", owner, err)
	return err
}

// ChangePassword replaces the password of userID after checking the
// current one.
func (a *Accounts) ChangePassword(ctx context.Context, id, current, next string) error {
	err := a.changePassword(ctx, id, current, next)
	a.record(ctx, ActivityChangePassword, "", id, err)
	return err
}

func (a *Accounts) changePassword(ctx context.Context, id, current, next string) error {
	if err := validatePassword(next); err != nil {
		return err
	}

	u, err := a.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	ok, err := VerifyPassword(current, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return ErrPasswordMismatch
	}

	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return a.users.UpdatePassword(ctx, id, hash)
}

// ValidateToken verifies a bearer credential and returns its subject.
func (a *Accounts) ValidateToken(token string) (string, error) {
	return a.codec.Subject(token)
}

// Refresh exchanges a refresh token for a new credential. The refresh
// value is returned unchanged unless rotation is enabled.
func (a *Accounts) Refresh(ctx context.Context, value string) (*Session, error) {
	s, u, err := a.refreshSession(ctx, value)
	a.record(ctx, ActivityRefresh, userEmail(u), userID(u), err)
	return s, err
}

func (a *Accounts) refreshSession(ctx context.Context, value string) (*Session, *User, error) {
	token, err := a.refresh.FindByValue(ctx, value)
	if err != nil {
		return nil, nil, err
	}
	if a.refresh.IsExpired(token) {
		return nil, nil, ErrRefreshTokenExpired
	}

	u, err := a.users.GetByID(ctx, token.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !u.Enabled {
		return nil, u, ErrAccountDisabled
	}

	refreshValue := value
	if a.rotateRefresh {
		if refreshValue, err = a.refresh.Rotate(ctx, token); err != nil {
			return nil, u, err
		}
	}

	cred, err := a.codec.Issue(u.Email)
	if err != nil {
		return nil, u, err
	}
	return newSession(cred, refreshValue), u, nil
}

// Logout revokes one refresh token. Credentials already issued from it stay
// valid until they expire.
func (a *Accounts) Logout(ctx context.Context, value string) error {
	token, err := a.refresh.Revoke(ctx, value)
	var uid string
	if token != nil {
		uid = token.UserID
	}
	a.record(ctx, ActivityLogout, "", uid, err)
	return err
}

// Sessions lists the live refresh tokens of a user.
func (a *Accounts) Sessions(ctx context.Context, userID string) ([]RefreshToken, error) {
	if _, err := a.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return a.refresh.Sessions(ctx, userID)
}

// GetUser finds a user by ID.
func (a *Accounts) GetUser(ctx context.Context, id string) (*User, error) {
	return a.users.GetByID(ctx, id)
}

// ListUsers returns every user.
func (a *Accounts) ListUsers(ctx context.Context) ([]User, error) {
	return a.users.List(ctx)
}

// UpdateUser applies the non-nil fields of upd to the user on behalf of
// actor. Only a super administrator may change a role or touch another super
// administrator's account. A nil actor is the service itself.
func (a *Accounts) UpdateUser(ctx context.Context, actor *Principal, id string, upd UserUpdate) (*User, error) {
	u, err := a.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor != nil && !actor.HasRole(RoleSuperAdmin) {
		if upd.RoleName != nil || (u.Role != nil && u.Role.Name == RoleSuperAdmin) {
			return nil, ErrRoleAssignmentDenied
		}
	}

	setString(&u.FirstName, upd.FirstName)
	setString(&u.LastName, upd.LastName)
	setString(&u.Timezone, upd.Timezone)
	setString(&u.Gender, upd.Gender)
	setString(&u.Avatar, upd.Avatar)
	if upd.Enabled != nil {
		u.Enabled = *upd.Enabled
	}
	if upd.Confirmed != nil {
		u.Confirmed = *upd.Confirmed
	}
	if upd.RoleName != nil {
		role, err := a.roles.GetByName(ctx, strings.TrimSpace(*upd.RoleName))
		if err != nil {
			return nil, err
		}
		u.RoleID = role.ID
	}

	if err := a.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return a.users.GetByID(ctx, id)
}

// DeleteUser removes a user and, by cascade, its tokens and direct grants.
func (a *Accounts) DeleteUser(ctx context.Context, id string) error {
	return a.users.Delete(ctx, id)
}

func (a *Accounts) createUser(ctx context.Context, reg Registration, role *Role, confirmed bool) (*User, error) {
	reg.Email = NormalizeEmail(reg.Email)
	if reg.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if err := validatePassword(reg.Password); err != nil {
		return nil, err
	}

	exists, err := a.users.ExistsByEmail(ctx, reg.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateEmail
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &User{
		Email:        reg.Email,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Timezone:     strings.TrimSpace(reg.Timezone),
		Gender:       strings.TrimSpace(reg.Gender),
		Avatar:       strings.TrimSpace(reg.Avatar),
		PasswordHash: hash,
		RoleID:       role.ID,
		Role:         role,
		Enabled:      true,
		Confirmed:    confirmed,
	}
	if err := a.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// sendToken issues an ephemeral token and queues it for delivery. Failures
// are logged only.
func (a *Accounts) sendToken(ctx context.Context, u *User, purpose TokenPurpose, kind notify.Kind) {
	raw, err := a.ephemeral.Generate(ctx, u.ID, purpose)
	if err != nil {
		a.logger.Error("issuing account token failed",
			"user_id", u.ID,
			"purpose", purpose,
			"error", err,
		)
		return
	}
	a.enqueue(u, raw, kind)
}

func (a *Accounts) enqueue(u *User, token string, kind notify.Kind) {
	if a.notifier == nil {
		a.logger.Warn("no notifier configured, token not delivered", "user_id", u.ID, "kind", kind)
		return
	}
	a.notifier.Enqueue(notify.Message{
		Kind:      kind,
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.FullName(),
		Token:     token,
		Timestamp: a.now().UTC(),
	})
}

func (a *Accounts) newSession(ctx context.Context, u *User) (*Session, error) {
	cred, err := a.codec.Issue(u.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := a.refresh.Issue(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return newSession(cred, refresh), nil
}

func (a *Accounts) record(ctx context.Context, kind ActivityKind, email, id string, err error) {
	ev := ActivityEvent{
		Kind:       kind,
		Outcome:    OutcomeSuccess,
		UserID:     id,
		Email:      email,
		OccurredAt: a.now().UTC(),
	}
	if err != nil {
		ev.Outcome = OutcomeFailure
		ev.Reason = err.Error()
	}
	a.activity.Record(ctx, ev)
}

func newSession(cred Credential, refresh string) *Session {
	return &Session{
		AccessToken:  cred.Token,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresAt:    cred.ExpiresAt,
		Expiration:   cred.ExpiresAt.UnixMilli(),
	}
}

func checkAccountState(u *User) error {
	if !u.Enabled {
		return ErrAccountDisabled
	}
	if !u.Confirmed {
		return ErrAccountNotConfirmed
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func userID(u *User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

func userEmail(u *User) string {
	if u == nil {
		return ""
	}
	return u.Email
}
