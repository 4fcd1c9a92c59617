package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/notify"
)

// capturingNotifier records every queued message.
type capturingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *capturingNotifier) Enqueue(msg notify.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return true
}

func (n *capturingNotifier) last(t *testing.T) notify.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		t.Fatal("no notification queued")
	}
	return n.msgs[len(n.msgs)-1]
}

type accountsFixture struct {
	accounts *Accounts
	users    *SQLiteUserRepository
	notifier *capturingNotifier
	events   *[]ActivityEvent
	advance  func(time.Duration)
	deps     AccountsDeps
}

func newAccountsFixture(t *testing.T, rotate bool) *accountsFixture {
	t.Helper()
	db := testDB(t)
	now, advance := fixedClock(time.Now().UTC().Truncate(time.Second))

	var mu sync.Mutex
	events := &[]ActivityEvent{}
	users := NewUserRepository(db)
	notifier := &capturingNotifier{}

	deps := AccountsDeps{
		Users:     users,
		Roles:     NewRoleRepository(db),
		Codec:     NewCodec(testSecret, time.Minute).WithClock(now),
		Refresh:   NewRefreshTokens(NewTokenRepository(db), time.Hour).WithClock(now),
		Ephemeral: NewEphemeralTokens(NewEphemeralTokenRepository(db), 24*time.Hour).WithClock(now),
		Notifier:  notifier,
		Activity: ActivitySinkFunc(func(_ context.Context, ev ActivityEvent) {
			mu.Lock()
			defer mu.Unlock()
			*events = append(*events, ev)
		}),
		RotateRefresh: rotate,
	}

	return &accountsFixture{
		accounts: NewAccounts(deps),
		users:    users,
		notifier: notifier,
		events:   events,
		advance:  advance,
		deps:     deps,
	}
}

func (f *accountsFixture) register(t *testing.T, email string) *User {
	t.Helper()
	u, err := f.accounts.Register(context.Background(), Registration{
		Email:     email,
		Password:  testPassword,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Timezone:  "Europe/London",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return u
}

func TestAccounts_Register(t *testing.T) {
	f := newAccountsFixture(t, false)
	ctx := context.Background()

	u := f.register(t, " Ada@Example.com ")
	if u.Email != "ada@example.com" {
		t.Errorf("Email = %q, want normalised", u.Email)
	}
	if u.Role == nil || u.Role.Name != RoleUser {
		t.Errorf("Role = %+v, want default %s", u.Role, RoleUser)
	}
	if !u.Enabled || u.Confirmed {
		t.Errorf("Enabled = %v Confirmed = %v, want true false", u.Enabled, u.Confirmed)
	}

	msg := f.notifier.last(t)
	if msg.Kind != notify.KindConfirmationRequested || msg.UserID != u.ID || msg.Token == "" {
		t.Errorf("notification = %+v", msg)
	}
	if msg.Name != "Ada Lovelace" {
		t.Errorf("notification name = %q", msg.Name)
	}

	_, err := f.accounts.Register(ctx, Registration{Email: "ADA@example.com", Password: "other"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate Register() error = %v, want ErrDuplicateEmail", err)
	}
	if _, err := f.accounts.Register(ctx, Registration{Email: "x@example.com"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Register() without password error = %v, want ErrInvalidInput", err)
	}

	ev := (*f.events)[len(*f.events)-1]
	if ev.Kind != ActivityRegister || ev.Outcome != OutcomeFailure {
		t.Errorf("last activity = %+v, want failed register", ev)
	}
}

func TestAccounts_LoginRequiresConfirmation(t *testing.T) {
	f := newAccountsFixture(t, false)
	ctx := context.Background()
	u := f.register(t, "confirm@example.com")

	if _, err := f.accounts.Login(ctx, u.Email, testPassword); !errors.Is(err, ErrAccountNotConfirmed) {
		t.Fatalf("Login() before confirm error = %v, want ErrAccountNotConfirmed", err)
	}

	token := f.notifier.last(t).Token
	if err := f.accounts.ConfirmAccount(ctx, token); err != nil {
		t.Fatalf("ConfirmAccount() error = %v", err)
	}
	if err := f.accounts.ConfirmAccount(ctx, token); !errors.Is(err, ErrEphemeralTokenNotFound) {
		t.Errorf("second ConfirmAccount() error = %v, want ErrEphemeralTokenNotFound", err)
	}

	s, err := f.accounts.Login(ctx, "CONFIRM@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if s.TokenType != TokenTypeBearer || s.AccessToken == "" || s.RefreshToken == "" {
		t.Errorf("session = %+v", s)
	}
	if s.Expiration != s.ExpiresAt.UnixMilli() {
		t.Errorf("Expiration = %d, want %d", s.Expiration, s.ExpiresAt.UnixMilli())
	}

	sub, err := f.accounts.ValidateToken(s.AccessToken)
	if err != nil || sub != u.Email {
		t.Errorf("ValidateToken() = %q, %v; want %q", sub, err, u.Email)
	}
}

func TestAccounts_ConfirmExpired(t *testing.T) {
	f := newAccountsFixture(t, false)
	f.register(t, "late@example.com")
	token := f.notifier.last(t).Token

	f.advance(25 * time.Hour)
	if err := f.accounts.ConfirmAccount(context.Background(), token); !errors.Is(err, ErrEphemeralTokenExpired) {
		t.Errorf("ConfirmAccount() error = %v, want ErrEphemeralTokenExpired", err)
	}
}

func TestAccounts_LoginFailures(t *testing.T) {
	f := newAccountsFixture(t, false)
	ctx := context.Background()
	active := seedTestUser(t, f.users.db, "active@example.com", RoleUser)
	disabled := seedTestUser(t, f.users.db, "disabled@example.com", RoleUser)
	disabled.Enabled = false
	if err := f.users.Update(ctx, disabled); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"unknown email", "ghost@example.com", testPassword, ErrInvalidCredentials},
		{"wrong password", active.Email, "wrong", ErrInvalidCredentials},
		{"disabled", disabled.Email, testPassword, ErrAccountDisabled},
		// A wrong password on a disabled account does not reveal its state.
		{"disabled wrong password", disabled.Email, "wrong", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.accounts.Login(ctx, tt.email, tt.password); !errors.Is(err, tt.want) {
				t.Errorf("Login() error = %v, want %v", err, tt.want)
			}
		})
	}

	ev := (*f.events)[0]
	if ev.Kind != ActivityLogin || ev.Outcome != OutcomeFailure || ev.Email != "ghost@example.com" {
		t.Errorf("first activity = %+v", ev)
	}
}

func TestAccounts_PasswordReset(t *testing.T) {
	f := newAccountsFixture(t, false)
	ctx := context.Background()
	u := seedTestUser(t, f.users.db, "reset@example.com", RoleUser)

	s, err := f.accounts.Login(ctx, u.Email, testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if err := f.accounts.ForgotPassword(ctx, "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("ForgotPassword(unknown) error = %v, want ErrUserNotFound", err)
	}
	if err := f.accounts.ForgotPassword(ctx, "RESET@example.com"); err != nil {
		t.Fatalf("ForgotPassword() error = %v", err)
	}
	msg := f.notifier.last(t)
	if msg.Kind != notify.KindPasswordResetRequested {
		t.Fatalf("notification kind = %q", msg.Kind)
	}

	if err := f.accounts.ResetPassword(ctx, msg.Token, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ResetPassword() with empty password error = %v, want ErrInvalidInput", err)
	}
	if err := f.accounts.ResetPassword(ctx, msg.Token, "new-password"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if err := f.accounts.ResetPassword(ctx, msg.Token, "again"); !errors.Is(err, ErrEphemeralTokenNotFound) {
		t.Errorf("reused reset token error = %v, want ErrEphemeralTokenNotFound", err)
	}

	if _, err := f.accounts.Login(ctx, u.Email, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() with old password error = %v", err)
	}
	if _, err := f.accounts.Login(ctx, u.Email, "new-password"); err != nil {
		t.Errorf("Login() with new password error = %v", err)
	}

	// The reset revoked refresh tokens issued before it.
	if _, err := f.accounts.Refresh(ctx, s.RefreshToken); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("Refresh() with pre-reset token error = %v, want ErrRefreshTokenNotFound", err)
	}
}

func TestAccounts_ResetAfterTTL(t *testing.T) {
	f := newAccountsFixture(t, false)
	ctx := context.Background()
	u := seedTestUser(t, f.users.db, "late@example.com", RoleUser)

	if err := f.accounts.ForgotPassword(ctx, u.Email); err != nil {
		t.Fatalf("ForgotPassword() error = %v", err)
	}
	msg := f.notifier.last(t)

	f.advance(f.deps.Ephemeral.TTL() + time.Second)
	if err := f.accounts.ResetPassword(ctx, msg.Token, "new-password"); !errors.Is(err, ErrEphemeralTokenExpired) {
		t.Fatalf("ResetPassword() after TTL error = %v, want ErrEphemeralTokenExpired", err)
	}
	if err := f.accounts.ResetPassword(ctx, msg.Token, "new-password"); !errors.Is(err, ErrEphemeralTokenNotFound) {
		t.Errorf("ResetPassword() with expired token reused error = %v, want ErrEphemeralTokenNotFound", err)
	}

	if _, err := f.accounts.Login(ctx, u.Email, testPassword); err != nil {
		t.Errorf("Login() with unchanged password error = %v", err)
	}
}

func TestAccounts_ChangePassword(t *testing.T) {
	f := newAccountsFixture(t, false)
	ctx := context.Background()
	u := seedTestUser(t, f.users.db, "change@example.com", RoleUser)

	if err := f.accounts.ChangePassword(ctx, u.ID, "wrong", "next-password"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("ChangePassword() with wrong current error = %v, want ErrPasswordMismatch", err)
	}
	if err := f.accounts.ChangePassword(ctx, u.ID, testPassword, "next-password"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := f.accounts.Login(ctx, u.Email, "next-password"); err != nil {
		t.Errorf("Login() after change error = %v", err)
	}
	if err := f.accounts.ChangePassword(ctx, "usr-missing", "a", "b"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("ChangePassword(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestAccounts_Refresh(t *testing.T) {
	f := newAccountsFixture(t, false)
	ctx := context.Background()
	u := seedTestUser(t, f.users.db, "refresh@example.com", RoleUser)

	s, err := f.accounts.Login(ctx, u.Email, testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	f.advance(2 * time.Second)
	next, err := f.accounts.Refresh(ctx, s.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if next.RefreshToken != s.RefreshToken {
		t.Error("Refresh() without rotation changed the refresh token")
	}
	if next.AccessToken == s.AccessToken {
		t.Error("Refresh() returned the old credential")
	}
	claims, err := f.deps.Codec.Verify(next.AccessToken)
	if err != nil {
		t.Fatalf("Verify(refreshed) error = %v", err)
	}
	if claims.Subject != u.Email {
		t.Errorf("refreshed subject = %q, want %q", claims.Subject, u.Email)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Minute {
		t.Errorf("refreshed exp - iat = %v, want %v", got, time.Minute)
	}
	if !next.ExpiresAt.Equal(claims.ExpiresAt.Time) {
		t.Errorf("session ExpiresAt = %v, want %v", next.ExpiresAt, claims.ExpiresAt.Time)
	}

	if _, err := f.accounts.Refresh(ctx, "unknown"); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("Refresh(unknown) error = %v, want ErrRefreshTokenNotFound", err)
	}

	disabled := false
	if _, err := f.accounts.UpdateUser(ctx, nil, u.ID, UserUpdate{Enabled: &disabled}); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if _, err := f.accounts.Refresh(ctx, s.RefreshToken); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("Refresh() for disabled user error = %v, want ErrAccountDisabled", err)
	}

	f.advance(time.Hour)
	if _, err := f.accounts.Refresh(ctx, s.RefreshToken); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Errorf("Refresh() after expiry error = %v, want ErrRefreshTokenExpired", err)
	}
}

func TestAccounts_RefreshRotation(t *testing.T) {
	f := newAccountsFixture(t, true)
	ctx := context.Background()
	u := seedTestUser(t, f.users.db, "rotate@example.com", RoleUser)

	s, err := f.accounts.Login(ctx, u.Email, testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	next, err := f.accounts.Refresh(ctx, s.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if next.RefreshToken == s.RefreshToken {
		t.Error("Refresh() with rotation kept the refresh token")
	}
	if _, err := f.accounts.Refresh(ctx, s.RefreshToken); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("reuse of rotated token error = %v, want ErrRefreshTokenNotFound", err)
	}
	if _, err := f.accounts.Refresh(ctx, next.RefreshToken); err != nil {
		t.Errorf("Refresh() with rotated token error = %v", err)
	}
}

func TestAccounts_CreateAdmin(t *testing.T) {
	f := newAccountsFixture(t, false)
	ctx := context.Background()

	admin, err := f.accounts.CreateAdmin(ctx, Registration{Email: "admin@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("CreateAdmin() error = %v", err)
	}
	if admin.Role.Name != RoleAdmin || !admin.Confirmed {
		t.Errorf("admin = role %q confirmed %v", admin.Role.Name, admin.Confirmed)
	}
	if len(f.notifier.msgs) != 0 {
		t.Error("CreateAdmin() should not notify")
	}
	if _, err := f.accounts.Login(ctx, admin.Email, testPassword); err != nil {
		t.Errorf("admin Login() error = %v", err)
	}
}

func TestAccounts_UpdateUser(t *testing.T) {
	f := newAccountsFixture(t, false)
	ctx := context.Background()
	u := seedTestUser(t, f.users.db, "update@example.com", RoleUser)

	first := " Grace "
	role := RoleAdmin
	updated, err := f.accounts.UpdateUser(ctx, nil, u.ID, UserUpdate{FirstName: &first, RoleName: &role})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if updated.FirstName != "Grace" || updated.LastName != u.LastName {
		t.Errorf("names = %q %q", updated.FirstName, updated.LastName)
	}
	if updated.Role.Name != RoleAdmin {
		t.Errorf("role = %q, want %s", updated.Role.Name, RoleAdmin)
	}

	missing := "ROLE_NONE"
	if _, err := f.accounts.UpdateUser(ctx, nil, u.ID, UserUpdate{RoleName: &missing}); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("UpdateUser() unknown role error = %v, want ErrRoleNotFound", err)
	}

	if err := f.accounts.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := f.accounts.GetUser(ctx, u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser() after delete error = %v, want ErrUserNotFound", err)
	}
}

func TestAccounts_NoNotifier(t *testing.T) {
	f := newAccountsFixture(t, false)
	deps := f.deps
	deps.Notifier = nil
	deps.Activity = nil
	accounts := NewAccounts(deps)

	if _, err := accounts.Register(context.Background(), Registration{Email: "quiet@example.com", Password: testPassword}); err != nil {
		t.Errorf("Register() without notifier error = %v", err)
	}
}

func TestAccounts_UpdateUser_RoleAssignment(t *testing.T) {
	f := newAccountsFixture(t, false)
	ctx := context.Background()
	admin := NewPrincipal(seedTestUser(t, f.users.db, "admin@example.com", RoleAdmin))
	root := NewPrincipal(seedTestUser(t, f.users.db, "root@example.com", RoleSuperAdmin))
	target := seedTestUser(t, f.users.db, "member@example.com", RoleUser)

	promote := RoleSuperAdmin
	name := "Grace"
	disabled := false

	tests := []struct {
		name string
		id   string
		upd  UserUpdate
	}{
		{"promote other", target.ID, UserUpdate{RoleName: &promote}},
		{"promote self", admin.User.ID, UserUpdate{RoleName: &promote}},
		{"edit super admin", root.User.ID, UserUpdate{FirstName: &name}},
		{"disable super admin", root.User.ID, UserUpdate{Enabled: &disabled}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.accounts.UpdateUser(ctx, admin, tt.id, tt.upd); !errors.Is(err, ErrRoleAssignmentDenied) {
				t.Errorf("UpdateUser() by admin error = %v, want ErrRoleAssignmentDenied", err)
			}
		})
	}

	got, err := f.accounts.UpdateUser(ctx, admin, target.ID, UserUpdate{FirstName: &name})
	if err != nil {
		t.Fatalf("UpdateUser(name) by admin error = %v", err)
	}
	if got.FirstName != name || got.Role.Name != RoleUser {
		t.Errorf("UpdateUser(name) = %q %s", got.FirstName, got.Role.Name)
	}

	roleAdmin := RoleAdmin
	got, err = f.accounts.UpdateUser(ctx, root, target.ID, UserUpdate{RoleName: &roleAdmin})
	if err != nil {
		t.Fatalf("UpdateUser(role) by super admin error = %v", err)
	}
	if got.Role.Name != RoleAdmin {
		t.Errorf("Role = %s, want %s", got.Role.Name, RoleAdmin)
	}

	roleUser := RoleUser
	got, err = f.accounts.UpdateUser(ctx, nil, target.ID, UserUpdate{RoleName: &roleUser})
	if err != nil {
		t.Fatalf("UpdateUser(role) without actor error = %v", err)
	}
	if got.Role.Name != RoleUser {
		t.Errorf("Role = %s, want %s", got.Role.Name, RoleUser)
	}
}

func TestAccounts_Logout(t *testing.T) {
	f := newAccountsFixture(t, false)
	ctx := context.Background()
	u := seedTestUser(t, f.users.db, "logout@example.com", RoleUser)

	phone, err := f.accounts.Login(ctx, u.Email, testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	laptop, err := f.accounts.Login(ctx, u.Email, testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	sessions, err := f.accounts.Sessions(ctx, u.ID)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Sessions() = %d, want 2", len(sessions))
	}

	if err := f.accounts.Logout(ctx, phone.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := f.accounts.Refresh(ctx, phone.RefreshToken); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("Refresh() after logout error = %v, want ErrRefreshTokenNotFound", err)
	}
	if _, err := f.accounts.Refresh(ctx, laptop.RefreshToken); err != nil {
		t.Errorf("Refresh() of the other session error = %v", err)
	}
	if err := f.accounts.Logout(ctx, phone.RefreshToken); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("second Logout() error = %v, want ErrRefreshTokenNotFound", err)
	}

	ev := (*f.events)[len(*f.events)-1]
	if ev.Kind != ActivityLogout || ev.Outcome != OutcomeFailure {
		t.Errorf("last activity = %+v, want failed logout", ev)
	}

	sessions, err = f.accounts.Sessions(ctx, u.ID)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("Sessions() after logout = %d, want 1", len(sessions))
	}
	if _, err := f.accounts.Sessions(ctx, "no-such-user"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Sessions(unknown) error = %v, want ErrUserNotFound", err)
	}
}
