package auth

import (
	"context"
	"time"
)

// ActivityKind names an account flow.
type ActivityKind string

const (
	ActivityRegister       ActivityKind = "register"
	ActivityCreateAdmin    ActivityKind = "create_admin"
	ActivityLogin          ActivityKind = "login"
	ActivityConfirm        ActivityKind = "confirm_account"
	ActivityForgotPassword ActivityKind = "forgot_password"
	ActivityResetPassword  ActivityKind = "reset_password"
	ActivityChangePassword ActivityKind = "change_password"
	ActivityRefresh        ActivityKind = "refresh"
	ActivityLogout         ActivityKind = "logout"
)

// Outcome of a flow.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ActivityEvent describes one completed account flow. Reason is set on
// failure and holds the error text.
type ActivityEvent struct {
	Kind       ActivityKind `json:"kind"`
	Outcome    string       `json:"outcome"`
	UserID     string       `json:"user_id,omitempty"`
	Email      string       `json:"email,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// ActivitySink receives account activity. Implementations must not block
// the caller for long; Record has no error return because a failed sink
// never fails the flow.
type ActivitySink interface {
	Record(ctx context.Context, ev ActivityEvent)
}

// ActivitySinkFunc adapts a function to ActivitySink.
type ActivitySinkFunc func(ctx context.Context, ev ActivityEvent)

// Record calls f.
func (f ActivitySinkFunc) Record(ctx context.Context, ev ActivityEvent) {
	f(ctx, ev)
}

// MultiActivitySink fans an event out to every sink in order. Nil entries
// are skipped.
type MultiActivitySink []ActivitySink

// Record forwards ev to each sink.
func (m MultiActivitySink) Record(ctx context.Context, ev ActivityEvent) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, ev)
		}
	}
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) {}
