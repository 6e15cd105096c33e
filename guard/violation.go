package guard

// Code identifies which policy rejected a request.
type Code string

const (
	CodeProductionDisabled Code = "production_disabled"
	CodeAdminDisabled      Code = "admin_disabled"
	CodeCredentialRequired Code = "credential_required"
	CodePayloadTooLarge    Code = "payload_too_large"
	CodeTooManyItems       Code = "too_many_items"
	CodeRateLimited        Code = "rate_limited"
)

// Violation is returned when a policy rejects a request. Message is written
// for the person driving the explorer and always names what to change.
// RetryAfter is set only for CodeRateLimited.
type Violation struct {
	Code       Code
	Message    string
	RetryAfter int // seconds until a retry can succeed
}

func (v *Violation) Error() string {
	return v.Message
}
