package apperror

// Kind classifies an AppError so callers can branch on the failure category
// without depending on the exact message.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindAuthorization      Kind = "authorization"
	KindConflict           Kind = "conflict"
	KindInvalidState       Kind = "invalid_state"
	KindCancellationWindow Kind = "cancellation_window"
	KindSignature          Kind = "signature_verification"
	KindRateLimited        Kind = "rate_limited"
	KindGateway            Kind = "gateway"
	KindInternal           Kind = "internal"
)

// AppError is a custom error type that includes an HTTP status code, a kind and optional details.
type AppError struct {
	Code    int            // HTTP Status Code (e.g., 400, 404)
	Kind    Kind           // Failure category exposed to clients
	Message string         // User-facing error message
	Details map[string]any // Actionable data (e.g. the conflicting date)
	Err     error          // The underlying error, if any (not exposed to user)

	base *AppError // sentinel this error was derived from
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel e was derived from, or an
// AppError with the same kind and message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t == e.base {
		return true
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func (e *AppError) derive() *AppError {
	cp := *e
	if cp.base == nil {
		cp.base = e
	}
	return &cp
}

// WithDetails returns a copy of e carrying the given details.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := e.derive()
	cp.Details = details
	return cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	cp := e.derive()
	cp.Message = message
	return cp
}

// WithCause returns a copy of e wrapping err.
func (e *AppError) WithCause(err error) *AppError {
	cp := e.derive()
	cp.Err = err
	return cp
}

// New creates a new AppError with a status code, kind and message.
func New(code int, kind Kind, message string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
	}
}
