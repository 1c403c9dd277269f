package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldReferer    = "referer"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldItemID     = "item_id"
	FieldItemName   = "item_name"
	FieldBudgetID   = "budget_id"
	FieldKind       = "kind"
	FieldEvent      = "event"
	FieldDeltaCents = "delta_cents"
	FieldAfterCents = "after_cents"
	FieldTotal      = "total"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentAggregate = "aggregate"
	ComponentBudget    = "budget"
	ComponentUser      = "user"
	ComponentAuth      = "auth"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentJournal   = "journal"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
)

// Operations defines standard operation names
const (
	OpCreate  = "create"
	OpRead    = "read"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpList    = "list"
	OpApply   = "apply"
	OpAudit   = "audit"
	OpPublish = "publish"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation  = "validation_error"
	ErrorTypeDatabase    = "database_error"
	ErrorTypeAuth        = "auth_error"
	ErrorTypeNotFound    = "not_found_error"
	ErrorTypeConcurrency = "concurrency_error"
	ErrorTypeConsistency = "consistency_fault"
	ErrorTypeInternal    = "internal_error"
	ErrorTypeSecurity    = "security_event"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category
func (f LogFields) WithErrorType(t string) LogFields {
	f[FieldErrorType] = t
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithItem adds budget item fields
func (f LogFields) WithItem(itemID, userID, name, kind, total string) LogFields {
	f[FieldItemID] = itemID
	f[FieldUserID] = userID
	f[FieldItemName] = name
	f[FieldKind] = kind
	f[FieldTotal] = total
	return f
}

// WithAggregate adds aggregate delta fields
func (f LogFields) WithAggregate(userID, kind string, deltaCents, afterCents int64) LogFields {
	f[FieldUserID] = userID
	f[FieldKind] = kind
	f[FieldDeltaCents] = deltaCents
	f[FieldAfterCents] = afterCents
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
