package log

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldError          = "error"
	FieldOperation      = "operation"
	FieldDuration       = "duration_ms"
	FieldBatchID        = "batch_id"
	FieldSource         = "source"
	FieldLine           = "line"
	FieldIdentity       = "identity"
	FieldMonth          = "month"
	FieldCategory       = "category"
	FieldAccount        = "account"
	FieldAccepted       = "accepted"
	FieldDuplicates     = "duplicates"
	FieldRejected       = "rejected"
	FieldFailed         = "failed"
	FieldScopes         = "scopes"
	FieldClassification = "classification"
	FieldRecommendation = "recommendation"
	FieldSimilarity     = "similarity"
	FieldSession        = "session"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentIngest    = "ingest"
	ComponentAggregate = "aggregate"
	ComponentBalance   = "balance"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentPending   = "pending"
	ComponentBackend   = "backend"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpIngest    = "ingest"
	OpEdit      = "edit"
	OpRecompute = "recompute"
	OpReconcile = "reconcile"
	OpClassify  = "classify"
	OpImport    = "import"
	OpPublish   = "publish"
	OpMirror    = "mirror"
	OpSweep     = "sweep"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
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

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithBatch adds the batch identifier and source tag
func (f LogFields) WithBatch(batchID, source string) LogFields {
	f[FieldBatchID] = batchID
	f[FieldSource] = source
	return f
}

// WithScope adds month and category fields
func (f LogFields) WithScope(month, category string) LogFields {
	f[FieldMonth] = month
	if category != "" {
		f[FieldCategory] = category
	}
	return f
}

// WithIngestCounts adds the per-batch outcome counters
func (f LogFields) WithIngestCounts(accepted, duplicates, rejected, failed, scopes int) LogFields {
	f[FieldAccepted] = accepted
	f[FieldDuplicates] = duplicates
	f[FieldRejected] = rejected
	f[FieldFailed] = failed
	f[FieldScopes] = scopes
	return f
}

// WithConflict adds balance classification fields
func (f LogFields) WithConflict(account, classification, recommendation, similarity string) LogFields {
	f[FieldAccount] = account
	f[FieldClassification] = classification
	f[FieldRecommendation] = recommendation
	f[FieldSimilarity] = similarity
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
