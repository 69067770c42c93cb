package model

// Operation is a loader write mode.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpUpsert Operation = "UPSERT"
	OpDelete Operation = "DELETE"
)

// LoadResult aggregates the outcome of loading one batch of records.
type LoadResult struct {
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Created     int           `json:"created"`
	Updated     int           `json:"updated"`
	Skipped     int           `json:"skipped"`
	Errors      []RecordError `json:"errors,omitempty"`
	AffectedIDs []string      `json:"affectedIds,omitempty"`
}

// Add folds another result into this one.
func (r *LoadResult) Add(other LoadResult) {
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Created += other.Created
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Errors = append(r.Errors, other.Errors...)
	r.AffectedIDs = append(r.AffectedIDs, other.AffectedIDs...)
}

// ValidationResult is the outcome of validating one record before load.
type ValidationResult struct {
	Valid    bool
	Errors   []FieldError
	Warnings []string
}

// FieldError names the offending field alongside its message and code.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Invalid is a convenience constructor for a single-field failure.
func Invalid(field, message, code string) ValidationResult {
	return ValidationResult{Errors: []FieldError{{Field: field, Message: message, Code: code}}}
}

// Valid returns a passing validation result.
func ValidOK() ValidationResult {
	return ValidationResult{Valid: true}
}
