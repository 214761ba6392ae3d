package providers

import "time"

// Failed builds an unsuccessful LookupResult with an explicit category.
func Failed(j Jurisdiction, licenseNumber string, category ErrorCategory, message string) *LookupResult {
	return &LookupResult{
		Success:       false,
		Jurisdiction:  j,
		LicenseNumber: licenseNumber,
		Error:         message,
		Category:      category,
		CheckedAt:     time.Now().UTC(),
	}
}

// FailedFromError converts a registry call error into an unsuccessful LookupResult.
func FailedFromError(j Jurisdiction, licenseNumber string, err error) *LookupResult {
	return Failed(j, licenseNumber, GetCategory(err), FailureMessage(err))
}

// Outcome labels a result for metrics: "success" or its error category.
func Outcome(r *LookupResult) string {
	if r.Success {
		return "success"
	}
	if r.Category == "" {
		return string(ErrorInternal)
	}
	return string(r.Category)
}
