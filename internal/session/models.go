package session

// Reason explains a non-valid outcome. Authentication failures and
// authorization denials are payload outcomes, never errors, so callers don't
// alert on them.
type Reason string

const (
	ReasonInvalidCredential Reason = "invalid_credential"
	ReasonBanned            Reason = "banned"
	ReasonScopeDenied       Reason = "scope_denied"
)

// Result is the validation outcome. It doubles as the RPC response body and
// the cached value, so a cache hit is byte-identical to a fresh computation.
type Result struct {
	Valid       bool              `json:"valid"`
	Reason      Reason            `json:"reason,omitempty"`
	SubjectID   string            `json:"subject_id,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	AvatarURL   string            `json:"avatar_url,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}
