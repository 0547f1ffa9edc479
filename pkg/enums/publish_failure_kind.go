package enums

// FailureKind classifies why a single platform publish did not succeed.
type FailureKind string

const (
	FailureNotConnected        FailureKind = "not_connected"
	FailureAuthExpired         FailureKind = "auth_expired"
	FailureUnsupportedPlatform FailureKind = "unsupported_platform"
	FailureUnsupportedContent  FailureKind = "unsupported_content"
	FailureInvalidContent      FailureKind = "invalid_content"
	FailurePermissionDenied    FailureKind = "permission_denied"
	FailureTransport           FailureKind = "transport_failure"
	FailureInternal            FailureKind = "internal"
)

// Credential reports whether the failure stems from missing or rejected credentials.
func (k FailureKind) Credential() bool {
	return k == FailureNotConnected || k == FailureAuthExpired
}

func (k FailureKind) String() string {
	return string(k)
}
