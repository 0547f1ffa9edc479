package enums

import (
	"fmt"
	"strings"
)

// Platform identifies an external social network a post can be published to.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformReddit    Platform = "reddit"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
)

var validPlatforms = []Platform{
	PlatformFacebook,
	PlatformTwitter,
	PlatformReddit,
	PlatformLinkedIn,
	PlatformInstagram,
}

// Platforms returns every supported platform in canonical order.
func Platforms() []Platform {
	out := make([]Platform, len(validPlatforms))
	copy(out, validPlatforms)
	return out
}

func (p Platform) String() string {
	return string(p)
}

// IsValid reports whether the value is a supported platform.
func (p Platform) IsValid() bool {
	for _, candidate := range validPlatforms {
		if candidate == p {
			return true
		}
	}
	return false
}

// NormalizePlatform lowercases and trims a raw platform name without validating it.
func NormalizePlatform(value string) Platform {
	return Platform(strings.ToLower(strings.TrimSpace(value)))
}

// ParsePlatform converts raw, case-insensitive input into a supported Platform.
func ParsePlatform(value string) (Platform, error) {
	normalized := NormalizePlatform(value)
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid platform %q", value)
}

// ConnectionStatus tracks whether stored platform credentials may be used.
type ConnectionStatus string

const (
	ConnectionStatusActive  ConnectionStatus = "active"
	ConnectionStatusRevoked ConnectionStatus = "revoked"
)

// IsValid reports whether the value is a known connection status.
func (c ConnectionStatus) IsValid() bool {
	return c == ConnectionStatusActive || c == ConnectionStatusRevoked
}
