package publishing

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/postpilot/postpilot-backend/pkg/config"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	"github.com/postpilot/postpilot-backend/pkg/logger"
)

type platformProfile struct {
	capabilities     CapabilitySet
	maxCaption       int
	requireImage     bool
	requireSubreddit bool
}

var platformProfiles = map[enums.Platform]platformProfile{
	enums.PlatformFacebook:  {capabilities: CapabilityText | CapabilityImage | CapabilitySchedule, maxCaption: 63206},
	enums.PlatformTwitter:   {capabilities: CapabilityText | CapabilityImage, maxCaption: 280},
	enums.PlatformReddit:    {capabilities: CapabilityText | CapabilityImage, maxCaption: 40000, requireSubreddit: true},
	enums.PlatformLinkedIn:  {capabilities: CapabilityText | CapabilityImage, maxCaption: 3000},
	enums.PlatformInstagram: {capabilities: CapabilityText | CapabilityImage | CapabilitySchedule, maxCaption: 2200, requireImage: true},
}

// ProfileConfig returns the gateway settings for platform at baseURL, with
// transport tuning taken from cfg.
func ProfileConfig(platform enums.Platform, baseURL string, cfg config.PublishersConfig) (HTTPPublisherConfig, error) {
	profile, ok := platformProfiles[enums.NormalizePlatform(string(platform))]
	if !ok {
		return HTTPPublisherConfig{}, fmt.Errorf("no profile for platform %q", platform)
	}
	return HTTPPublisherConfig{
		Platform:         platform,
		BaseURL:          baseURL,
		Capabilities:     profile.capabilities,
		MaxCaption:       profile.maxCaption,
		RequireImage:     profile.requireImage,
		RequireSubreddit: profile.requireSubreddit,
		Timeout:          cfg.Timeout,
		MaxRetries:       cfg.MaxRetries,
		BaseDelay:        cfg.BaseDelay,
		MaxDelay:         cfg.MaxDelay,
		RatePerSec:       cfg.RatePerSec,
		Burst:            cfg.Burst,
	}, nil
}

// NewHTTPRegistry registers an HTTPPublisher for every platform with a
// configured endpoint. Platforms without one resolve as unsupported.
func NewHTTPRegistry(cfg config.PublishersConfig, creds CredentialSource, client *http.Client, logg *logger.Logger) (*Registry, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	endpoints := cfg.Endpoints()
	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pubCfg, err := ProfileConfig(enums.Platform(name), endpoints[name], cfg)
		if err != nil {
			return nil, err
		}
		publisher, err := NewHTTPPublisher(pubCfg, creds, client, logg)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(publisher); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
