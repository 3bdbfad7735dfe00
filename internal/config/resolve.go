package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces the environment variables read by Resolve.
const EnvPrefix = "LAUGHTRACKR"

// BaseURLSource names which option produced the resolved base URL.
type BaseURLSource string

const (
	SourceOverride BaseURLSource = "override"
	SourcePageHost BaseURLSource = "page-host"
	SourceDefault  BaseURLSource = "default"
)

// BaseURLOptions lists the inputs of base URL resolution in priority order.
type BaseURLOptions struct {
	// Override wins when non-empty (flag value or persisted setting).
	Override string
	// PageURL is the address the presentation layer was served from.
	PageURL string
	// AlternatePort replaces the page port when deriving from PageURL.
	AlternatePort int
	// Default is used when nothing else is configured.
	Default string
}

// ResolveBaseURL picks the analysis API base URL: explicit override, else the
// page host with the alternate port, else the hardcoded default.
func ResolveBaseURL(opts BaseURLOptions) (string, BaseURLSource, error) {
	if override := strings.TrimSpace(opts.Override); override != "" {
		u, err := url.Parse(override)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", "", fmt.Errorf("invalid api base %q", override)
		}
		return strings.TrimRight(override, "/"), SourceOverride, nil
	}

	if page := strings.TrimSpace(opts.PageURL); page != "" {
		if !strings.Contains(page, "://") {
			page = "http://" + page
		}
		u, err := url.Parse(page)
		if err == nil && u.Hostname() != "" {
			port := opts.AlternatePort
			if port <= 0 {
				port = AlternatePort
			}
			scheme := u.Scheme
			if scheme == "" {
				scheme = "http"
			}
			return fmt.Sprintf("%s://%s:%d", scheme, u.Hostname(), port), SourcePageHost, nil
		}
	}

	def := strings.TrimSpace(opts.Default)
	if def == "" {
		def = DefaultBaseURL
	}
	return strings.TrimRight(def, "/"), SourceDefault, nil
}

// Resolve builds BaseURLOptions from an explicit flag, the environment
// (LAUGHTRACKR_API_BASE, LAUGHTRACKR_HOST) and the persisted settings, then
// resolves them. The flag beats the environment, which beats the settings file.
func Resolve(v *viper.Viper, flagOverride, settingsOverride string) (string, BaseURLSource, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	_ = v.BindEnv("api_base")
	_ = v.BindEnv("host")

	override := strings.TrimSpace(flagOverride)
	if override == "" {
		override = strings.TrimSpace(v.GetString("api_base"))
	}
	if override == "" {
		override = settingsOverride
	}

	return ResolveBaseURL(BaseURLOptions{
		Override:      override,
		PageURL:       v.GetString("host"),
		AlternatePort: AlternatePort,
		Default:       DefaultBaseURL,
	})
}
