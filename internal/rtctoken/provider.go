// Package rtctoken issues signed media-room tokens for hosts and viewers.
package rtctoken

import (
	"errors"
	"fmt"

	"github.com/aura-live/backend/config"
)

// ErrConfig is returned when signing credentials are missing or malformed.
var ErrConfig = errors.New("rtctoken: signing credentials not configured")

// Role decides what a token holder may do in the room.
type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// ParseRole maps a request value to a Role. An empty value means publisher.
func ParseRole(s string) (Role, error) {
	switch s {
	case "", "host", "publisher", "speaker":
		return RolePublisher, nil
	case "audience", "subscriber", "viewer":
		return RoleSubscriber, nil
	default:
		return "", fmt.Errorf("rtctoken: unknown role %q", s)
	}
}

// Provider issues an opaque token for subject in channel, valid for ttlSeconds.
type Provider interface {
	Issue(channel, subject string, role Role, ttlSeconds int64) (string, error)
}

// New returns the provider selected by cfg.Provider. Missing credentials do not fail here;
// the returned provider reports ErrConfig on every Issue instead.
func New(cfg config.RTCConfig) (Provider, error) {
	switch cfg.Provider {
	case "zego":
		return NewZego(cfg.ZegoAppID, cfg.ZegoServerSecret), nil
	case "jwt":
		return NewJWT(cfg.JWTSecret, cfg.JWTIssuer), nil
	default:
		return nil, fmt.Errorf("rtctoken: unknown provider %q", cfg.Provider)
	}
}
