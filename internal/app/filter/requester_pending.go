package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// RequesterPendingConfig represents the configuration for RequesterPendingFilter.
type RequesterPendingConfig struct {
	MaxPending int      `yaml:"max_pending" mapstructure:"max_pending" default:"3" validate:"gte=1"`
	ExemptIDs  []string `yaml:"exempt_user_ids" mapstructure:"exempt_user_ids"`
}

// RequesterPendingFilter limits how many tracks one requester may have waiting.
type RequesterPendingFilter struct {
	config *RequesterPendingConfig
	exempt map[string]bool
}

func (f *RequesterPendingFilter) Name() string {
	return "requester_pending_filter"
}

func (f *RequesterPendingFilter) Description() string {
	return "Checks if the requester already has too many tracks waiting to be played"
}

func (f *RequesterPendingFilter) ReturnCodes() []string {
	return []string{"user_pending"}
}

func (f *RequesterPendingFilter) ValidateConfig(settings map[string]any) error {
	var config RequesterPendingConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	f.config = &config
	f.exempt = make(map[string]bool, len(config.ExemptIDs))
	for _, id := range config.ExemptIDs {
		f.exempt[id] = true
	}
	return nil
}

func (f *RequesterPendingFilter) Check(ctx context.Context, req Request) Result {
	if f.config == nil || req.Requester.UserID == "" || f.exempt[req.Requester.UserID] {
		return Accept()
	}

	pending := 0
	for _, e := range req.Queued {
		if e.Requester.UserID == req.Requester.UserID {
			pending++
		}
	}
	if pending >= f.config.MaxPending {
		return Reject("user_pending")
	}
	return Accept()
}

func init() {
	Register("requester_pending_filter", func() Filter {
		return &RequesterPendingFilter{}
	})
}
