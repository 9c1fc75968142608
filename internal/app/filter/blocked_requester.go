package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// BlockedRequesterConfig represents the configuration for BlockedRequesterFilter.
type BlockedRequesterConfig struct {
	UserIDs []string `yaml:"user_ids" mapstructure:"user_ids"`
}

// BlockedRequesterFilter rejects requests from blocked users.
type BlockedRequesterFilter struct {
	blocked map[string]bool
}

func (f *BlockedRequesterFilter) Name() string {
	return "blocked_requester_filter"
}

func (f *BlockedRequesterFilter) Description() string {
	return "Checks if the requester is blocked from queueing tracks"
}

func (f *BlockedRequesterFilter) ReturnCodes() []string {
	return []string{"blocked"}
}

func (f *BlockedRequesterFilter) ValidateConfig(settings map[string]any) error {
	var config BlockedRequesterConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	f.blocked = make(map[string]bool, len(config.UserIDs))
	for _, id := range config.UserIDs {
		f.blocked[id] = true
	}
	return nil
}

func (f *BlockedRequesterFilter) Check(ctx context.Context, req Request) Result {
	if f.blocked[req.Requester.UserID] {
		return Reject("blocked")
	}
	return Accept()
}

func init() {
	Register("blocked_requester_filter", func() Filter {
		return &BlockedRequesterFilter{}
	})
}
