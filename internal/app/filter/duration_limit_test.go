package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/groovebox/internal/domain/track"
)

func TestDurationLimitFilter_Check(t *testing.T) {
	tests := []struct {
		name          string
		minMinutes    float64
		maxMinutes    float64
		trackDuration time.Duration
		shouldReject  bool
		description   string
	}{
		{
			name:          "Within limits",
			minMinutes:    2.0,
			maxMinutes:    5.0,
			trackDuration: 3 * time.Minute,
			shouldReject:  false,
			description:   "Should accept track within min/max limits",
		},
		{
			name:          "Too short",
			minMinutes:    3.0,
			maxMinutes:    0,
			trackDuration: 2 * time.Minute,
			shouldReject:  true,
			description:   "Should reject track shorter than min",
		},
		{
			name:          "Too long",
			minMinutes:    1.0,
			maxMinutes:    5.0,
			trackDuration: 6 * time.Minute,
			shouldReject:  true,
			description:   "Should reject track longer than max",
		},
		{
			name:          "Exact min",
			minMinutes:    3.0,
			maxMinutes:    0,
			trackDuration: 3 * time.Minute,
			shouldReject:  false,
			description:   "Should accept track exactly at min",
		},
		{
			name:          "Exact max",
			minMinutes:    1.0,
			maxMinutes:    5.0,
			trackDuration: 5 * time.Minute,
			shouldReject:  false,
			description:   "Should accept track exactly at max",
		},
		{
			name:          "Unknown duration",
			minMinutes:    1.0,
			maxMinutes:    5.0,
			trackDuration: 0,
			shouldReject:  false,
			description:   "Should accept live streams with unknown duration",
		},
		{
			name:          "No upper limit",
			minMinutes:    0,
			maxMinutes:    0,
			trackDuration: 3 * time.Hour,
			shouldReject:  false,
			description:   "Should accept long mixes when max is zero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDurationLimitFilter()
			// Manually configuring for test by setting config directly
			f.config = &DurationLimitConfig{
				MinMinutes: tt.minMinutes,
				MaxMinutes: tt.maxMinutes,
			}

			result := f.Check(context.Background(), Request{
				Track: track.Track{Title: "t", Duration: tt.trackDuration},
			})

			if tt.shouldReject {
				assert.False(t, result.Accepted, tt.description)
				assert.Equal(t, "duration_limit_exceeded", result.Code)
			} else {
				assert.True(t, result.Accepted, tt.description)
			}
		})
	}
}

func TestDurationLimitFilter_Unconfigured(t *testing.T) {
	f := NewDurationLimitFilter()
	result := f.Check(context.Background(), Request{Track: track.Track{Duration: 10 * time.Hour}})
	assert.True(t, result.Accepted, "Should accept everything before ValidateConfig")
}

func TestDurationLimitFilter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
	}{
		{
			name: "Valid config",
			settings: map[string]any{
				"min_minutes": 2.5,
				"max_minutes": 5.0,
			},
			wantErr: false,
		},
		{
			name: "Valid integers",
			settings: map[string]any{
				"min_minutes": 2,
				"max_minutes": 5,
			},
			wantErr: false,
		},
		{
			name: "Invalid min > max",
			settings: map[string]any{
				"min_minutes": 10.0,
				"max_minutes": 5.0,
			},
			wantErr: true,
		},
		{
			name: "Invalid negative min",
			settings: map[string]any{
				"min_minutes": -1.0,
			},
			wantErr: true,
		},
		{
			name: "Fractional min",
			settings: map[string]any{
				"min_minutes": 0.5,
			},
			wantErr: false,
		},
		{
			name: "Zero max (allowed, means no limit)",
			settings: map[string]any{
				"max_minutes": 0.0,
			},
			wantErr: false,
		},
		{
			name: "Invalid negative max",
			settings: map[string]any{
				"max_minutes": -1.0,
			},
			wantErr: true,
		},
		{
			name:     "Empty settings",
			settings: map[string]any{},
			wantErr:  false,
		},
		{
			name:     "Nil settings",
			settings: nil,
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDurationLimitFilter()
			err := f.ValidateConfig(tt.settings)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
