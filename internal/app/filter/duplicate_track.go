package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/groovebox/internal/domain/track"
)

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),              // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),                 // "(Radio Edit)"
		regexp.MustCompile(`\s*[\(\[]official.*?[\)\]]`),     // "(Official Video)"
		regexp.MustCompile(`\s*[\(\[](hd|hq|lyrics?)[\)\]]`), // "[HD]"
		regexp.MustCompile(`\s*-?\s*live`),                   // "- Live"
		regexp.MustCompile(`\s*\(live\)`),                    // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),           // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`),       // "- Single Version"
	}
	whitespace = regexp.MustCompile(`\s+`)
)

// DuplicateTrackFilter checks for duplicate tracks in the queue.
// Detects:
// - Same canonical URL
// - Remasters (normalized title + same artist)
// Excludes:
// - Cover songs (same title but different artist)
type DuplicateTrackFilter struct{}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already playing or queued, including remasters. Covers by other artists are allowed"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is a duplicate of the current or a queued entry.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request) Result {
	if req.Current != nil && isDuplicate(req.Current.Track, req.Track) {
		return Reject("duplicate_track")
	}
	for _, queued := range req.Queued {
		if isDuplicate(queued.Track, req.Track) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

func isDuplicate(existing, requested track.Track) bool {
	if existing.CanonicalURL != "" && existing.CanonicalURL == requested.CanonicalURL {
		return true
	}
	return isRemaster(existing, requested)
}

// isRemaster checks if two tracks are the same song (remaster/different version).
// Returns true if:
// - Normalized titles match
// - Main artist is the same
func isRemaster(track1, track2 track.Track) bool {
	if normalizeTitle(track1.Title) != normalizeTitle(track2.Title) {
		return false
	}
	// Same normalized title by a different artist is a cover
	return isSameArtist(track1, track2)
}

// normalizeTitle removes remaster information and version details.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = whitespace.ReplaceAllString(normalized, " ")
	normalized = strings.TrimRight(normalized, " -")

	return normalized
}

// isSameArtist checks if two tracks have the same main artist.
func isSameArtist(track1, track2 track.Track) bool {
	if len(track1.Artists) == 0 || len(track2.Artists) == 0 {
		return false
	}
	return strings.EqualFold(track1.Artists[0], track2.Artists[0])
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return NewDuplicateTrackFilter()
	})
}
