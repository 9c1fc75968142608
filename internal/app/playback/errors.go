package playback

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/groovebox/internal/app/resolver"
	"github.com/osa030/groovebox/internal/infra/store"
)

// Errors
var (
	ErrConnectionFailed   = errors.New("connection failed")
	ErrBackendStartFailed = errors.New("backend start failed")
	ErrNoTrack            = errors.New("no track playing")
	ErrNotPlaying         = errors.New("not playing")
	ErrNotPaused          = errors.New("not paused")
	ErrNotResponsive      = errors.New("backend not responsive")
	ErrRejected           = errors.New("request rejected")
)

// Failure codes reported to control surfaces.
const (
	CodeResolutionFailed       = "resolution_failed"
	CodeStreamResolutionFailed = "stream_resolution_failed"
	CodeConnectionFailed       = "connection_failed"
	CodeBackendStartFailed     = "backend_start_failed"
	CodeStoreError             = "store_error"
	CodeNotPlaying             = "not_playing"
	CodeNotPaused              = "not_paused"
	CodeNotResponsive          = "not_responsive"
	CodeInternal               = "internal"

	rejectedPrefix = "rejected:"
)

// Failure is a tagged command failure.
type Failure struct {
	Code string
	Err  error
}

func (f *Failure) Error() string {
	return f.Code + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Rejected reports whether the failure came from an admission filter,
// and returns the filter code.
func (f *Failure) Rejected() (string, bool) {
	return strings.CutPrefix(f.Code, rejectedPrefix)
}

// MessageCode returns the code used to look up a user-facing message.
// Rejections report the filter's own code.
func (f *Failure) MessageCode() string {
	if code, ok := f.Rejected(); ok {
		return code
	}
	return f.Code
}

// NewFailure classifies err into a tagged failure. Nil stays nil.
func NewFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Code: codeOf(err), Err: err}
}

func rejection(code string) *Failure {
	return &Failure{
		Code: rejectedPrefix + code,
		Err:  errors.Mark(errors.Newf("rejected by filter: %s", code), ErrRejected),
	}
}

func codeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotResponsive):
		return CodeNotResponsive
	case errors.Is(err, resolver.ErrStreamResolutionFailed):
		return CodeStreamResolutionFailed
	case errors.Is(err, resolver.ErrResolutionFailed):
		return CodeResolutionFailed
	case errors.Is(err, ErrConnectionFailed):
		return CodeConnectionFailed
	case errors.Is(err, ErrBackendStartFailed):
		return CodeBackendStartFailed
	case errors.Is(err, store.ErrStore):
		return CodeStoreError
	case errors.Is(err, ErrNotPlaying), errors.Is(err, ErrNoTrack):
		return CodeNotPlaying
	case errors.Is(err, ErrNotPaused):
		return CodeNotPaused
	default:
		return CodeInternal
	}
}
