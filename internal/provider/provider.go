// Package provider defines the narrow contract the sync engine depends on
// for talking to the external game platform. Each fetch is one logical,
// fallible, rate-limited call.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LibraryGame is one owned game as reported by the provider.
type LibraryGame struct {
	AppID           int64  `json:"appid"`
	Name            string `json:"name"`
	PlaytimeForever int64  `json:"playtime_forever"` // minutes
	RtimeLastPlayed *int64 `json:"rtime_last_played"`
	ImgIconURL      string `json:"img_icon_url"`
}

// SchemaEntry is one achievement definition, in declaration order.
type SchemaEntry struct {
	APIName     string  `json:"name"`
	DisplayName string  `json:"displayName"`
	Description *string `json:"description"`
	Icon        string  `json:"icon"`
	IconGray    string  `json:"icongray"`
}

// Unlock is one achievement's per-user state. UnlockTime is nil when the
// provider reports no usable timestamp.
type Unlock struct {
	APIName    string
	Achieved   bool
	UnlockTime *time.Time
}

// Client performs one logical fetch per method. Implementations must honor
// the context deadline; the engine gates every call through the shared rate
// limiter before invoking it.
type Client interface {
	FetchLibrary(ctx context.Context, steamID string) ([]LibraryGame, error)
	FetchSchema(ctx context.Context, appID int64) ([]SchemaEntry, error)
	FetchUnlocks(ctx context.Context, steamID string, appID int64) ([]Unlock, error)
}

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindRateLimited
	KindNotFound
	KindUnauthorized
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindMalformed:
		return "malformed"
	default:
		return "transient"
	}
}

// Error wraps a failed provider call with its classification.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification, defaulting to transient for errors
// that did not come from a provider call (e.g. plain network failures).
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// Retryable reports whether the engine should retry the call. Auth and
// not-found rejections are final; everything else may be transient.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindUnauthorized, KindMalformed:
		return false
	default:
		return true
	}
}
