// Package response builds the JSON the extension popup consumes.
package response

import (
	"encoding/json"
	"errors"

	"github.com/kittclouds/barswitch/pkg/pool"
	"github.com/kittclouds/barswitch/pkg/switcher"
)

// Error kinds reported to the popup.
const (
	KindValidation   = "validation"
	KindUnknown      = "unknown_collection"
	KindInconsistent = "inconsistent"
	KindUnavailable  = "unavailable"
	KindInternal     = "internal"
)

// Collections is what the popup renders: every collection and the one
// shown in the bar.
type Collections struct {
	Bars    []string `json:"bars"`
	Current string   `json:"current"`
}

// MarshalCollections encodes a registry snapshot. Bars is never null.
func MarshalCollections(s *switcher.Snapshot) ([]byte, error) {
	names := pool.GetStrings()
	defer pool.PutStrings(names)

	var current string
	if s != nil {
		*names = append(*names, s.Names...)
		current = s.Current
	}
	return json.Marshal(Collections{Bars: *names, Current: current})
}

// MarshalResult encodes the outcome of select or create as
// {"success":true} or {"success":false,"error":...,"kind":...}.
// Validation errors carry the user-facing message unchanged.
func MarshalResult(err error) ([]byte, error) {
	m := pool.GetMap()
	defer pool.PutMap(m)

	m["success"] = err == nil
	if err != nil {
		m["error"] = Message(err)
		m["kind"] = Kind(err)
	}
	return json.Marshal(m)
}

// Message returns the text to show the user for err.
func Message(err error) string {
	var verr *switcher.ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return err.Error()
}

// Kind classifies err for the popup.
func Kind(err error) string {
	switch {
	case errors.Is(err, switcher.ErrValidation):
		return KindValidation
	case errors.Is(err, switcher.ErrUnknownCollection):
		return KindUnknown
	case errors.Is(err, switcher.ErrInconsistentState):
		return KindInconsistent
	case errors.Is(err, switcher.ErrStoreUnavailable), errors.Is(err, switcher.ErrNotBootstrapped):
		return KindUnavailable
	default:
		return KindInternal
	}
}
