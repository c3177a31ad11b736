package contracts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAmbiguousMetadata matches every AmbiguousMetadataError via errors.Is
	ErrAmbiguousMetadata = errors.New("fishbus: ambiguous message metadata")

	// ErrNilPayload is returned when metadata is requested for a nil payload
	ErrNilPayload = errors.New("fishbus: payload cannot be nil")
)

// Marker names used in AmbiguousMetadataError
const (
	MarkerMessageID  = "messageid"
	MarkerLabel      = "label"
	MarkerTimeToLive = "ttl"
)

// AmbiguousMetadataError is raised when a payload type declares the same
// metadata marker more than once. It signals a broken payload definition.
type AmbiguousMetadataError struct {
	Type   string   // Fully-qualified payload type name
	Marker string   // Marker declared more than once
	Fields []string // Declaring fields, in declaration order
}

func (e *AmbiguousMetadataError) Error() string {
	return fmt.Sprintf("fishbus: type %s declares %d %q markers (%s), at most one is allowed",
		e.Type, len(e.Fields), e.Marker, strings.Join(e.Fields, ", "))
}

// Is reports whether target is ErrAmbiguousMetadata
func (e *AmbiguousMetadataError) Is(target error) bool {
	return target == ErrAmbiguousMetadata
}
