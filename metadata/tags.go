package metadata

import (
	"fmt"
	"strings"
)

// TagKey is the struct tag key carrying metadata markers.
//
//	type OrderPlaced struct {
//		_        struct{}      `fishbus:"label=orders.placed"`
//		OrderID  string        `fishbus:"messageid"`
//		Lifetime time.Duration `fishbus:"ttl"`
//	}
const TagKey = "fishbus"

const labelPrefix = "label="

type markerKind int

const (
	markerNone markerKind = iota
	markerMessageID
	markerTimeToLive
	markerLabel
)

type marker struct {
	kind  markerKind
	label string
}

// parseMarker parses the value of a fishbus struct tag
func parseMarker(tag string) (marker, error) {
	tag = strings.TrimSpace(tag)
	switch {
	case tag == "" || tag == "-":
		return marker{kind: markerNone}, nil
	case strings.EqualFold(tag, "messageid"):
		return marker{kind: markerMessageID}, nil
	case strings.EqualFold(tag, "ttl"):
		return marker{kind: markerTimeToLive}, nil
	case strings.HasPrefix(tag, labelPrefix):
		label := strings.TrimSpace(strings.TrimPrefix(tag, labelPrefix))
		if label == "" {
			return marker{}, fmt.Errorf("label marker has an empty value")
		}
		return marker{kind: markerLabel, label: label}, nil
	default:
		return marker{}, fmt.Errorf("unknown marker %q", tag)
	}
}
