package metadata

import (
	"time"
)

// Global registry used by the package-level helpers
var (
	defaultRegistry  = NewRegistry()
	defaultExtractor = NewExtractor(defaultRegistry)
)

// Register registers a payload type with the global registry
func Register(sample interface{}, options ...RegisterOption) error {
	return defaultRegistry.Register(sample, options...)
}

// DefaultRegistry returns the global registry
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// DefaultExtractor returns the extractor backed by the global registry
func DefaultExtractor() *Extractor {
	return defaultExtractor
}

// GetIdentity reads the identity field using the global registry
func GetIdentity(payload interface{}) (*string, error) {
	return defaultExtractor.GetIdentity(payload)
}

// GetLabel reads the label using the global registry
func GetLabel(payload interface{}) (string, error) {
	return defaultExtractor.GetLabel(payload)
}

// GetTimeToLive reads the time-to-live field using the global registry
func GetTimeToLive(payload interface{}) (*time.Duration, error) {
	return defaultExtractor.GetTimeToLive(payload)
}
