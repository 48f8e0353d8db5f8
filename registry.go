package storkit

import (
	"strconv"
	"sync"
)

// Scheme identifies a registered driver, e.g. "memory", "fs", "s3",
// "badgerkv".
type Scheme string

// Factory builds an Accessor from a flat string option map. Drivers
// register one under their scheme; missing or malformed options must fail
// with InvalidInput, never with a partially configured accessor.
type Factory func(options map[string]string) (Accessor, error)

var (
	factories    = make(map[Scheme]Factory)
	factoryMutex sync.RWMutex
)

// Register makes a driver available under the given scheme. Typically
// called from the driver package's init. Registering the same scheme
// twice replaces the earlier factory.
func Register(scheme Scheme, factory Factory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	factories[scheme] = factory
}

// Schemes returns the registered scheme names.
func Schemes() []Scheme {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()
	out := make([]Scheme, 0, len(factories))
	for s := range factories {
		out = append(out, s)
	}
	return out
}

// Open constructs an Operator for a registered scheme from a flat option
// map, applying the given layers on top of the driver accessor.
func Open(scheme Scheme, options map[string]string, layers ...Layer) (*Operator, error) {
	factoryMutex.RLock()
	factory, exists := factories[scheme]
	factoryMutex.RUnlock()

	if !exists {
		return nil, NewError(KindUnsupported, OpOpen, "",
			"scheme "+strconv.Quote(string(scheme))+" is not registered")
	}

	accessor, err := factory(options)
	if err != nil {
		return nil, err
	}
	return New(accessor, layers...), nil
}

// RequireOption reads a mandatory key from a driver option map. Intended
// for Factory implementations.
func RequireOption(options map[string]string, key string) (string, error) {
	value, ok := options[key]
	if !ok || value == "" {
		return "", NewError(KindInvalidInput, OpOpen, "",
			"missing required option "+strconv.Quote(key))
	}
	return value, nil
}

// BoolOption reads an optional boolean key from a driver option map.
func BoolOption(options map[string]string, key string, fallback bool) (bool, error) {
	value, ok := options[key]
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, NewError(KindInvalidInput, OpOpen, "",
			"option "+strconv.Quote(key)+" must be a boolean, got "+strconv.Quote(value))
	}
	return parsed, nil
}

// IntOption reads an optional integer key from a driver option map.
func IntOption(options map[string]string, key string, fallback int64) (int64, error) {
	value, ok := options[key]
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, NewError(KindInvalidInput, OpOpen, "",
			"option "+strconv.Quote(key)+" must be an integer, got "+strconv.Quote(value))
	}
	return parsed, nil
}
