// Package config defines connection settings used by the relay binaries and
// provides helpers to load, validate and save them in YAML format.
//
// The Config type holds the relay address plus device reconnection and
// relay rate-limiting tunables; Validate applies defaults for anything omitted.
package config
