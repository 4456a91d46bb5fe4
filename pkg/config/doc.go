// Package config defines the service configuration for tribune: YAML
// structures, defaults, validation, and TRIBUNE_* environment overrides.
//
// Configuration is passed explicitly; there is no package-level singleton.
// The loading sequence is file, then defaults, then environment overrides,
// then validation.
package config
