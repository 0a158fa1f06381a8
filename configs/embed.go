// Package configs provides the embedded configuration template for
// quarry.
//
// The template is embedded at build time with //go:embed, so it is
// available in every distribution: source builds, binary releases, and
// package-manager installs.
//
// It is used by `quarry config init` to create the user config at
// ~/.config/quarry/config.yaml. The effective configuration is built
// by internal/config.Load: hardcoded defaults, then the user config
// file, then QUARRY_* environment variables.
//
// To change the template, edit default-config.yaml and rebuild. Keep
// its values in sync with internal/config.NewConfig; the config tests
// enforce that.
package configs

import _ "embed"

// DefaultConfigTemplate is the annotated default configuration written
// by `quarry config init`.
//
//go:embed default-config.yaml
var DefaultConfigTemplate string
