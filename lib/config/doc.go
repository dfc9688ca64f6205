// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for burrow nodes.
//
// Configuration is loaded from a single file specified by either the
// BURROW_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// Files are YAML. A file whose name ends in .json or .jsonc is first
// stripped of comments and trailing commas with tidwall/jsonc; the
// result is valid YAML, so both formats share one decoder.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${BURROW_STATE}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// [Config.Validate] reports every problem at once, joined with
// errors.Join, so a user fixing a config file sees the whole list.
package config
