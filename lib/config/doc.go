// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the muxwire
// server and attach client.
//
// Configuration is loaded from a single file specified by either the
// MUXWIRE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). [Resolve] picks between the two and falls back to
// [Default] when neither is given.
//
// The configuration file supports environment-specific sections
// (development, production) that override base values when
// [Config].Environment matches. Production logs at warn unless its
// section says otherwise.
//
// Variable expansion is performed on the socket path and default
// command after loading: ${VAR} and ${VAR:-default} patterns are
// expanded from the environment. No other environment variables
// override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Server, Control, Log
//   - [Default] -- returns a Config with development defaults
//   - [Load], [LoadFile] and [Resolve] -- the entry points for loading
//
// This package depends on no other muxwire packages.
package config
