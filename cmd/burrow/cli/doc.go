// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework behind the burrow binary.
//
// A [Command] is a node in a tree: commands with Subcommands dispatch
// on their first positional argument, leaf commands parse their flags
// and call Run. Flags are declared as tagged struct fields and bound to
// a [pflag.FlagSet] by [BindFlags]; every command embeds [Common] for
// the --config and --verbose flags. Run receives a context cancelled on
// SIGINT/SIGTERM and a logger built by [NewCommandLogger].
//
// Errors returned from Run may be categorized with [Validation],
// [NotFound], [Transient] or [Internal]; the category selects the
// process exit code.
package cli
