// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/archintel/internal/errors"
	"github.com/kraklabs/archintel/pkg/answer"
	"github.com/kraklabs/archintel/pkg/assemble"
)

// runDoc executes the 'doc' CLI command: generate documentation for a file
// or entity, or reconstruct the design rationale behind it.
//
// Flags:
//   - --rationale: Explain why the target exists instead of documenting it
//   - --generator: Override the configured backend (openai, mock, none)
func runDoc(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("doc", flag.ExitOnError)
	rationale := fs.Bool("rationale", false, "Explain why the target exists, from commits and discussions")
	generator := fs.String("generator", "", "Override the generation backend (openai, mock, none)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: archintel doc [options] <path[:entity]>

Description:
  Generate reference documentation for a file or a single entity, built
  from its indexed structure (signatures, docstrings, dependencies), its
  commit history, and linked discussions.

  With --rationale, the output instead reconstructs why the code exists:
  the commits that shaped it and the discussions around them.

  Entity targets use "path:qualified_name", e.g. "app/auth.py:Auth.login".

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Document a whole file
  archintel doc app/auth.py

  # Document a single entity
  archintel doc app/auth.py:authenticate_user

  # Why does this module exist?
  archintel doc --rationale app/auth.py

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		errors.FatalError(errors.NewInputError(
			"No target given",
			"The doc command needs one file or entity target",
			"Usage: archintel doc app/auth.py  or  archintel doc app/auth.py:Auth.login",
		), globals.JSON)
	}
	target := fs.Arg(0)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	logger := newLogger(globals)

	st := openStore(cfg, configPath)
	defer func() { _ = st.Close() }()

	if *generator != "" {
		cfg.Generator.Provider = *generator
	}

	gen, err := newGenerator(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	eng := answer.NewEngine(st, assemble.NewAssembler(st, logger), gen, logger)

	ctx := context.Background()
	var ans *answer.Answer
	if *rationale {
		ans, err = eng.Rationale(ctx, target)
	} else {
		ans, err = eng.Document(ctx, target)
	}
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Cannot document target",
			err.Error(),
			"Make sure the path is indexed ('archintel index') and the entity name matches",
		), globals.JSON)
	}

	printAnswer(ans, globals)
}
