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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/archintel/internal/errors"
	"github.com/kraklabs/archintel/internal/ui"
	"github.com/kraklabs/archintel/pkg/answer"
	"github.com/kraklabs/archintel/pkg/assemble"
)

// runAsk executes the 'ask' CLI command: assemble a context bundle for the
// question and hand it to the generation backend. Citations always come
// from the assembled context, and backend failures degrade to an
// extractive rendering of the context instead of failing the command.
//
// Flags:
//   - --budget: Approximate token budget for the context bundle
//   - --generator: Override the configured backend (openai, mock, none)
func runAsk(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	budget := fs.Int("budget", 0, "Approximate token budget for the context bundle (0 = default)")
	generator := fs.String("generator", "", "Override the generation backend (openai, mock, none)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: archintel ask [options] "<question>"

Description:
  Answer a free-form question about the codebase. The question is matched
  against indexed entities (names, signatures, docstrings), mined commit
  messages, and linked discussions; the best evidence is packed into a
  budgeted context bundle and handed to the generation backend.

  Answers cite the evidence they are grounded on. If the generation
  backend is unavailable, the command still succeeds with a degraded,
  extractive answer built directly from the evidence.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  archintel ask "why does authenticate_user retry on timeout?"
  archintel ask --budget 8192 "how is the session cache invalidated?"
  archintel ask --generator none "what calls hash_password?"

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		errors.FatalError(errors.NewInputError(
			"No question given",
			"The ask command needs a question as its argument",
			`Usage: archintel ask "why does X happen?"`,
		), globals.JSON)
	}

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

	asm := assemble.NewAssembler(st, logger)
	if *budget > 0 {
		asm.Budget = *budget
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	eng := answer.NewEngine(st, asm, gen, logger)

	ans, err := eng.Ask(context.Background(), question)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Cannot answer question",
			"Failed to assemble context from the store",
			"Make sure the repository is indexed: run 'archintel index'",
			err,
		), globals.JSON)
	}

	printAnswer(ans, globals)
}

// printAnswer renders an answer with its citations, or as JSON.
func printAnswer(ans *answer.Answer, globals GlobalFlags) {
	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(ans)
		return
	}

	if ans.NoContext {
		ui.Warning(ans.Text)
		return
	}

	if ans.Degraded {
		ui.Warningf("Degraded answer (%s)", ans.DegradedReason)
		fmt.Println()
	}

	fmt.Println(ans.Text)

	if len(ans.Citations) > 0 {
		fmt.Println()
		ui.SubHeader("Evidence:")
		for _, c := range ans.Citations {
			fmt.Printf("  [%s] %s\n", ui.DimText(c.Ref), c.Description)
		}
	}
}
