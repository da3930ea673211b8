// Package cmd implements the gfabase command-line tool: load, view, sub,
// add-mappings, and version subcommands, dispatched through a
// v.io/x/lib/cmdline root command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/grailbio/gfabase/gfab"
	"v.io/x/lib/cmdline"
	"v.io/x/lib/vlog"
)

var verbose bool

func Run() {
	root := &cmdline.Command{
		Name:  "gfabase",
		Short: "Convert and query GFA pangenome graphs stored as .gfab",
		Long: `gfabase converts GFA1/GFA1.1 text files into a compact, indexed .gfab
SQLite container, and extracts subgraphs or PAF mappings from one.`,
		Children: []*cmdline.Command{
			newCmdLoad(),
			newCmdView(),
			newCmdSub(),
			newCmdAddMappings(),
			newCmdVersion(),
		},
	}
	root.Flags.BoolVar(&verbose, "verbose", false, "raise logging verbosity")
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(root)
}

// configureLogging applies the --verbose global flag. Called once at the
// top of each subcommand's Runner, since cmdline parses flags before
// dispatch.
func configureLogging() {
	if verbose {
		vlog.Log.Configure(vlog.Level(1))
	}
}

// exitErr reports err on env.Stderr and terminates the process with the
// exit code gfab.ExitCode maps its Kind to, so USAGE/EMPTY_INPUT/
// MALFORMED_RECORD/NOT_FOUND/INCOMPATIBLE_FILE/IO/INTERNAL each produce
// their own documented exit status rather than whatever generic code
// cmdline itself would pick. Every Runner funnels its terminal error
// through this instead of returning it to cmdline directly.
func exitErr(env *cmdline.Env, err error) error {
	fmt.Fprintln(env.Stderr, err)
	os.Exit(gfab.ExitCode(err))
	return nil // unreached: os.Exit terminates the process above
}
