package cmd

import (
	"os"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/gfabase/gfab"
	"v.io/x/lib/cmdline"
)

func newCmdSub() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "sub",
		Short:    "Extract a subgraph from a .gfab",
		ArgsName: "INPUT [OUTPUT] [SELECTOR...]",
	}
	view := cmd.Flags.Bool("view", false, "emit GFA1 text instead of a new .gfab")
	pathFlag := cmd.Flags.String("path", "", "comma-separated path names to include")
	rangeFlag := cmd.Flags.String("range", "", "comma-separated CHR:BEGIN-END ranges to include")
	guessRanges := cmd.Flags.Bool("guess-ranges", false, "treat bare CHR:BEGIN-END selector tokens as ranges")
	connected := cmd.Flags.Bool("connected", false, "expand to full connected components")
	cutpoints := cmd.Flags.Int("cutpoints", 0, "expand across up to N-1 cutpoints")
	cutpointsMinLen := cmd.Flags.Int("cutpoints-nt", 0, "minimum segment length to count as a crossable cutpoint")
	biconnected := cmd.Flags.Int("biconnected", 0, "expand to K rounds of shared-cutpoint biconnected components")
	walkSamples := cmd.Flags.String("walk-samples", "", "comma-separated sample names restricting copied walks")
	noSequences := cmd.Flags.Bool("no-sequences", false, "omit segment sequences")
	noConnectivity := cmd.Flags.Bool("no-connectivity", false, "skip recomputing connectivity on the output .gfab")

	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		err := func() error {
			configureLogging()
			if len(argv) < 1 {
				return gfab.Errorf(gfab.KindUsage, "sub requires an INPUT path")
			}
			input := argv[0]
			rest := argv[1:]
			output := ""
			if len(rest) > 0 && !looksLikeSelector(rest[0]) {
				output = rest[0]
				rest = rest[1:]
			}

			ctx := gfab.BackgroundContext()
			in, err := gfab.OpenFile(ctx, input, true)
			if err != nil {
				return err
			}
			defer in.Close()

			sel := gfab.Selector{
				GuessRanges: *guessRanges,
			}
			if *pathFlag != "" {
				sel.Paths = strings.Split(*pathFlag, ",")
			}
			if *rangeFlag != "" {
				sel.Ranges = strings.Split(*rangeFlag, ",")
			}
			if err := gfab.ResolveSelectors(in.DB, rest, sel); err != nil {
				return err
			}

			policy := gfab.ExpansionPolicy{
				Connected:       *connected,
				Cutpoints:       *cutpoints,
				CutpointsMinLen: *cutpointsMinLen,
				Biconnected:     *biconnected,
			}
			if err := gfab.ExpandSubgraph(in.DB, policy); err != nil {
				return err
			}

			var samples []string
			if *walkSamples != "" {
				samples = strings.Split(*walkSamples, ",")
			}

			if *view || output == "" || output == "-" {
				var w = os.Stdout
				out, cleanup, err := gfab.OpenPager(w)
				if err != nil {
					return err
				}
				defer cleanup()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return gfab.Wrap(gfab.KindIO, err, "creating %s", output)
					}
					defer f.Close()
					return gfab.EmitGFA1(in.DB, f, gfab.EmitOptions{NoSequences: *noSequences}, true)
				}
				return gfab.EmitGFA1(in.DB, out, gfab.EmitOptions{NoSequences: *noSequences}, true)
			}

			return gfab.EmitSubgraph(ctx, in, output, *noSequences, *noConnectivity, samples)
		}()
		if err != nil {
			return exitErr(env, err)
		}
		return nil
	})
	return cmd
}

// looksLikeSelector distinguishes an OUTPUT positional argument from the
// first selector token: selectors are either numeric segment ids or
// segment/path names, neither of which should end in a recognized .gfab
// path shape, but since names are unconstrained the one unambiguous
// positional form is "-" (stdout) or a path containing a "/" or ending in
// ".gfab".
func looksLikeSelector(tok string) bool {
	if tok == "-" {
		return false
	}
	if strings.HasSuffix(tok, ".gfab") || strings.Contains(tok, "/") {
		return false
	}
	return true
}
