package cmd

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/gfabase/gfab"
	"v.io/x/lib/cmdline"
)

func newCmdLoad() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "load",
		Short:    "Convert a GFA1 file into a .gfab",
		ArgsName: "INPUT [OUTPUT]",
		Long: `load reads a GFA1 (or GFA1.1) file -- "-" for stdin, optionally
gzip-compressed or an http(s) URL -- and writes a new .gfab.`,
	}
	output := cmd.Flags.String("o", "", "output .gfab path (default: derived from INPUT, or required with stdin)")
	compress := cmd.Flags.Int("compress", 0, "tags_json snappy compression level (0 disables)")
	memoryGBytes := cmd.Flags.Float64("memory-gbytes", 0, "SQLite page cache budget in GiB (0: implementation default)")
	noConnectivity := cmd.Flags.Bool("no-connectivity", false, "skip connectivity/cutpoint/biconnectivity computation")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		out, err := func() (string, error) {
			configureLogging()
			if len(argv) < 1 || len(argv) > 2 {
				return "", gfab.Errorf(gfab.KindUsage, "load takes INPUT and an optional OUTPUT, got %v", argv)
			}
			input := argv[0]
			out := *output
			if len(argv) == 2 {
				if out != "" {
					return "", gfab.Errorf(gfab.KindUsage, "output given both positionally and via -o")
				}
				out = argv[1]
			}
			if out == "" {
				out = deriveOutputPath(input)
				if out == "" {
					return "", gfab.Errorf(gfab.KindUsage, "an explicit OUTPUT or -o is required when reading from stdin")
				}
			}
			ctx := gfab.BackgroundContext()
			err := gfab.Load(ctx, input, out, gfab.LoadOptions{
				CompressLevel:  *compress,
				MemoryGBytes:   *memoryGBytes,
				NoConnectivity: *noConnectivity,
			})
			return out, err
		}()
		if err != nil {
			return exitErr(env, err)
		}
		fmt.Fprintf(env.Stdout, "wrote %s\n", out)
		return nil
	})
	return cmd
}

// deriveOutputPath strips a trailing .gfa/.gfa.gz/.gfa11 suffix and appends
// .gfab; it returns "" (forcing the caller to require -o) for stdin or
// inputs with no recognized suffix.
func deriveOutputPath(input string) string {
	for _, suffix := range []string{".gfa.gz", ".gfa11.gz", ".gfa11", ".gfa"} {
		if len(input) > len(suffix) && input[len(input)-len(suffix):] == suffix {
			return input[:len(input)-len(suffix)] + ".gfab"
		}
	}
	return ""
}
