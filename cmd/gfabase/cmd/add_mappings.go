package cmd

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/gfabase/gfab"
	"v.io/x/lib/cmdline"
)

func newCmdAddMappings() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "add-mappings",
		Short:    "Import PAF alignments into a .gfab's mapping table",
		ArgsName: "TARGET PAF",
	}
	quality := cmd.Flags.Int("quality", 0, "minimum PAF mapping quality to import")
	length := cmd.Flags.Int("length", 0, "minimum PAF alignment block length to import")
	replace := cmd.Flags.Bool("replace", false, "delete existing mappings for touched keys first")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		stats, err := func() (*gfab.MappingStats, error) {
			configureLogging()
			if len(argv) != 2 {
				return nil, gfab.Errorf(gfab.KindUsage, "add-mappings takes TARGET and PAF, got %v", argv)
			}
			ctx := gfab.BackgroundContext()
			return gfab.ImportMappings(ctx, argv[0], argv[1], gfab.MappingOptions{
				Quality: *quality,
				Length:  *length,
				Replace: *replace,
			})
		}()
		if err != nil {
			return exitErr(env, err)
		}
		fmt.Fprintf(env.Stdout, "imported %d, skipped %d (below threshold), unknown %d, unchanged %d\n",
			stats.Imported, stats.Skipped, stats.Unknown, stats.Unchanged)
		return nil
	})
	return cmd
}
