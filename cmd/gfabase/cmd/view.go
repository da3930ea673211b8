package cmd

import (
	"os"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/gfabase/gfab"
	"v.io/x/lib/cmdline"
)

func newCmdView() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "view",
		Short:    "Print a .gfab as GFA1 text",
		ArgsName: "INPUT",
	}
	noSequences := cmd.Flags.Bool("no-sequences", false, "write * instead of segment sequences")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		err := func() error {
			configureLogging()
			if len(argv) != 1 {
				return gfab.Errorf(gfab.KindUsage, "view takes one INPUT path, got %v", argv)
			}
			ctx := gfab.BackgroundContext()
			f, err := gfab.OpenFile(ctx, argv[0], true)
			if err != nil {
				return err
			}
			defer f.Close()

			w, cleanup, err := gfab.OpenPager(os.Stdout)
			if err != nil {
				return err
			}
			defer cleanup()
			return gfab.EmitGFA1(f.DB, w, gfab.EmitOptions{NoSequences: *noSequences}, false)
		}()
		if err != nil {
			return exitErr(env, err)
		}
		return nil
	})
	return cmd
}
