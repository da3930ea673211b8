package cmd

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/gfabase/gfab"
	"v.io/x/lib/cmdline"
)

func newCmdVersion() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "version",
		Short: "Print the gfabase version",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		fmt.Fprintln(env.Stdout, gfab.LoaderVersion)
		return nil
	})
	return cmd
}
