package main

import "github.com/grailbio/gfabase/cmd/gfabase/cmd"

func main() {
	cmd.Run()
}
