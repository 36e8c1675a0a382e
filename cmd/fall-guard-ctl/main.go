// Command fall-guard-ctl controls a running fall-guard daemon.
package main

import "github.com/oshokin/fall-guard/cmd/fall-guard-ctl/cmd"

func main() {
	cmd.Execute()
}
