// Command fall-guard runs the fall detection daemon.
package main

import "github.com/oshokin/fall-guard/cmd/fall-guard/cmd"

func main() {
	cmd.Execute()
}
