package main

import "sponsor-core/cmd/sponsor-cli/cmd"

func main() {
	cmd.Execute()
}
