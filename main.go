package main

import "github.com/lintagent/lintagent/cmd"

func main() {
	cmd.Execute()
}
