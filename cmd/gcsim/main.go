package main

import "github.com/engine-gc/cmd/gcsim/cmd"

func main() {
	cmd.Execute()
}
