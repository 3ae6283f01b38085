package main

import "github.com/tanq16/rangeflow/cmd"

func main() {
	cmd.Execute()
}
