package main

import "github.com/devicelab-dev/hybrid-runner/pkg/cli"

func main() {
	cli.Execute()
}
