package main

import "github.com/cschleiden/go-tasks/cmd/taskd/cli"

func main() {
	cli.Execute()
}
