package main

import "github.com/artemshloyda/photovault/internal/cli"

func main() {
	cli.Execute()
}
