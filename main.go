package main

import "github.com/scrybe-cli/scrybe/internal/cli"

func main() {
	cli.Execute()
}
