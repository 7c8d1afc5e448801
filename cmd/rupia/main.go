package main

import "github.com/rupianet/rupia/internal/cli"

func main() {
	cli.Execute()
}
