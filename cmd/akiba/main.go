package main

import "github.com/akiba-network/akiba/internal/cli"

func main() {
	cli.Execute()
}
