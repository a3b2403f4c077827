package main

import "github.com/omega-realm/economy/internal/cli"

func main() {
	cli.Execute()
}
