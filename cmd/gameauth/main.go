package main

import "github.com/mcoot/gameauth/internal/cli"

func main() {
	cli.Execute()
}
