package main

import (
	"hymod/internal/cli"
)

func main() {
	cli.Execute()
}
