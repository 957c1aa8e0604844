package main

import (
	"os"

	"github.com/kilimba/chainode/cli"
)

func main() {
	defer os.Exit(0)
	cli.New().Run()
}
