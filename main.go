package main

import (
	"os"

	"github.com/scan-io-git/modscan/cmd"
)

func main() {
	code := cmd.Execute()
	os.Exit(code)
}
