package main

import (
	"os"

	"github.com/odyssey-erp/holdco/cmd/holdctl/cli"
)

func main() {
	os.Exit(cli.Execute())
}
