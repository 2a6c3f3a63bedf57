package main

import (
	"os"

	"github.com/joe-ervin05/litetable/cli"
)

func main() {
	os.Exit(cli.Execute())
}
