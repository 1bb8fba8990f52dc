package main

import (
	"log"

	"github.com/lkarlslund/tokensync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
