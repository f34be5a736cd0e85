package main

import (
	"os"

	"github.com/soundprediction/go-kgextract/cmd/kgx"
)

func main() {
	if err := kgx.Execute(); err != nil {
		os.Exit(1)
	}
}
