package main

import (
	"log"

	"github.com/sandeepkv93/paygw-mollie/internal/tools/paygwctl"
)

func main() {
	if err := paygwctl.NewRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
