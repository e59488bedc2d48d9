package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(dialMQTT).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "objctl: %v\n", err)
		os.Exit(1)
	}
}
