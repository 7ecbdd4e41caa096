package main

import (
	"fmt"
	"os"

	"memlayout/coloransi"
)

func main() {
	coloransi.Detect(os.Stdout)

	root := newRootCmd(&app{})
	root.SetOut(coloransi.Stdout())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
