// Package main is the entry point for the lmscache CLI.
package main

import "github.com/learnhub/lmscache/internal/cli"

func main() {
	cli.Execute()
}
