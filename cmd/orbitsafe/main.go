package main

import "github.com/johnrirwin/orbitsafe/internal/cli"

func main() {
	cli.Execute()
}
