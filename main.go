package main

import "github.com/atmikgoswami/mediaforge/cmd"

func main() {
	cmd.Run()
}
