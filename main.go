package main

import "github.com/kozaktomas/photo-variants/cmd"

func main() {
	cmd.Execute()
}
