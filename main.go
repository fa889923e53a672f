package main

import "github.com/kozaktomas/photo-people/cmd"

func main() {
	cmd.Execute()
}
