package main

import "github.com/blogem/devkb/cmd"

func main() {
	cmd.Execute()
}
