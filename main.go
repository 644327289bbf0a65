package main

import "github.com/sberkun/ydl/cmd"

func main() {
	cmd.Execute()
}
