package main

import "github.com/mcbridge/mcbridge/cmd"

func main() {
	cmd.Execute()
}
