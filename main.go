package main

import "dr-meter/cmd"

func main() {
	cmd.Execute()
}
