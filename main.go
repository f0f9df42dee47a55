package main

import "forge/cmd"

func main() {
	cmd.Execute()
}
