package main

import "github.com/bioimage-tools/imgxfer/cmd"

func main() {
	cmd.Execute()
}
