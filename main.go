package main

import "github.com/encodeous/station/cmd"

func main() {
	cmd.Execute()
}
