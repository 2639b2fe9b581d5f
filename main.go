package main

import "github.com/khanhnv2901/anomradar/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
