package main

import "github.com/itish2003/ragagent/cmd"

func main() {
	cmd.Execute()
}
