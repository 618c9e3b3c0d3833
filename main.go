package main

import "github.com/algobotdev/algobot/cmd"

func main() {
	cmd.Execute()
}
