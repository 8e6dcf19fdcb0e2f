package main

import "authgate/cmd"

func main() {
	cmd.Execute()
}
