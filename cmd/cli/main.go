package main

import "uniportal/cmd/cli/command"

func main() {
	command.Execute()
}
