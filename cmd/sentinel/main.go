package main

import "github.com/acheong08/sentinel/cmd/sentinel/commands"

func main() {
	commands.Execute()
}
