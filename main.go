package main

import "github.com/ridoystarlord/tabledrift/cmd"

func main() {
	cmd.Execute()
}
