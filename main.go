package main

import "github.com/squidstack/squidflags/cmd"

func main() {
	cmd.Execute()
}
