package main

import (
	"playd/cmd"
)

func main() {
	cmd.Execute()
}
