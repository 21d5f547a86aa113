package main

import (
	"github.com/castrel/postflow/cmd"
)

func main() {
	cmd.Execute()
}
