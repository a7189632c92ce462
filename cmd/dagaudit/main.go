package main

import (
	"log"

	"dagaudit/cmd/dagaudit/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
