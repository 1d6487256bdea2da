package main

import (
	"github.com/joho/godotenv"

	"github.com/nextlevelbuilder/remind/cmd"
)

func main() {
	// Secrets live in the environment; .env is a local convenience and
	// its absence is fine.
	_ = godotenv.Load()

	cmd.Execute()
}
