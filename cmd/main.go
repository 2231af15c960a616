package main

import (
	"log"
	"os"

	"gongzi-quiz-service/internal/cli"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if err := cli.Execute(); err != nil {
		log.Printf("gongzi-quiz: %v", err)
		os.Exit(1)
	}
}
