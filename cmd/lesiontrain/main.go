package main

import "github.com/lakshminarayanan678/capsule-vision-challenge-2024/internal/cli"

func main() {
	cli.Execute()
}
