package main

import "github.com/modu-ai/moai-rank/internal/cli"

func main() {
	cli.Execute()
}
