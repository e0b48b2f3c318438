package main

import "github.com/vietddude/llmrelay/internal/cli"

func main() {
	cli.Execute()
}
