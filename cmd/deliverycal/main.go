package main

import "github.com/vietddude/deliverycal/internal/cli"

func main() {
	cli.Execute()
}
