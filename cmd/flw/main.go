package main

import "github.com/sanmathigb/nrvna-ai/services/read/cli"

func main() {
	cli.Execute()
}
