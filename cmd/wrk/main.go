package main

import "github.com/sanmathigb/nrvna-ai/services/submit/cli"

func main() {
	cli.Execute()
}
