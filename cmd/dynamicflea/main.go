package main

import "dynamic-flea-price/internal/cli"

func main() {
	cli.Execute()
}
