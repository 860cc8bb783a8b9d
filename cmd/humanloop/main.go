// Command humanloop is the deterministic human-in-the-loop authorization gate.
package main

import "github.com/ppiankov/humanloop/internal/cli"

func main() {
	cli.Execute()
}
