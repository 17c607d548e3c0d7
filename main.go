// The main package for the aeoscan executable.
package main

import "github.com/xenlix/aeoscan/cmd"

func main() {
	cmd.Execute()
}
