// Command heavy-aggregator harvests heavy-athletics results archives.
package main

import "github.com/JakeFAU/heavy-aggregator/cmd"

func main() {
	cmd.Execute()
}
