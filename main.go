package main

import "Bt1Deck/cmd"

func main() {
	cmd.Execute()
}
