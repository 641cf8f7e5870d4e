package main

import "github.com/frahmantamala/receptionist-billing/cmd"

func main() {
	cmd.Execute()
}
