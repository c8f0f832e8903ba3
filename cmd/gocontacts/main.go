package main

import "github.com/dbsmedya/gocontacts/cmd/gocontacts/cmd"

func main() {
	cmd.Execute()
}
