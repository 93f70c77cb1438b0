package main

import (
	"context"

	"schoolrecords_backend/internals/cmd"
)

func main() {
	cmd.Execute(context.Background())
}
