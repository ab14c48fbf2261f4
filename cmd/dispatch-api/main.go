package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	app := mustBootstrapDispatchAPI(os.Getenv("configPath"))
	defer app.Close()

	if err := app.Run(); err != nil && err != context.Canceled {
		panic(fmt.Sprintf("dispatch-api: %v", err))
	}
}
