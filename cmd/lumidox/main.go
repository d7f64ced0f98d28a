package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ryancinsight/Apollo2-sub001/internal/tui"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newApp(cancel)
	err := newRootCmd(a).ExecuteContext(ctx)
	a.teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, tui.ErrorStyle.Render("Error:")+" "+err.Error())
		os.Exit(1)
	}
}
