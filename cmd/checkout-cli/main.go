package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sea021/promptshop-go/internal/tui"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "storefront API base URL")
	email := flag.String("email", "", "customer email attached to the order")
	flag.Parse()

	model := tui.New(tui.NewClient(*baseURL), *email)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "checkout-cli error: %v\n", err)
		os.Exit(1)
	}
}
