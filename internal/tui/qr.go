package tui

import (
	"strings"

	"github.com/mdp/qrterminal/v3"
)

func renderQR(payload string) string {
	if payload == "" {
		return "(no QR payload)"
	}
	var b strings.Builder
	qrterminal.GenerateWithConfig(payload, qrterminal.Config{
		Level:      qrterminal.L,
		Writer:     &b,
		HalfBlocks: true,
		QuietZone:  1,
	})
	return b.String()
}
