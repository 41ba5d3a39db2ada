//go:build js && wasm

// Command transfer-wasm runs the import controller on the admin transfer page.
//
//	GOOS=js GOARCH=wasm go build -o assets/transfer.wasm ./cmd/transfer-wasm
package main

import (
	"os"
	"syscall/js"

	"github.com/rs/zerolog"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/transfer"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/transfer/dom"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Str("component", "transfer").Logger()

	page, err := dom.Lookup(js.Global().Get("document"))
	if err != nil {
		logger.Error().Err(err).Msg("Transfer page is incomplete")
		return
	}

	origin := js.Global().Get("location").Get("origin").String()
	mode := page.ContentMode()

	dom.Bind(page, origin,
		transfer.WithContentMode(mode),
		transfer.WithLogger(logger),
	)

	logger.Info().Str("mode", mode.String()).Msg("Transfer controller ready")

	select {}
}
