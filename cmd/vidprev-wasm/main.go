//go:build js && wasm

// Command vidprev-wasm is the browser build of the preview engine. It is
// started by the loader script served by "vidprev serve" and reads its
// configuration from the object the loader leaves on the window.
package main

import (
	"context"
	"errors"
	"os"
	"syscall/js"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/credentials"
	"github.com/saltyorg/vidprev/internal/dom/jsdom"
	"github.com/saltyorg/vidprev/internal/engine"
	"github.com/saltyorg/vidprev/internal/logging"
	"github.com/saltyorg/vidprev/internal/overlay"
)

func main() {
	values := readConfig()
	logging.Console(values[config.OverrideLogLevel], os.Stdout)

	if err := run(values); err != nil {
		if errors.Is(err, credentials.ErrConfiguration) {
			log.Error().Err(err).Msg("Preview engine disabled")
			return
		}
		log.Error().Err(err).Msg("Preview engine failed to start")
		return
	}
	select {}
}

func run(values map[string]string) error {
	cfg, err := config.ApplyOverrides(config.DefaultPreview(), values)
	if err != nil {
		return err
	}

	doc := jsdom.New()
	doc.WaitReady()

	store, err := doc.Storage()
	if err != nil {
		return err
	}
	ov, err := doc.CreateOverlay()
	if err != nil {
		return err
	}

	e, err := engine.New(engine.Options{
		Host:      doc,
		Store:     store,
		Surface:   overlay.New(ov, ov.Video()),
		Config:    cfg,
		ServerURL: values[config.OverrideServerURL],
	})
	if err != nil {
		return err
	}
	e.Start(context.Background())

	var stop js.Func
	stop = js.FuncOf(func(js.Value, []js.Value) any {
		// Close waits on the loop, so it must not block the JS callback.
		go e.Close()
		js.Global().Delete("vidprevStop")
		stop.Release()
		return nil
	})
	js.Global().Set("vidprevStop", stop)
	return nil
}

// readConfig copies the loader's configuration object into a string map.
func readConfig() map[string]string {
	values := make(map[string]string)
	obj := js.Global().Get(config.LoaderGlobal)
	if obj.Type() != js.TypeObject {
		return values
	}
	keys := js.Global().Get("Object").Call("keys", obj)
	for i := range keys.Length() {
		k := keys.Index(i).String()
		v := obj.Get(k)
		switch v.Type() {
		case js.TypeString:
			values[k] = v.String()
		case js.TypeNumber, js.TypeBoolean:
			values[k] = v.Call("toString").String()
		}
	}
	return values
}
