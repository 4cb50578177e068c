package web

import (
	"encoding/json"
	"io"
	"text/template"

	"github.com/saltyorg/vidprev/internal/config"
)

// loaderScript fetches the Go wasm runtime and starts the engine. Attributes
// on the injecting script tag override the server defaults.
const loaderScript = `(() => {
  if (globalThis.{{.Global}}) {
    return;
  }
  const script = document.currentScript;
  const base = {{json .AssetBase}};
  globalThis.{{.Global}} = Object.assign({{json .Config}}, script ? { ...script.dataset } : {});

  const load = (src) => new Promise((resolve, reject) => {
    const el = document.createElement("script");
    el.src = src;
    el.onload = resolve;
    el.onerror = () => reject(new Error("failed to load " + src));
    document.head.appendChild(el);
  });

  load(base + "/{{.Runtime}}")
    .then(async () => {
      const go = new Go();
      const result = await WebAssembly.instantiateStreaming(fetch(base + "/{{.Bundle}}"), go.importObject);
      go.run(result.instance);
    })
    .catch((err) => console.error("vidprev:", err));
})();
`

type loaderData struct {
	AssetBase string
	Config    map[string]string
}

type loader struct {
	tmpl *template.Template
}

func newLoader() *loader {
	funcs := template.FuncMap{
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}
	return &loader{tmpl: template.Must(template.New("loader").Funcs(funcs).Parse(loaderScript))}
}

func (l *loader) render(w io.Writer, data loaderData) error {
	return l.tmpl.Execute(w, struct {
		loaderData
		Global  string
		Runtime string
		Bundle  string
	}{data, config.LoaderGlobal, RuntimeFile, BundleFile})
}
