/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package esbuild

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

type metafile struct {
	Inputs map[string]metafileInput `json:"inputs"`
}

type metafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []metafileImport `json:"imports"`
}

type metafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

var loadersByName = map[string]api.Loader{
	"js":     api.LoaderJS,
	"jsx":    api.LoaderJSX,
	"ts":     api.LoaderTS,
	"tsx":    api.LoaderTSX,
	"json":   api.LoaderJSON,
	"css":    api.LoaderCSS,
	"text":   api.LoaderText,
	"base64": api.LoaderBase64,
	"binary": api.LoaderBinary,
	"empty":  api.LoaderEmpty,
}

var defaultLoaders = map[string]api.Loader{
	".js":   api.LoaderJS,
	".mjs":  api.LoaderJS,
	".cjs":  api.LoaderJS,
	".jsx":  api.LoaderJSX,
	".ts":   api.LoaderTS,
	".mts":  api.LoaderTS,
	".cts":  api.LoaderTS,
	".tsx":  api.LoaderTSX,
	".json": api.LoaderJSON,
	".css":  api.LoaderCSS,
	".txt":  api.LoaderText,
}

// loaderMap converts extension -> loader name pairs into esbuild loaders.
func loaderMap(names map[string]string) (map[string]api.Loader, error) {
	loaders := make(map[string]api.Loader, len(names))
	for ext, name := range names {
		loader, ok := loadersByName[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown loader %q for %s", name, ext)
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		loaders[strings.ToLower(ext)] = loader
	}
	return loaders, nil
}
