// Package web holds the page served by the scheduler monitor.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DevEnv names the variable that makes the monitor serve its page from disk.
// "true" or "1" serves the dist directory next to this file, any other
// non-empty value is taken as the directory to serve.
const DevEnv = "FRED_MONITOR_DEV"

//go:embed dist/*
var staticAssets embed.FS

// Assets returns the files of the monitor page.
func Assets() http.FileSystem {
	if dir, ok := devDir(); ok {
		log.Infof("monitor page served from %s", dir)
		return http.Dir(dir)
	}

	sub, err := fs.Sub(staticAssets, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(sub)
}

// Handler serves the monitor page.
func Handler() http.Handler {
	return http.FileServer(Assets())
}

func devDir() (string, bool) {
	v := strings.TrimSpace(os.Getenv(DevEnv))

	switch strings.ToLower(v) {
	case "", "0", "false":
		return "", false
	case "1", "true":
		_, file, _, ok := runtime.Caller(0)
		if !ok {
			panic("cannot locate the monitor page sources")
		}

		return filepath.Join(filepath.Dir(file), "dist"), true
	default:
		return v, true
	}
}
