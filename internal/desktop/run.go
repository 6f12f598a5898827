package desktop

import (
	"context"
	"io/fs"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

// Run opens the desktop window and blocks until it is closed.
func Run(build Builder, assets fs.FS) error {
	app := NewApp(build)
	return wails.Run(&options.App{
		Title:     "Clinscribe",
		Width:     1200,
		Height:    820,
		MinWidth:  900,
		MinHeight: 600,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		OnBeforeClose: func(ctx context.Context) bool {
			if app.controller != nil {
				_ = app.controller.Abort()
			}
			return false
		},
		Bind: []interface{}{app},
	})
}
