package server

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed all:static
var embedFS embed.FS

// staticFiles は撮影ページ（index.html, app.js, style.css）を static/ 直下から見せる
var staticFiles = mustSub(embedFS, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(fmt.Sprintf("埋め込みファイルシステム %s の作成に失敗: %v", dir, err))
	}
	return sub
}

// indexHTML は撮影ページのHTMLを返す
func indexHTML() ([]byte, error) {
	return fs.ReadFile(staticFiles, "index.html")
}
