package util

import (
	"fmt"
	"io"
	"os"

	"github.com/common-nighthawk/go-figure"
)

// ANSI 颜色
const (
	ColorReset  = "\x1b[0m"
	ColorRed    = "\x1b[1;31m"
	ColorGreen  = "\x1b[1;32m"
	ColorYellow = "\x1b[1;33m"
	ColorBlue   = "\x1b[1;34m"
	ColorCyan   = "\x1b[1;36m"
)

var colors = map[string]string{
	"red":    ColorRed,
	"green":  ColorGreen,
	"yellow": ColorYellow,
	"blue":   ColorBlue,
	"cyan":   ColorCyan,
}

// colorCode 未知颜色不着色
func colorCode(name string) string {
	if c, ok := colors[name]; ok {
		return c
	}
	return ColorReset
}

// WriteBanner 以单一颜色输出 ASCII 艺术字
func WriteBanner(w io.Writer, text, color string) error {
	fig := figure.NewFigure(text, "", true)
	ansi := colorCode(color)
	for _, line := range fig.Slicify() {
		if _, err := fmt.Fprintln(w, ansi+line+ColorReset); err != nil {
			return err
		}
	}
	return nil
}

// PrintBanner 打印启动 banner 到 stdout
func PrintBanner(text, color string) {
	_ = WriteBanner(os.Stdout, text, color)
}
