package fetcher

import (
	"os/exec"
	"sync"

	"github.com/jmylchreest/docsift/internal/logger"
)

// Chrome/Chromium binary names and install locations, in lookup order.
var chromeBinaryNames = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/snap/bin/chromium",
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

var (
	chromePathOnce sync.Once
	chromePath     string
)

// FindChromePath returns the first Chrome binary found on the system, or ""
// if there is none. The lookup runs once per process.
func FindChromePath() string {
	chromePathOnce.Do(func() {
		for _, name := range chromeBinaryNames {
			if path, err := exec.LookPath(name); err == nil {
				logger.Debug("found Chrome binary", "name", name, "path", path)
				chromePath = path
				return
			}
		}
		logger.Warn("no Chrome binary found - browser rendering may not work")
	})
	return chromePath
}
