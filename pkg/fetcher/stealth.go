package fetcher

import (
	"context"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// stealthScript runs before any page script and hides the usual headless
// giveaways.
const stealthScript = `
(() => {
  const define = (obj, prop, value) => {
    try { Object.defineProperty(obj, prop, { get: () => value, configurable: true }); } catch (e) {}
  };

  define(Navigator.prototype, 'webdriver', undefined);
  define(navigator, 'languages', ['en-US', 'en']);
  define(navigator, 'hardwareConcurrency', 8);
  define(navigator, 'deviceMemory', 8);

  const mimeTypes = [
    { type: 'application/pdf', suffixes: 'pdf', description: 'Portable Document Format' },
    { type: 'text/pdf', suffixes: 'pdf', description: 'Portable Document Format' },
  ];
  const plugins = ['PDF Viewer', 'Chrome PDF Viewer', 'Chromium PDF Viewer', 'Microsoft Edge PDF Viewer', 'WebKit built-in PDF']
    .map((name) => ({ name, filename: 'internal-pdf-viewer', description: 'Portable Document Format', length: mimeTypes.length }));
  define(navigator, 'plugins', Object.assign(plugins, { item: (i) => plugins[i] || null, namedItem: (n) => plugins.find((p) => p.name === n) || null, refresh: () => {} }));
  define(navigator, 'mimeTypes', Object.assign(mimeTypes, { item: (i) => mimeTypes[i] || null, namedItem: (n) => mimeTypes.find((m) => m.type === n) || null }));

  if (!window.chrome) { window.chrome = {}; }
  window.chrome.runtime = window.chrome.runtime || { connect: () => {}, sendMessage: () => {} };
  window.chrome.app = window.chrome.app || { isInstalled: false };

  const query = window.navigator.permissions && window.navigator.permissions.query;
  if (query) {
    window.navigator.permissions.query = (params) =>
      params && params.name === 'notifications'
        ? Promise.resolve({ state: Notification.permission })
        : query.call(window.navigator.permissions, params);
  }

  const getParameter = WebGLRenderingContext.prototype.getParameter;
  WebGLRenderingContext.prototype.getParameter = function (p) {
    if (p === 37445) return 'Intel Inc.';
    if (p === 37446) return 'Intel Iris OpenGL Engine';
    return getParameter.call(this, p);
  };

  define(window, 'outerWidth', window.innerWidth);
  define(window, 'outerHeight', window.innerHeight + 85);
})();
`

// allocatorOptions returns the Chrome flags for a headless instance.
func allocatorOptions(cfg BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("lang", cfg.Locale),
		chromedp.WindowSize(cfg.Width, cfg.Height),
	)

	chromePath := cfg.ChromePath
	if chromePath == "" {
		chromePath = FindChromePath()
	}
	if chromePath != "" {
		opts = append(opts, chromedp.ExecPath(chromePath))
	}
	return opts
}

// injectStealthScript registers stealthScript for every new document in the
// tab. It must run before navigation.
func injectStealthScript() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	})
}
