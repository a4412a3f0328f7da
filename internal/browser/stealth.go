package browser

// fingerprintScript runs before any page script on every document and makes
// the automation-specific surfaces report desktop Chrome values.
const fingerprintScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
	Object.defineProperty(navigator, 'platform', { get: () => 'Win32' });
	Object.defineProperty(navigator, 'language', { get: () => 'en-US' });

	if (navigator.permissions && navigator.permissions.query) {
		const originalQuery = navigator.permissions.query.bind(navigator.permissions);
		navigator.permissions.query = (parameters) => {
			if (parameters && (parameters.name === 'notifications' || parameters.name === 'clipboard-write')) {
				return Promise.resolve({ state: 'prompt', onchange: null });
			}
			return originalQuery(parameters);
		};
	}

	window.chrome = {
		runtime: {},
		app: {},
		csi: () => {},
		loadTimes: () => {},
		webstore: {},
	};

	HTMLCanvasElement.prototype.toDataURL = function () {
		return 'data:image/png;base64,';
	};
})();`

// FingerprintScript returns the document-start script applied to every session page.
func FingerprintScript() string {
	return fingerprintScript
}

// DesktopHeaders are the request headers a Chrome 120 desktop install sends on
// a top-level navigation.
var DesktopHeaders = [][2]string{
	{"Accept-Language", "en-US,en;q=0.9"},
	{"Accept-Encoding", "gzip, deflate, br"},
	{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"},
	{"sec-ch-ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`},
	{"sec-ch-ua-mobile", "?0"},
	{"sec-ch-ua-platform", `"Windows"`},
	{"sec-fetch-dest", "document"},
	{"sec-fetch-mode", "navigate"},
	{"sec-fetch-site", "none"},
	{"sec-fetch-user", "?1"},
	{"upgrade-insecure-requests", "1"},
}

// headerPairs flattens DesktopHeaders into the key, value, key, value form
// rod's SetExtraHeaders expects.
func headerPairs() []string {
	out := make([]string, 0, len(DesktopHeaders)*2)
	for _, h := range DesktopHeaders {
		out = append(out, h[0], h[1])
	}
	return out
}
