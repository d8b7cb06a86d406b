package identity

// Brand is one entry of the Sec-CH-UA brand list
type Brand struct {
	Brand   string
	Version string
}

// ClientHints is the structured identity Chromium-family browsers advertise
type ClientHints struct {
	Brands   []Brand
	Mobile   bool
	Platform string
}

// Profile is a named outbound identity
type Profile struct {
	Name      string
	UserAgent string
	Hints     *ClientHints
}

// CustomProfile selects the user-supplied user-agent string
const CustomProfile = "custom"

// DefaultProfile is used when the configured profile is unknown
const DefaultProfile = "chrome-windows"

func chromiumBrands(vendor string) []Brand {
	return []Brand{
		{Brand: vendor, Version: "131"},
		{Brand: "Chromium", Version: "131"},
		{Brand: "Not_A Brand", Version: "24"},
	}
}

var catalogue = map[string]Profile{
	"chrome-windows": {
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Hints:     &ClientHints{Brands: chromiumBrands("Google Chrome"), Platform: "Windows"},
	},
	"chrome-macos": {
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Hints:     &ClientHints{Brands: chromiumBrands("Google Chrome"), Platform: "macOS"},
	},
	"chrome-linux": {
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Hints:     &ClientHints{Brands: chromiumBrands("Google Chrome"), Platform: "Linux"},
	},
	"chrome-android": {
		UserAgent: "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36",
		Hints:     &ClientHints{Brands: chromiumBrands("Google Chrome"), Mobile: true, Platform: "Android"},
	},
	"edge-windows": {
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
		Hints:     &ClientHints{Brands: chromiumBrands("Microsoft Edge"), Platform: "Windows"},
	},
	"firefox-windows": {
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	},
	"firefox-macos": {
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	},
	"firefox-linux": {
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
	},
	"safari-macos": {
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	},
	"safari-ios": {
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 18_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Mobile/15E148 Safari/604.1",
	},
}

// Lookup returns a catalogue profile by name
func Lookup(name string) (Profile, bool) {
	p, ok := catalogue[name]
	if ok {
		p.Name = name
	}
	return p, ok
}

// Names lists the catalogue profile names
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	return names
}
