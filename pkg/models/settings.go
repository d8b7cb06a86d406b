package models

// Proxy modes understood by the network configurator
const (
	ProxyDirect = "direct"
	ProxyFixed  = "fixed"
	ProxyPAC    = "pac"
	ProxySystem = "system"
)

// IdentitySettings selects the outbound browser identity
type IdentitySettings struct {
	Profile         string `json:"profile"`
	CustomUserAgent string `json:"customUserAgent,omitempty"`
}

// ProxySettings selects how partitions reach the network
type ProxySettings struct {
	Mode   string `json:"mode"`
	Rules  string `json:"rules,omitempty"`
	Bypass string `json:"bypass,omitempty"`
}

// Settings is the persisted user settings document
type Settings struct {
	Identity     IdentitySettings  `json:"identity"`
	Proxy        ProxySettings     `json:"proxy"`
	Hotkeys      map[string]string `json:"hotkeys"`
	SearchEngine string            `json:"searchEngine"`
	HomePage     string            `json:"homePage"`
}

// DefaultSettings returns the settings used on a fresh install
func DefaultSettings() Settings {
	return Settings{
		Identity: IdentitySettings{Profile: "chrome-windows"},
		Proxy:    ProxySettings{Mode: ProxySystem},
		Hotkeys: map[string]string{
			"newTab":   "CmdOrCtrl+T",
			"closeTab": "CmdOrCtrl+W",
			"reload":   "CmdOrCtrl+R",
		},
		SearchEngine: "https://duckduckgo.com/?q=%s",
		HomePage:     BlankURL,
	}
}

// SettingsPatch carries the optional settings fields a client may change
type SettingsPatch struct {
	Identity     *IdentitySettings `json:"identity,omitempty"`
	Proxy        *ProxySettings    `json:"proxy,omitempty"`
	Hotkeys      map[string]string `json:"hotkeys,omitempty"`
	SearchEngine *string           `json:"searchEngine,omitempty"`
	HomePage     *string           `json:"homePage,omitempty"`
}

// ValidProxyMode reports whether mode is one of the known proxy modes
func ValidProxyMode(mode string) bool {
	switch mode {
	case ProxyDirect, ProxyFixed, ProxyPAC, ProxySystem:
		return true
	}
	return false
}
