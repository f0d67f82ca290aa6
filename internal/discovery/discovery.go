// Package discovery locates Chromium-family browser profiles on disk and
// turns them, together with explicitly configured profiles, into the
// ordered source list a scan works through.
package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/runnerr0/linktrail/internal/config"
	"github.com/runnerr0/linktrail/internal/history"
	"github.com/runnerr0/linktrail/internal/logger"
)

// Env is the slice of the process environment discovery depends on.
type Env struct {
	GOOS         string
	Home         string
	LocalAppData string
	AppData      string
	ConfigHome   string // XDG_CONFIG_HOME
}

// CurrentEnv reads Env from the running process.
func CurrentEnv() Env {
	home, _ := os.UserHomeDir()
	return Env{
		GOOS:         runtime.GOOS,
		Home:         home,
		LocalAppData: os.Getenv("LOCALAPPDATA"),
		AppData:      os.Getenv("APPDATA"),
		ConfigHome:   os.Getenv("XDG_CONFIG_HOME"),
	}
}

// UserDataDirs returns the candidate user-data directories of browser on
// the platform described by env, most likely first.
func UserDataDirs(browser string, env Env) []string {
	switch env.GOOS {
	case "windows":
		local := func(parts ...string) string { return filepath.Join(append([]string{env.LocalAppData}, parts...)...) }
		roaming := func(parts ...string) string { return filepath.Join(append([]string{env.AppData}, parts...)...) }
		switch browser {
		case "chrome":
			return []string{local("Google", "Chrome", "User Data"), roaming("Google", "Chrome", "User Data")}
		case "edge":
			return []string{local("Microsoft", "Edge", "User Data"), roaming("Microsoft", "Edge", "User Data")}
		case "brave":
			return []string{local("BraveSoftware", "Brave-Browser", "User Data"), roaming("BraveSoftware", "Brave-Browser", "User Data")}
		case "chromium":
			return []string{local("Chromium", "User Data")}
		case "vivaldi":
			return []string{local("Vivaldi", "User Data"), roaming("Vivaldi", "User Data")}
		case "opera":
			return []string{roaming("Opera Software", "Opera Stable"), roaming("Opera Software", "Opera GX Stable")}
		}
	case "darwin":
		support := filepath.Join(env.Home, "Library", "Application Support")
		switch browser {
		case "chrome":
			return []string{filepath.Join(support, "Google", "Chrome")}
		case "edge":
			return []string{filepath.Join(support, "Microsoft Edge")}
		case "brave":
			return []string{filepath.Join(support, "BraveSoftware", "Brave-Browser")}
		case "chromium":
			return []string{filepath.Join(support, "Chromium")}
		case "vivaldi":
			return []string{filepath.Join(support, "Vivaldi")}
		case "opera":
			return []string{filepath.Join(support, "com.operasoftware.Opera")}
		}
	default:
		cfgHome := env.ConfigHome
		if cfgHome == "" {
			cfgHome = filepath.Join(env.Home, ".config")
		}
		switch browser {
		case "chrome":
			return []string{filepath.Join(cfgHome, "google-chrome")}
		case "edge":
			return []string{filepath.Join(cfgHome, "microsoft-edge")}
		case "brave":
			return []string{filepath.Join(cfgHome, "BraveSoftware", "Brave-Browser")}
		case "chromium":
			return []string{filepath.Join(cfgHome, "chromium")}
		case "vivaldi":
			return []string{filepath.Join(cfgHome, "vivaldi")}
		case "opera":
			return []string{filepath.Join(cfgHome, "opera")}
		}
	}
	return nil
}

// Finder discovers sources.
type Finder struct {
	env    Env
	logger logger.Logger
}

// NewFinder creates a Finder for env.
func NewFinder(env Env, log logger.Logger) *Finder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Finder{env: env, logger: log}
}

// Sources returns the profiles of every browser enabled in cfg followed by
// cfg's explicit sources. A source listed twice (same browser and profile)
// is kept once, the first occurrence winning.
func (f *Finder) Sources(cfg *config.Config) []history.Source {
	var out []history.Source
	seen := make(map[string]bool)
	add := func(s history.Source) {
		if seen[s.Key()] {
			return
		}
		seen[s.Key()] = true
		out = append(out, s)
	}

	for _, browser := range cfg.EnabledBrowsers() {
		for _, dir := range UserDataDirs(browser, f.env) {
			profiles := ProfilesIn(browser, dir)
			for _, p := range profiles {
				add(p)
			}
			if len(profiles) > 0 {
				f.logger.Debug("discovered profiles",
					logger.String("browser", browser),
					logger.String("dir", dir),
					logger.Int("profiles", len(profiles)))
				break
			}
		}
	}

	for _, sc := range cfg.Sources {
		path, err := config.ExpandPath(sc.Path)
		if err != nil {
			f.logger.Warn("skipping configured source", logger.String("path", sc.Path), logger.Error(err))
			continue
		}
		add(history.Source{Browser: sc.Browser, Profile: sc.Profile, Path: path})
	}

	return out
}

// ProfilesIn lists the profiles with a History store inside a browser's
// user-data directory: "Default" and "Profile N" directories, or the
// directory itself for browsers that keep a single profile there.
func ProfilesIn(browser, userDataDir string) []history.Source {
	entries, err := os.ReadDir(userDataDir)
	if err != nil {
		return nil
	}

	names := localStateNames(userDataDir)
	var out []history.Source
	for _, e := range entries {
		if !e.IsDir() || !isProfileDir(e.Name()) {
			continue
		}
		dir := filepath.Join(userDataDir, e.Name())
		if !hasHistory(dir) {
			continue
		}
		out = append(out, history.Source{
			Browser: browser,
			Profile: e.Name(),
			Name:    names[e.Name()],
			Path:    dir,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return profileRank(out[i].Profile) < profileRank(out[j].Profile) ||
			(profileRank(out[i].Profile) == profileRank(out[j].Profile) && out[i].Profile < out[j].Profile)
	})

	if len(out) == 0 && hasHistory(userDataDir) {
		out = append(out, history.Source{Browser: browser, Profile: "Default", Path: userDataDir})
	}
	return out
}

func isProfileDir(name string) bool {
	return name == "Default" || strings.HasPrefix(name, "Profile ")
}

func profileRank(name string) int {
	if name == "Default" {
		return 0
	}
	return 1
}

func hasHistory(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, history.HistoryFile))
	return err == nil && info.Mode().IsRegular()
}

// localStateNames reads the display names browsers keep for their profiles
// in "Local State". Missing or unreadable files yield an empty map.
func localStateNames(userDataDir string) map[string]string {
	data, err := os.ReadFile(filepath.Join(userDataDir, "Local State"))
	if err != nil {
		return map[string]string{}
	}

	var state struct {
		Profile struct {
			InfoCache map[string]struct {
				Name string `json:"name"`
			} `json:"info_cache"`
		} `json:"profile"`
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return map[string]string{}
	}

	names := make(map[string]string, len(state.Profile.InfoCache))
	for dir, info := range state.Profile.InfoCache {
		names[dir] = info.Name
	}
	return names
}
