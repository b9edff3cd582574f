package config

import (
	"path/filepath"
	"runtime"

	"github.com/nexxt-run/nexxt/property"
)

// SeedRootVariables installs the standard readonly variables available
// at the configuration root: CFGFILE/CFG_DIR derived from the loaded
// document's path, and the platform/variant pair used by
// ${NEXXT_PLATFORM}/${NEXXT_VARIANT}-conditioned property values.
func SeedRootVariables(root *property.Collection, cfgFile string) {
	vars := root.Variables()
	_ = vars.Set("CFGFILE", cfgFile)
	_ = vars.Set("CFG_DIR", filepath.Dir(cfgFile))
	_ = vars.Set("NEXXT_PLATFORM", runtime.GOOS)
	_ = vars.Set("NEXXT_VARIANT", "release")
	vars.SetReadonlySet([]string{"CFGFILE", "CFG_DIR", "NEXXT_PLATFORM", "NEXXT_VARIANT"})
}

// SeedFilterVariables installs the standard readonly variables scoped
// to one filter instance: COMPOSITENAME/FILTERNAME/
// FULLQUALIFIEDFILTERNAME/APPNAME, resolved at composite-expansion time
// since fullyQualifiedName already encodes the composite nesting path.
func SeedFilterVariables(scope *property.Collection, appName, compositeName, filterName, fullyQualifiedName string) {
	vars := scope.Variables()
	_ = vars.Set("APPNAME", appName)
	_ = vars.Set("COMPOSITENAME", compositeName)
	_ = vars.Set("FILTERNAME", filterName)
	_ = vars.Set("FULLQUALIFIEDFILTERNAME", fullyQualifiedName)
	vars.SetReadonlySet([]string{"APPNAME", "COMPOSITENAME", "FILTERNAME", "FULLQUALIFIEDFILTERNAME"})
}
