package versioning

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/specialistvlad/sosappend/internal/sos"
)

const (
	pointerName   = "latest"
	versionPrefix = "v"
	figuresDir    = "figs"
)

// Layout maps (continent, run type, version) onto result store keys:
//
//	{prefix}/{continent}/{run_type}/v{version}
//	{prefix}/{continent}/{run_type}/latest
//	{prefix}/figs/{continent}/{run_type}/v{version}/{name}
type Layout struct {
	Prefix string
}

func (l Layout) base(continent string, runType module.RunType) string {
	return path.Join(l.Prefix, continent, string(runType))
}

// PointerKey is the key of the latest pointer.
func (l Layout) PointerKey(continent string, runType module.RunType) string {
	return l.base(continent, runType) + "/" + pointerName
}

// VersionKey is the key of a version blob.
func (l Layout) VersionKey(continent string, runType module.RunType, version uint64) string {
	return l.base(continent, runType) + "/" + versionPrefix + sos.VersionLabel(version)
}

// FigureKey is the key of a figure uploaded alongside a version.
func (l Layout) FigureKey(continent string, runType module.RunType, version uint64, name string) string {
	return path.Join(l.Prefix, figuresDir, continent, string(runType), versionPrefix+sos.VersionLabel(version), path.Base(name))
}

// versionsPrefix is the listing prefix of every key under a continent and run type.
func (l Layout) versionsPrefix(continent string, runType module.RunType) string {
	return l.base(continent, runType) + "/" + versionPrefix
}

// ParseVersionKey extracts the version number of a key produced by VersionKey.
func (l Layout) ParseVersionKey(continent string, runType module.RunType, key string) (uint64, error) {
	rest, ok := strings.CutPrefix(key, l.versionsPrefix(continent, runType))
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return 0, fmt.Errorf("%q is not a version key", key)
	}
	v, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a version key: %w", key, err)
	}
	return v, nil
}
