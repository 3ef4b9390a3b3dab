package czi

import (
	"github.com/robert-malhotra/go-czi/internal/capi"
)

// VersionInfo is the native library's version.
type VersionInfo struct {
	Major, Minor, Patch, Tweak int
}

// BuildInformation describes how the native library was built.
type BuildInformation struct {
	CompilerIdentification string
	RepositoryURL          string
	RepositoryBranch       string
	RepositoryTag          string
}

// NativeVersion queries the process-default native backend for its version.
func NativeVersion() (VersionInfo, error) {
	lib, ok := capi.Default()
	if !ok {
		return VersionInfo{}, layerError(KindNativeInternal, "native version", "no native library backend linked")
	}
	v, st := lib.GetVersionInfo()
	if !st.OK() {
		return VersionInfo{}, statusError(lib, "native version", st)
	}
	return VersionInfo{
		Major: int(v.Major),
		Minor: int(v.Minor),
		Patch: int(v.Patch),
		Tweak: int(v.Tweak),
	}, nil
}

// NativeBuildInformation queries the process-default native backend for its
// build information.
func NativeBuildInformation() (BuildInformation, error) {
	lib, ok := capi.Default()
	if !ok {
		return BuildInformation{}, layerError(KindNativeInternal, "native build info", "no native library backend linked")
	}
	b, st := lib.GetBuildInformation()
	if !st.OK() {
		return BuildInformation{}, statusError(lib, "native build info", st)
	}
	return BuildInformation{
		CompilerIdentification: b.CompilerIdentification,
		RepositoryURL:          b.RepositoryURL,
		RepositoryBranch:       b.RepositoryBranch,
		RepositoryTag:          b.RepositoryTag,
	}, nil
}
