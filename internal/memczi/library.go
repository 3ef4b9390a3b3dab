package memczi

import (
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/robert-malhotra/go-czi/internal/capi"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type objectKind int

const (
	kindInputStream objectKind = iota
	kindOutputStream
	kindReader
	kindWriter
	kindSubBlock
	kindBitmap
	kindMetadataSegment
	kindAttachment
)

func (k objectKind) String() string {
	switch k {
	case kindInputStream:
		return "input stream"
	case kindOutputStream:
		return "output stream"
	case kindReader:
		return "reader"
	case kindWriter:
		return "writer"
	case kindSubBlock:
		return "sub-block"
	case kindBitmap:
		return "bitmap"
	case kindMetadataSegment:
		return "metadata segment"
	case kindAttachment:
		return "attachment"
	}
	return "unknown"
}

type object struct {
	kind  objectKind
	value any
}

// Library is the in-memory emulation of the native library. The zero value
// is not usable; create instances with New.
type Library struct {
	mu      sync.Mutex
	next    capi.Handle
	objects map[capi.Handle]*object

	created        int
	released       int
	doubleReleases int
}

// New creates an empty emulation instance.
func New() *Library {
	return &Library{next: 1, objects: make(map[capi.Handle]*object)}
}

// Register installs a fresh emulation instance as the process-wide default
// backend and returns it. If a default is already registered the existing
// one stays in place and the new instance is still returned for direct use.
func Register() *Library {
	lib := New()
	capi.RegisterDefault(lib)
	return lib
}

// Stats reports handle accounting: objects handed out, objects released,
// and releases of handles that were already gone.
func (l *Library) Stats() (created, released, doubleReleases int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.created, l.released, l.doubleReleases
}

// LiveHandles reports how many handles are still outstanding.
func (l *Library) LiveHandles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.objects)
}

func (l *Library) add(kind objectKind, value any) capi.Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.next
	l.next++
	l.objects[h] = &object{kind: kind, value: value}
	l.created++
	return h
}

func (l *Library) lookup(h capi.Handle, kind objectKind) (any, capi.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	obj, ok := l.objects[h]
	if !ok || obj.kind != kind {
		return nil, capi.StatusInvalidHandle
	}
	return obj.value, capi.StatusOK
}

// remove deletes the handle from the table and returns its value. A second
// release of the same handle is counted and fails with StatusInvalidHandle.
func (l *Library) remove(h capi.Handle, kind objectKind) (any, capi.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	obj, ok := l.objects[h]
	if !ok || obj.kind != kind {
		l.doubleReleases++
		return nil, capi.StatusInvalidHandle
	}
	delete(l.objects, h)
	l.released++
	return obj.value, capi.StatusOK
}

// GetErrorMessage returns a human-readable description of a status code.
func (l *Library) GetErrorMessage(code capi.Status) (string, capi.Status) {
	switch code {
	case capi.StatusOK:
		return "no error", capi.StatusOK
	case capi.StatusInvalidArgument:
		return "invalid argument", capi.StatusOK
	case capi.StatusInvalidHandle:
		return "invalid handle", capi.StatusOK
	case capi.StatusOutOfMemory:
		return "out of memory", capi.StatusOK
	case capi.StatusIndexOutOfRange:
		return "index out of range", capi.StatusOK
	case capi.StatusLockUnlockViolated:
		return "lock/unlock semantics violated", capi.StatusOK
	case capi.StatusStreamIO:
		return "stream I/O failure", capi.StatusOK
	case capi.StatusCorruptData:
		return "corrupt container data", capi.StatusOK
	case capi.StatusUnsupported:
		return "operation not supported", capi.StatusOK
	case capi.StatusUnspecified:
		return "unspecified error", capi.StatusOK
	}
	return "unknown status", capi.StatusOK
}

// GetVersionInfo reports the emulated library version.
func (l *Library) GetVersionInfo() (capi.VersionInfo, capi.Status) {
	return capi.VersionInfo{Major: 0, Minor: 63, Patch: 2, Tweak: 0}, capi.StatusOK
}

// GetBuildInformation reports how this backend was built.
func (l *Library) GetBuildInformation() (capi.BuildInformation, capi.Status) {
	return capi.BuildInformation{
		CompilerIdentification: "memczi (pure Go emulation)",
		RepositoryURL:          "https://github.com/robert-malhotra/go-czi",
		RepositoryBranch:       "main",
		RepositoryTag:          "",
	}, capi.StatusOK
}

var _ capi.Library = (*Library)(nil)
