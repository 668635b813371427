//go:build windows

package security

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32                       = windows.NewLazySystemDLL("kernel32.dll")
	procIsDebuggerPresent          = kernel32.NewProc("IsDebuggerPresent")
	procCheckRemoteDebuggerPresent = kernel32.NewProc("CheckRemoteDebuggerPresent")
	ntdll                          = windows.NewLazySystemDLL("ntdll.dll")
	procNtSetInformationThread     = ntdll.NewProc("NtSetInformationThread")
	user32                         = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextW             = user32.NewProc("GetWindowTextW")
)

const (
	processDebugPort         = 7
	processDebugObjectHandle = 30
	processDebugFlags        = 31
	threadHideFromDebugger   = 0x11
)

// DefaultProbes returns the battery in check order.
func DefaultProbes() []Probe {
	return []Probe{
		FlagProbe("debugger-present", debuggerPresent),
		FlagProbe("remote-debugger", remoteDebuggerPresent),
		ProcessProbe(listProcesses, windows.GetCurrentProcessId(), ProcessDenyList),
		ModuleProbe(listOwnModules, ModuleDenyList),
		TitleProbe(windowTitles, WindowDenyList),
		FlagProbe("nt-debug-port", ntDebugPort),
		FlagProbe("nt-debug-object", ntDebugObject),
		FlagProbe("nt-debug-flags", ntDebugFlags),
	}
}

func debuggerPresent() (bool, error) {
	if err := procIsDebuggerPresent.Find(); err != nil {
		return false, err
	}
	ret, _, _ := procIsDebuggerPresent.Call()
	return ret != 0, nil
}

func remoteDebuggerPresent() (bool, error) {
	if err := procCheckRemoteDebuggerPresent.Find(); err != nil {
		return false, err
	}
	var present int32
	ret, _, err := procCheckRemoteDebuggerPresent.Call(uintptr(windows.CurrentProcess()), uintptr(unsafe.Pointer(&present)))
	if ret == 0 {
		return false, err
	}
	return present != 0, nil
}

func ntDebugPort() (bool, error) {
	var port uintptr
	err := windows.NtQueryInformationProcess(windows.CurrentProcess(), processDebugPort,
		unsafe.Pointer(&port), uint32(unsafe.Sizeof(port)), nil)
	if err != nil {
		return false, err
	}
	return port != 0, nil
}

func ntDebugObject() (bool, error) {
	var obj windows.Handle
	err := windows.NtQueryInformationProcess(windows.CurrentProcess(), processDebugObjectHandle,
		unsafe.Pointer(&obj), uint32(unsafe.Sizeof(obj)), nil)
	if err != nil {
		// STATUS_PORT_NOT_SET when no debugger is attached
		return false, err
	}
	return obj != 0, nil
}

func ntDebugFlags() (bool, error) {
	var flags uint32
	err := windows.NtQueryInformationProcess(windows.CurrentProcess(), processDebugFlags,
		unsafe.Pointer(&flags), uint32(unsafe.Sizeof(flags)), nil)
	if err != nil {
		return false, err
	}
	// NoDebugInherit is cleared while being debugged
	return flags == 0, nil
}

// hideCurrentThread asks the kernel not to report debug events for the
// calling thread. Best-effort.
func hideCurrentThread() {
	if procNtSetInformationThread.Find() != nil {
		return
	}
	procNtSetInformationThread.Call(uintptr(windows.CurrentThread()), threadHideFromDebugger, 0, 0)
}

func listProcesses() ([]ProcessInfo, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("process snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))
	if err := windows.Process32First(snap, &pe); err != nil {
		return nil, fmt.Errorf("Process32First: %w", err)
	}

	var procs []ProcessInfo
	for {
		p := ProcessInfo{PID: pe.ProcessID, Exe: windows.UTF16ToString(pe.ExeFile[:])}
		if path := imagePath(pe.ProcessID); path != "" {
			p.Info = versions.lookup(path)
		}
		procs = append(procs, p)

		if err := windows.Process32Next(snap, &pe); err != nil {
			break
		}
	}
	return procs, nil
}

func imagePath(pid uint32) string {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return ""
	}
	return windows.UTF16ToString(buf[:size])
}

var versionKeys = []string{"ProductName", "FileDescription", "OriginalFilename", "InternalName", "CompanyName"}

// versionCache remembers version strings per image path; reading the
// resource of every process every tick is expensive.
type versionCache struct {
	mu      sync.Mutex
	entries map[string][]string
}

var versions = &versionCache{entries: make(map[string][]string)}

func (c *versionCache) lookup(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.entries[path]; ok {
		return v
	}
	if len(c.entries) > 4096 {
		c.entries = make(map[string][]string)
	}
	v := readVersionStrings(path)
	c.entries[path] = v
	return v
}

func readVersionStrings(path string) []string {
	size, err := windows.GetFileVersionInfoSize(path, nil)
	if err != nil || size == 0 {
		return nil
	}
	buf := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&buf[0])); err != nil {
		return nil
	}

	var trans *[2]uint16
	var n uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&buf[0]), `\VarFileInfo\Translation`, unsafe.Pointer(&trans), &n); err != nil || n < 4 {
		return nil
	}
	prefix := fmt.Sprintf(`\StringFileInfo\%04x%04x\`, trans[0], trans[1])

	var out []string
	for _, key := range versionKeys {
		var p *uint16
		var l uint32
		if err := windows.VerQueryValue(unsafe.Pointer(&buf[0]), prefix+key, unsafe.Pointer(&p), &l); err != nil || l == 0 {
			continue
		}
		if s := windows.UTF16PtrToString(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func listOwnModules() ([]string, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, windows.GetCurrentProcessId())
	if err != nil {
		return nil, fmt.Errorf("module snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var me windows.ModuleEntry32
	me.Size = uint32(unsafe.Sizeof(me))
	if err := windows.Module32First(snap, &me); err != nil {
		return nil, fmt.Errorf("Module32First: %w", err)
	}

	var mods []string
	for {
		mods = append(mods, windows.UTF16ToString(me.Module[:]))
		if err := windows.Module32Next(snap, &me); err != nil {
			break
		}
	}
	return mods, nil
}

// EnumWindows is synchronous, so one package-level collector guarded by a
// mutex is enough for the callback.
var (
	titlesMu      sync.Mutex
	titlesFound   []string
	enumWindowsCb = syscall.NewCallback(collectTitle)
)

func collectTitle(hwnd windows.HWND, _ uintptr) uintptr {
	buf := make([]uint16, 256)
	r, _, _ := procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n := int(int32(r)); n > 0 && n <= len(buf) {
		titlesFound = append(titlesFound, windows.UTF16ToString(buf[:n]))
	}
	return 1 // continue enumeration
}

func windowTitles() ([]string, error) {
	titlesMu.Lock()
	defer titlesMu.Unlock()

	titlesFound = titlesFound[:0]
	if err := windows.EnumWindows(enumWindowsCb, nil); err != nil {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	return append([]string(nil), titlesFound...), nil
}
