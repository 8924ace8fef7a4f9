//go:build darwin

package procinfo

import (
	"path/filepath"
	"unsafe"
)

/*
#include <libproc.h>
#include <sys/proc_info.h>
#include <stdlib.h>
*/
import "C"

func processInfo(pid int) (Info, bool) {
	ppid, ok := ppidOf(pid)
	if !ok {
		return Info{}, false
	}
	exe, ok := exeOf(pid)
	if !ok {
		return Info{}, false
	}
	return Info{PPID: ppid, Exe: exe}, true
}

func ppidOf(pid int) (int, bool) {
	var info C.struct_proc_bsdinfo
	size := C.int(unsafe.Sizeof(info))
	ret := C.proc_pidinfo(C.int(pid), C.PROC_PIDTBSDINFO, 0, unsafe.Pointer(&info), size)
	if ret != size {
		return 0, false
	}
	return int(info.pbi_ppid), true
}

func exeOf(pid int) (string, bool) {
	buf := make([]byte, 4096)
	ret := C.proc_pidpath(C.int(pid), unsafe.Pointer(&buf[0]), C.uint32_t(len(buf)))
	if ret <= 0 {
		return "", false
	}
	path := string(buf[:ret])
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved, true
	}
	return path, true
}

func cwdOf(pid int) string {
	var info C.struct_proc_vnodepathinfo
	size := C.int(unsafe.Sizeof(info))
	ret := C.proc_pidinfo(C.int(pid), C.PROC_PIDVNODEPATHINFO, 0, unsafe.Pointer(&info), size)
	if ret != size {
		return ""
	}
	path := C.GoString(&info.pvi_cdir.vip_path[0])
	return path
}

func listAllPIDs() []int {
	count := C.proc_listallpids(nil, 0)
	if count <= 0 {
		return nil
	}
	capacity := int(count) + 64
	buf := make([]C.int, capacity)
	actual := C.proc_listallpids(unsafe.Pointer(&buf[0]), C.int(capacity)*C.int(unsafe.Sizeof(buf[0])))
	if actual <= 0 {
		return nil
	}
	pids := make([]int, 0, actual)
	for _, p := range buf[:actual] {
		if p > 0 {
			pids = append(pids, int(p))
		}
	}
	return pids
}
