//go:build darwin && cgo

package process_darwin

/*
#include <stdlib.h>
#include <sys/param.h>
#include <mach/mach.h>
#include <mach/mach_error.h>
#include <mach/mach_vm.h>
#include <libproc.h>

static kern_return_t open_task(int pid, task_t *task) {
	return task_for_pid(mach_task_self(), pid, task);
}

static kern_return_t close_task(task_t task) {
	return mach_port_deallocate(mach_task_self(), task);
}

static kern_return_t read_memory(task_t task, mach_vm_address_t addr, void *buf, mach_vm_size_t size, mach_vm_size_t *count) {
	return mach_vm_read_overwrite(task, addr, size, (mach_vm_address_t)buf, count);
}

static kern_return_t write_memory(task_t task, mach_vm_address_t addr, void *data, mach_msg_type_number_t size) {
	return mach_vm_write(task, addr, (vm_offset_t)data, size);
}

static kern_return_t allocate_memory(task_t task, mach_vm_address_t *addr, mach_vm_size_t size, int anywhere) {
	return mach_vm_allocate(task, addr, size, anywhere ? VM_FLAGS_ANYWHERE : VM_FLAGS_FIXED);
}

static kern_return_t region_info(task_t task, mach_vm_address_t *addr, mach_vm_size_t *size, int *prot) {
	vm_region_basic_info_data_64_t info;
	mach_msg_type_number_t count = VM_REGION_BASIC_INFO_COUNT_64;
	mach_port_t object_name;
	kern_return_t kr = mach_vm_region(task, addr, size, VM_REGION_BASIC_INFO_64,
		(vm_region_info_t)&info, &count, &object_name);
	if (kr == KERN_SUCCESS) {
		*prot = info.protection;
	}
	return kr;
}

static int task_pid(task_t task) {
	int pid = 0;
	if (pid_for_task(task, &pid) != KERN_SUCCESS) {
		return -1;
	}
	return pid;
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"memlayout/process"
)

// machError carries a kern_return_t
type machError int

func (e machError) Error() string {
	return fmt.Sprintf("kern_return %d: %s", int(e), C.GoString(C.mach_error_string(C.mach_error_t(e))))
}

func check(op string, addr process.ProcessMemoryAddress, size process.ProcessMemorySize, kr C.kern_return_t) error {
	if kr == C.KERN_SUCCESS {
		return nil
	}
	return process.NewForeignCallError(op, addr, size, machError(kr))
}

func taskForPID(pid process.ProcessID) (process.Handle, error) {
	var task C.task_t
	if err := check("task_for_pid", 0, 0, C.open_task(C.int(pid), &task)); err != nil {
		return 0, err
	}
	return process.Handle(task), nil
}

func closeTask(h process.Handle) error {
	return check("mach_port_deallocate", 0, 0, C.close_task(C.task_t(h)))
}

func pidForTask(h process.Handle) (int, error) {
	pid := int(C.task_pid(C.task_t(h)))
	if pid < 0 {
		return 0, process.NewForeignCallError("pid_for_task", 0, 0, fmt.Errorf("task %d", uintptr(h)))
	}
	return pid, nil
}

func readMemory(h process.Handle, addr process.ProcessMemoryAddress, buf []byte) error {
	var count C.mach_vm_size_t
	size := process.ProcessMemorySize(len(buf))
	kr := C.read_memory(C.task_t(h), C.mach_vm_address_t(addr), unsafe.Pointer(&buf[0]), C.mach_vm_size_t(len(buf)), &count)
	if err := check("mach_vm_read_overwrite", addr, size, kr); err != nil {
		return err
	}
	if int(count) != len(buf) {
		return process.NewForeignCallError("mach_vm_read_overwrite", addr, size,
			fmt.Errorf("partial read: %d of %d bytes", int(count), len(buf)))
	}
	return nil
}

func writeMemory(h process.Handle, addr process.ProcessMemoryAddress, data []byte) error {
	kr := C.write_memory(C.task_t(h), C.mach_vm_address_t(addr), unsafe.Pointer(&data[0]), C.mach_msg_type_number_t(len(data)))
	return check("mach_vm_write", addr, process.ProcessMemorySize(len(data)), kr)
}

func allocate(h process.Handle, hint process.ProcessMemoryAddress, size process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	addr := C.mach_vm_address_t(hint)
	anywhere := C.int(0)
	if hint == 0 {
		anywhere = 1
	}
	if err := check("mach_vm_allocate", hint, size, C.allocate_memory(C.task_t(h), &addr, C.mach_vm_size_t(size), anywhere)); err != nil {
		return 0, err
	}
	return process.ProcessMemoryAddress(addr), nil
}

func deallocate(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) error {
	return check("mach_vm_deallocate", addr, size, C.mach_vm_deallocate(C.task_t(h), C.mach_vm_address_t(addr), C.mach_vm_size_t(size)))
}

func protect(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize, prot uint32) error {
	kr := C.mach_vm_protect(C.task_t(h), C.mach_vm_address_t(addr), C.mach_vm_size_t(size), 0, C.vm_prot_t(prot))
	return check("mach_vm_protect", addr, size, kr)
}

// region returns the first region at or above addr
func region(h process.Handle, addr process.ProcessMemoryAddress) (process.ProcessMemoryAddress, process.ProcessMemorySize, uint32, error) {
	start := C.mach_vm_address_t(addr)
	var size C.mach_vm_size_t
	var prot C.int
	if err := check("mach_vm_region", addr, 0, C.region_info(C.task_t(h), &start, &size, &prot)); err != nil {
		return 0, 0, 0, err
	}
	return process.ProcessMemoryAddress(start), process.ProcessMemorySize(size), uint32(prot), nil
}

func listPIDs() ([]int, error) {
	n := C.proc_listallpids(nil, 0)
	if n <= 0 {
		return nil, process.NewForeignCallError("proc_listallpids", 0, 0, fmt.Errorf("returned %d", int(n)))
	}
	// leave room for processes started between the two calls
	buf := make([]C.int, int(n)+32)
	n = C.proc_listallpids(unsafe.Pointer(&buf[0]), C.int(len(buf))*C.int(unsafe.Sizeof(buf[0])))
	if n <= 0 {
		return nil, process.NewForeignCallError("proc_listallpids", 0, 0, fmt.Errorf("returned %d", int(n)))
	}
	pids := make([]int, 0, int(n))
	for _, pid := range buf[:int(n)] {
		if pid > 0 {
			pids = append(pids, int(pid))
		}
	}
	return pids, nil
}

func procName(pid int) string {
	buf := make([]byte, 2*C.MAXCOMLEN+1)
	n := C.proc_name(C.int(pid), unsafe.Pointer(&buf[0]), C.uint32_t(len(buf)))
	if n <= 0 {
		return ""
	}
	return string(buf[:int(n)])
}

func procPath(pid int) string {
	buf := make([]byte, C.PROC_PIDPATHINFO_MAXSIZE)
	n := C.proc_pidpath(C.int(pid), unsafe.Pointer(&buf[0]), C.uint32_t(len(buf)))
	if n <= 0 {
		return ""
	}
	return string(buf[:int(n)])
}
