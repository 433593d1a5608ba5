// Copyright (c) 2025 Justin Cranford

// Package sysinfo snapshots the host the process is running on at startup
// (CPU, RAM, hostname, host id, OS user) so it can be logged once alongside
// the telemetry service's startup banner. None of this is security-relevant
// state; it never appears in a signed response or persisted row.
package sysinfo

import (
	"fmt"
	"os/user"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// SysInfoProvider abstracts host introspection so tests can swap in a fixed
// mock instead of querying the real machine.
type SysInfoProvider interface {
	RuntimeGoArch() string
	RuntimeGoOS() string
	RuntimeNumCPU() int
	CPUInfo() (vendorID, family, physicalID, modelName string, err error)
	RAMSize() (uint64, error)
	OSHostname() (string, error)
	HostID() (string, error)
	UserInfo() (userID, groupID, username string, err error)
}

type realSysInfoProvider struct{}

// defaultSysInfoProvider queries the actual host via runtime, gopsutil, and
// os/user.
var defaultSysInfoProvider SysInfoProvider = realSysInfoProvider{}

func (realSysInfoProvider) RuntimeGoArch() string { return runtime.GOARCH }
func (realSysInfoProvider) RuntimeGoOS() string   { return runtime.GOOS }
func (realSysInfoProvider) RuntimeNumCPU() int    { return runtime.NumCPU() }

func (realSysInfoProvider) CPUInfo() (vendorID, family, physicalID, modelName string, err error) {
	infos, err := cpu.Info()
	if err != nil {
		return "", "", "", "", fmt.Errorf("sysinfo: cpu.Info: %w", err)
	}
	if len(infos) == 0 {
		return "", "", "", "", fmt.Errorf("sysinfo: cpu.Info returned no entries")
	}
	first := infos[0]
	return first.VendorID, first.Family, first.PhysicalID, first.ModelName, nil
}

func (realSysInfoProvider) RAMSize() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("sysinfo: mem.VirtualMemory: %w", err)
	}
	return vm.Total, nil
}

func (realSysInfoProvider) OSHostname() (string, error) {
	info, err := host.Info()
	if err != nil {
		return "", fmt.Errorf("sysinfo: host.Info: %w", err)
	}
	return info.Hostname, nil
}

func (realSysInfoProvider) HostID() (string, error) {
	info, err := host.Info()
	if err != nil {
		return "", fmt.Errorf("sysinfo: host.Info: %w", err)
	}
	return info.HostID, nil
}

func (realSysInfoProvider) UserInfo() (userID, groupID, username string, err error) {
	u, err := user.Current()
	if err != nil {
		return "", "", "", fmt.Errorf("sysinfo: user.Current: %w", err)
	}
	return u.Uid, u.Gid, u.Username, nil
}

// mockSysInfoProvider is a fixed, deterministic stand-in for tests that
// don't want to depend on the real host's CPU/RAM/hostname.
type fakeSysInfoProvider struct{}

var mockSysInfoProvider SysInfoProvider = fakeSysInfoProvider{}

func (fakeSysInfoProvider) RuntimeGoArch() string { return "amd64" }
func (fakeSysInfoProvider) RuntimeGoOS() string   { return "linux" }
func (fakeSysInfoProvider) RuntimeNumCPU() int    { return 8 }

func (fakeSysInfoProvider) CPUInfo() (vendorID, family, physicalID, modelName string, err error) {
	return "GenuineIntel", "6", "0", "Mock CPU Model", nil
}

func (fakeSysInfoProvider) RAMSize() (uint64, error) {
	return 17179869184, nil
}

func (fakeSysInfoProvider) OSHostname() (string, error) {
	return "mock-host", nil
}

func (fakeSysInfoProvider) HostID() (string, error) {
	return "00000000-0000-0000-0000-000000000000", nil
}

func (fakeSysInfoProvider) UserInfo() (userID, groupID, username string, err error) {
	return "1000", "1000", "mockuser", nil
}

// Snapshot is the subset of host info logged once at startup.
type Snapshot struct {
	GoArch   string
	GoOS     string
	NumCPU   int
	CPUModel string
	RAMBytes uint64
	Hostname string
	HostID   string
	Username string
}

// Collect gathers a Snapshot using provider (defaultSysInfoProvider in
// production, mockSysInfoProvider in tests that want determinism).
func Collect(provider SysInfoProvider) (Snapshot, error) {
	_, _, _, modelName, err := provider.CPUInfo()
	if err != nil {
		return Snapshot{}, err
	}
	ramSize, err := provider.RAMSize()
	if err != nil {
		return Snapshot{}, err
	}
	hostname, err := provider.OSHostname()
	if err != nil {
		return Snapshot{}, err
	}
	hostID, err := provider.HostID()
	if err != nil {
		return Snapshot{}, err
	}
	_, _, username, err := provider.UserInfo()
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		GoArch:   provider.RuntimeGoArch(),
		GoOS:     provider.RuntimeGoOS(),
		NumCPU:   provider.RuntimeNumCPU(),
		CPUModel: modelName,
		RAMBytes: ramSize,
		Hostname: hostname,
		HostID:   hostID,
		Username: username,
	}, nil
}

// DefaultProvider returns the production SysInfoProvider.
func DefaultProvider() SysInfoProvider { return defaultSysInfoProvider }
