package features

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const drmRoot = "/sys/class/drm"

// builtinProbes maps every capability to its detection test. Each test is a
// cheap existence check or a single bounded command invocation.
func builtinProbes() map[Capability]ProbeFunc {
	return map[Capability]ProbeFunc{
		Sensors: func(ctx context.Context) bool {
			out, err := commandOutput(ctx, "sensors")
			return err == nil && len(out) > 10
		},
		ZFS: func(ctx context.Context) bool {
			return pathExists("/proc/spl/kstat/zfs") || binaryExists("zpool")
		},
		GPUNvidia: func(ctx context.Context) bool {
			out, err := commandOutput(ctx, "nvidia-smi", "-L")
			return err == nil && strings.Contains(string(out), "GPU")
		},
		GPUAMD: func(ctx context.Context) bool {
			if drmVendorPresent(drmRoot, "0x1002", nil) {
				return true
			}
			return commandSucceeds(ctx, "rocm-smi", "--showid")
		},
		GPUIntel: func(ctx context.Context) bool {
			// Only discrete Arc/Xe parts, not integrated graphics.
			return drmVendorPresent(drmRoot, "0x8086", []string{"0x56", "0x4c"})
		},
		VMQemu: func(ctx context.Context) bool {
			return commandSucceeds(ctx, "qm", "list")
		},
		VMLXC: func(ctx context.Context) bool {
			return commandSucceeds(ctx, "pct", "list")
		},
		SMART: func(ctx context.Context) bool {
			return binaryExists("smartctl")
		},
		IPMI: func(ctx context.Context) bool {
			return commandSucceeds(ctx, "ipmitool", "sensor")
		},
	}
}

func binaryExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func commandOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	if !binaryExists(name) {
		return nil, exec.ErrNotFound
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

func commandSucceeds(ctx context.Context, name string, args ...string) bool {
	_, err := commandOutput(ctx, name, args...)
	return err == nil
}

// drmVendorPresent scans root for card devices whose vendor file matches
// vendorID. If devicePrefixes is non-empty, the device ID must also match
// one of the prefixes.
func drmVendorPresent(root, vendorID string, devicePrefixes []string) bool {
	vendorFiles, err := filepath.Glob(filepath.Join(root, "card*", "device", "vendor"))
	if err != nil {
		return false
	}

	for _, vendorFile := range vendorFiles {
		vendor, err := os.ReadFile(vendorFile)
		if err != nil || strings.TrimSpace(string(vendor)) != vendorID {
			continue
		}

		if len(devicePrefixes) == 0 {
			return true
		}

		device, err := os.ReadFile(filepath.Join(filepath.Dir(vendorFile), "device"))
		if err != nil {
			continue
		}
		deviceID := strings.TrimSpace(string(device))
		for _, prefix := range devicePrefixes {
			if strings.HasPrefix(deviceID, prefix) {
				return true
			}
		}
	}

	return false
}
