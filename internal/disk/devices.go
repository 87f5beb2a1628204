package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"arch-setup/internal/system"
)

// Device is a whole block device a layout can be written to.
type Device struct {
	Path      string
	Model     string
	Size      uint64
	Removable bool
}

// String renders the device for selection menus.
func (d Device) String() string {
	model := strings.TrimSpace(d.Model)
	if model == "" {
		model = "unknown model"
	}
	return fmt.Sprintf("%s (%s, %s)", d.Path, model, HumanSize(d.Size))
}

type lsblkOutput struct {
	BlockDevices []struct {
		Name  string      `json:"name"`
		Path  string      `json:"path"`
		Model *string     `json:"model"`
		Size  json.Number `json:"size"`
		Type  string      `json:"type"`
		RM    flexBool    `json:"rm"`
		RO    flexBool    `json:"ro"`
	} `json:"blockdevices"`
}

// flexBool accepts both the boolean and the "0"/"1" encodings lsblk has used
// across util-linux versions.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "true", "1":
		*b = true
	case "false", "0", "null", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// ListDevices returns the writable disks reported by lsblk.
func ListDevices(ctx context.Context, exec system.Executor) ([]Device, error) {
	res, err := exec.Run(ctx, system.Command{
		Name: "lsblk",
		Args: []string{"--json", "--bytes", "--nodeps", "-o", "NAME,PATH,MODEL,SIZE,TYPE,RM,RO"},
	})
	if err != nil {
		return nil, fmt.Errorf("listing block devices: %w", err)
	}
	return ParseLsblk(res.Output)
}

// ParseLsblk decodes `lsblk --json --bytes` output, keeping writable disks only.
func ParseLsblk(data []byte) ([]Device, error) {
	var out lsblkOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode lsblk output: %w", err)
	}

	var devices []Device
	for _, bd := range out.BlockDevices {
		if bd.Type != "disk" || bool(bd.RO) {
			continue
		}
		size, err := bd.Size.Int64()
		if err != nil {
			return nil, fmt.Errorf("device %s: invalid size %q", bd.Name, bd.Size)
		}
		path := bd.Path
		if path == "" {
			path = "/dev/" + bd.Name
		}
		model := ""
		if bd.Model != nil {
			model = *bd.Model
		}
		devices = append(devices, Device{
			Path:      path,
			Model:     model,
			Size:      uint64(size),
			Removable: bool(bd.RM),
		})
	}
	return devices, nil
}

// PartitionPath returns the device node of partition number n (1-based) on dev,
// following the kernel naming rule: nvme0n1 -> nvme0n1p1, sda -> sda1.
func PartitionPath(dev string, n int) string {
	if last := dev[len(dev)-1]; last >= '0' && last <= '9' {
		return fmt.Sprintf("%sp%d", dev, n)
	}
	return fmt.Sprintf("%s%d", dev, n)
}
