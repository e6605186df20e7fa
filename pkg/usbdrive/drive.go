// Package usbdrive provisions and mounts the FAT32 disk image that the
// emulated USB mass-storage gadget exposes to the TV.
package usbdrive

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultSizeMB is the exchange image size used when none is given.
const DefaultSizeMB = 512

// Drive manages one exchange disk image.
type Drive struct {
	imagePath string
	log       *logrus.Entry
}

func New(imagePath string, log *logrus.Entry) *Drive {
	return &Drive{
		imagePath: imagePath,
		log:       log.WithField("image", imagePath),
	}
}

// Create provisions the exchange image as a sparse file formatted FAT32.
// An existing image is refused rather than reformatted.
func (d *Drive) Create(sizeMB int) error {
	if _, err := os.Stat(d.imagePath); err == nil {
		return fmt.Errorf("image %s already exists", d.imagePath)
	}
	if sizeMB <= 0 {
		sizeMB = DefaultSizeMB
	}

	if err := checkSudoAvailable(); err != nil {
		return fmt.Errorf("sudo access required: %w", err)
	}

	if err := d.createSparseFile(sizeMB); err != nil {
		return fmt.Errorf("failed to create sparse file: %w", err)
	}

	if err := d.formatFAT32(); err != nil {
		d.cleanup()
		return fmt.Errorf("failed to format FAT32: %w", err)
	}

	d.log.WithField("size_mb", sizeMB).Info("created exchange image")
	return nil
}

// Mount loop-mounts the image at mountPoint and returns the loop device.
// An already-mounted image is left in place.
func (d *Drive) Mount(mountPoint string) (string, error) {
	if err := checkSudoAvailable(); err != nil {
		return "", fmt.Errorf("sudo access required: %w", err)
	}

	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return "", fmt.Errorf("failed to create mount point: %w", err)
	}

	if !isMounted(mountPoint) {
		// uid/gid options let the unprivileged caller write into the
		// vfat tree.
		opts := fmt.Sprintf("loop,uid=%d,gid=%d", os.Getuid(), os.Getgid())
		cmd := exec.Command("sudo", "mount", "-o", opts, d.imagePath, mountPoint)
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("failed to mount image: %w", err)
		}
		d.log.WithField("mount_point", mountPoint).Info("mounted exchange image")
	}

	return d.loopDevice()
}

// Unmount detaches the image wherever it is mounted. An image that is not
// mounted is not an error.
func (d *Drive) Unmount() error {
	mountPoint, ok, err := d.mountPoint()
	if err != nil || !ok {
		return err
	}
	return d.unmountAt(mountPoint)
}

// Remount cycles the image's mount so the mass-storage gadget re-reads the
// filesystem. The image must currently be mounted.
func (d *Drive) Remount() error {
	mountPoint, ok, err := d.mountPoint()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("image %s is not mounted", d.imagePath)
	}

	if err := d.unmountAt(mountPoint); err != nil {
		return err
	}
	if _, err := d.Mount(mountPoint); err != nil {
		return err
	}
	return nil
}

// mountPoint resolves where the image is currently mounted.
func (d *Drive) mountPoint() (string, bool, error) {
	device, ok, err := d.attachedDevice()
	if err != nil || !ok {
		return "", false, err
	}

	table, err := mountTable()
	if err != nil {
		return "", false, err
	}
	mountPoint, ok := mountPointFor(table, device)
	return mountPoint, ok, nil
}

func (d *Drive) unmountAt(mountPoint string) error {
	cmd := exec.Command("sudo", "umount", mountPoint)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", mountPoint, err)
	}
	d.log.WithField("mount_point", mountPoint).Info("unmounted exchange image")
	return nil
}

// Remove deletes the exchange image file.
func (d *Drive) Remove() error {
	if err := os.Remove(d.imagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove image %s: %w", d.imagePath, err)
	}
	return nil
}

func (d *Drive) createSparseFile(sizeMB int) error {
	cmd := exec.Command("dd", "if=/dev/zero", "of="+d.imagePath, "bs=1M", "count=0", fmt.Sprintf("seek=%d", sizeMB))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to create sparse file with dd: %w", err)
	}
	return nil
}

func (d *Drive) formatFAT32() error {
	cmd := exec.Command("sudo", "mkfs.vfat", "-F", "32", "-n", "BINGWALL", d.imagePath)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to run mkfs.vfat: %w", err)
	}
	return nil
}

// loopDevice returns the loop device the image is attached to.
func (d *Drive) loopDevice() (string, error) {
	device, ok, err := d.attachedDevice()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("image %s is not attached to a loop device", d.imagePath)
	}
	return device, nil
}

// attachedDevice looks the image up in the loop device table.
func (d *Drive) attachedDevice() (string, bool, error) {
	cmd := exec.Command("losetup", "-j", d.imagePath)
	output, err := cmd.Output()
	if err != nil {
		return "", false, fmt.Errorf("failed to run losetup: %w", err)
	}
	device, ok := parseLoopDevice(string(output), d.imagePath)
	return device, ok, nil
}

func (d *Drive) cleanup() {
	if err := os.Remove(d.imagePath); err != nil && !os.IsNotExist(err) {
		d.log.WithError(err).Warn("failed to clean up image file")
	}
}

func checkSudoAvailable() error {
	cmd := exec.Command("sudo", "-n", "true")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sudo access not available (run 'sudo true' first or configure passwordless sudo): %w", err)
	}
	return nil
}

func isMounted(mountPoint string) bool {
	output, err := mountTable()
	if err != nil {
		return false
	}
	_, ok := deviceFor(output, mountPoint)
	return ok
}

func mountTable() (string, error) {
	cmd := exec.Command("mount")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to read mount table: %w", err)
	}
	return string(output), nil
}

// parseLoopDevice extracts the loop device from `losetup -j` output, lines
// like "/dev/loop0: [2049]:131 (/path/image.img)".
func parseLoopDevice(output, imagePath string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "("+imagePath+")") {
			continue
		}
		device, _, found := strings.Cut(line, ":")
		if found && strings.HasPrefix(device, "/dev/") {
			return device, true
		}
	}
	return "", false
}

// mountPointFor extracts where device is mounted from `mount` output,
// lines like "/dev/loop0 on /mnt/exchange type vfat (rw)".
func mountPointFor(output, device string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[0] == device && fields[1] == "on" {
			return fields[2], true
		}
	}
	return "", false
}

// deviceFor is the inverse lookup: which device is mounted at mountPoint.
func deviceFor(output, mountPoint string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[1] == "on" && fields[2] == mountPoint {
			return fields[0], true
		}
	}
	return "", false
}
