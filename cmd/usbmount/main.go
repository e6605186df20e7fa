package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bingwall/pkg/usbdrive"
)

var sizeMB int

var rootCmd = &cobra.Command{
	Use:   "usbmount",
	Short: "Privileged mount helper for the bingwall USB exchange image",
	Long: `usbmount provisions and mounts the FAT32 disk image that is exposed to the
TV as emulated USB mass storage. It requires passwordless sudo for
mkfs.vfat, mount, and umount.`,
}

var createCmd = &cobra.Command{
	Use:   "create [image]",
	Short: "Provision a FAT32 exchange image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drive := usbdrive.New(args[0], newLog())
		if err := drive.Create(sizeMB); err != nil {
			return fmt.Errorf("failed to create %s: %w", args[0], err)
		}
		return nil
	},
}

var mountCmd = &cobra.Command{
	Use:   "mount [image] [mount-point]",
	Short: "Loop-mount the exchange image and print the loop device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		drive := usbdrive.New(args[0], newLog())
		device, err := drive.Mount(args[1])
		if err != nil {
			return fmt.Errorf("failed to mount %s: %w", args[0], err)
		}
		fmt.Println(device)
		return nil
	},
}

var unmountCmd = &cobra.Command{
	Use:   "unmount [image]",
	Short: "Unmount the exchange image wherever it is mounted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drive := usbdrive.New(args[0], newLog())
		if err := drive.Unmount(); err != nil {
			return fmt.Errorf("failed to unmount %s: %w", args[0], err)
		}
		return nil
	},
}

var remountCmd = &cobra.Command{
	Use:   "remount [image]",
	Short: "Cycle the exchange image's mount so the TV re-reads it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drive := usbdrive.New(args[0], newLog())
		if err := drive.Remount(); err != nil {
			return fmt.Errorf("failed to remount %s: %w", args[0], err)
		}
		return nil
	},
}

// newLog keeps stdout clean; mount's stdout is the loop device path.
func newLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	return logrus.NewEntry(log)
}

func init() {
	createCmd.Flags().IntVar(&sizeMB, "size", usbdrive.DefaultSizeMB, "image size in MB")
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(unmountCmd)
	rootCmd.AddCommand(remountCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
