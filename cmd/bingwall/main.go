package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bingwall/pkg/config"
	"bingwall/pkg/cycle"
	"bingwall/pkg/deliver"
	"bingwall/pkg/desktop"
	"bingwall/pkg/fetch"
	"bingwall/pkg/frametv"
	"bingwall/pkg/state"
	"bingwall/pkg/store"
)

const (
	catalogName      = "metadata.db"
	uploadRecordName = "ftv_uploaded_image_files.json"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "bingwall",
	Short: "Daily wallpaper fetcher for desktop and Samsung Frame TV",
	Long: `bingwall downloads the day's Bing or Peapix wallpaper into a local
collection, sets it as the desktop background, and optionally delivers it
to Samsung Frame TVs over the network or through a USB exchange image.
Each invocation runs one bounded retry cycle and exits; scheduling is left
to cron or launchd.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one fetch, desktop update, and TV delivery cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		states := state.NewStore(cfg.StateFile)
		if err := states.Acquire(); err != nil {
			return err
		}
		defer states.Release()

		st, closeStore, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		if moved, err := store.ConvertLayout(cfg.ImageDir, store.LayoutFor(cfg.FTV.Enabled), log); err != nil {
			log.WithError(err).Warn("failed to convert image tree layout")
		} else if moved > 0 {
			log.WithField("images", moved).Info("converted image tree layout")
		}

		deliverer, err := buildDeliverer(cfg, log)
		if err != nil {
			return err
		}

		fetcher := fetch.New(cfg, st, log)
		updater := desktop.NewUpdater(cfg, st, desktop.NewSetter(log), log)
		co := cycle.NewCoordinator(cfg, states, st, fetcher, updater, deliverer, log)

		outcome, err := co.RunCycle(cmd.Context(), time.Now())
		if err != nil {
			return err
		}

		fmt.Printf("Cycle finished: %s\n", outcome)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the retry state as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}

		st, err := state.NewStore(cfg.StateFile).Load()
		if err != nil {
			return fmt.Errorf("failed to load run state: %w", err)
		}

		out, err := json.MarshalIndent(cycle.StatusNow(time.Now(), st, cfg), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the stored wallpaper collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		st, closeStore, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		records, err := st.List()
		if err != nil {
			return fmt.Errorf("failed to list images: %w", err)
		}

		if len(records) == 0 {
			fmt.Println("No stored images found")
			return nil
		}

		fmt.Printf("%-12s %-8s %s\n", "DATE", "REGION", "TITLE")
		fmt.Println("--------------------------------------------------------------")
		for _, rec := range records {
			fmt.Printf("%-12s %-8s %s\n", rec.Date, rec.Region, rec.Title)
		}

		return nil
	},
}

var trimCmd = &cobra.Command{
	Use:   "trim",
	Short: "Evict the oldest images beyond the retention limit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		st, closeStore, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		evicted, err := st.EvictExcess(cfg.NumberOfImagesToKeep)
		if err != nil {
			return fmt.Errorf("failed to trim image collection: %w", err)
		}

		fmt.Printf("Evicted %d images, keeping at most %d\n", len(evicted), cfg.NumberOfImagesToKeep)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config [setting] [on|off]",
	Short: "Toggle a feature in the config file",
	Long: `Settings: desktop (desktop_img.enabled), ftv (ftv.enabled),
usb (ftv.usb_mode), autofetch (img_auto_fetch).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}

		on, err := parseToggle(args[1])
		if err != nil {
			return err
		}

		switch args[0] {
		case "desktop":
			cfg.DesktopImg.Enabled = on
		case "ftv":
			cfg.FTV.Enabled = on
		case "usb":
			cfg.FTV.USBMode = on
		case "autofetch":
			cfg.ImgAutoFetch = on
		default:
			return fmt.Errorf("unknown setting %q (want desktop, ftv, usb, or autofetch)", args[0])
		}

		if err := config.Save(cfg, configPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Set %s to %v\n", args[0], on)
		return nil
	},
}

func setup() (*config.Config, *logrus.Entry, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return cfg, logrus.NewEntry(log), nil
}

func openStore(cfg *config.Config, log *logrus.Entry) (*store.Store, func(), error) {
	if err := os.MkdirAll(cfg.ImageDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	cat, err := store.OpenCatalog(filepath.Join(cfg.ImageDir, catalogName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open image catalogue: %w", err)
	}

	st, err := store.New(cfg.ImageDir, store.LayoutFor(cfg.FTV.Enabled), cat, cfg.StoreJpgQuality, log)
	if err != nil {
		cat.Close()
		return nil, nil, fmt.Errorf("failed to open image store: %w", err)
	}
	return st, func() { cat.Close() }, nil
}

// buildDeliverer wires the transport for the configured delivery mode. The
// network transport needs the TV inventory up front; USB only needs the
// exchange image location under the image root.
func buildDeliverer(cfg *config.Config, log *logrus.Entry) (*deliver.Dispatcher, error) {
	mode := deliver.ModeFor(cfg.FTV)
	switch mode {
	case deliver.ModeUSB:
		return deliver.New(mode, deliver.NewUSB(cfg.ImageDir, log), nil, log), nil
	case deliver.ModeNetwork:
		dataPath := config.ResolveFTVDataPath(configPath, cfg.FTV.FTVData)
		targets, err := config.LoadFTVData(dataPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load TV inventory: %w", err)
		}
		record := filepath.Join(cfg.ImageDir, uploadRecordName)
		return deliver.New(mode, nil, frametv.NewManager(targets, record, log), log), nil
	default:
		return deliver.New(mode, nil, nil, log), nil
	}
}

func parseToggle(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "enable", "true":
		return true, nil
	case "off", "disable", "false":
		return false, nil
	}
	return false, fmt.Errorf("unknown toggle %q (want on or off)", s)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/bingwall/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(trimCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
