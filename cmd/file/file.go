// Package file implements the one-shot file analysis subcommand.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agroguard/leafguard-go/internal/conf"
	"github.com/agroguard/leafguard-go/internal/datastore"
	"github.com/agroguard/leafguard-go/internal/detection"
	"github.com/agroguard/leafguard-go/internal/imagecheck"
	"github.com/agroguard/leafguard-go/internal/leafnet"
	"github.com/agroguard/leafguard-go/internal/taxonomy"
)

// Command returns the file subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		growerID  uint
		plantType string
	)

	cmd := &cobra.Command{
		Use:   "file [image.jpg]",
		Short: "Analyze a single leaf photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analyzeFile(settings, args[0], growerID, plantType)
		},
	}

	cmd.PersistentFlags().UintVar(&growerID, "grower", 1, "Grower ID to record the detection under")
	cmd.PersistentFlags().StringVar(&plantType, "plant", "", "Declared plant type")

	return cmd
}

// analyzeFile runs one image through the same pipeline the server uses, so a
// CLI run leaves the same records behind as an upload would.
func analyzeFile(settings *conf.Settings, path string, growerID uint, plantType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	ln, err := leafnet.New(settings)
	if err != nil {
		return fmt.Errorf("failed to load classifier: %w", err)
	}
	defer ln.Delete()

	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() { _ = ds.Close() }()

	service := detection.NewService(settings,
		imagecheck.New(&settings.Validator),
		ln,
		taxonomy.NewResolver(ds),
		ds, nil)

	outcome, err := service.Process(context.Background(),
		detection.GrowerContext{GrowerID: growerID},
		filepath.Base(path), plantType, data)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if outcome.Rejection != nil {
		os.Exit(1)
	}
	return nil
}
