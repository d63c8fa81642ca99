package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"storemybottle-backend/models"
	"storemybottle-backend/store"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout accepted by the seed command.
type SeedFile struct {
	Venues []SeedVenue `yaml:"venues"`
}

type SeedVenue struct {
	Name    string       `yaml:"name"`
	Address string       `yaml:"address"`
	Bottles []SeedBottle `yaml:"bottles"`
}

type SeedBottle struct {
	Brand         string  `yaml:"brand"`
	Type          string  `yaml:"type"`
	Size          string  `yaml:"size"`
	Price         float64 `yaml:"price"`
	TotalVolumeML int     `yaml:"total_volume_ml"`
	Inactive      bool    `yaml:"inactive,omitempty"`
}

type SeedOptions struct {
	*RootOptions
	File  string
	Force bool
}

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample venues and bottles from a YAML file",
		Long: `Load venues and their bottles from a YAML file. Seeding is skipped
when venues already exist unless --force is given.

Example:
  storemybottle seed --file ./testdata/seed.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := loadApp(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			file, err := os.Open(opts.File)
			if err != nil {
				return fmt.Errorf("failed to open seed file: %w", err)
			}
			defer file.Close()

			venues, bottles, err := Seed(ctx, a.store, file, opts.Force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d venue(s), %d bottle(s)\n", venues, bottles)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "path to the seed YAML file (required)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "seed even if venues already exist")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// Seed decodes r and inserts its venues and bottles. It does nothing when the
// catalog already has venues and force is false.
func Seed(ctx context.Context, st store.CatalogStore, r io.Reader, force bool) (int, int, error) {
	var file SeedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return 0, 0, fmt.Errorf("failed to decode seed file: %w", err)
	}

	if !force {
		existing, err := st.ListVenues(ctx)
		if err != nil {
			return 0, 0, err
		}
		if len(existing) > 0 {
			return 0, 0, nil
		}
	}

	now := time.Now().UTC()
	venues, bottles := 0, 0
	for _, v := range file.Venues {
		if v.Name == "" {
			return venues, bottles, fmt.Errorf("venue %d: name is required", venues+1)
		}
		venue, err := st.CreateVenue(ctx, models.Venue{
			ID:        uuid.NewString(),
			Name:      v.Name,
			Address:   v.Address,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return venues, bottles, fmt.Errorf("create venue %q: %w", v.Name, err)
		}
		venues++

		for _, b := range v.Bottles {
			if b.Brand == "" || b.TotalVolumeML <= 0 {
				return venues, bottles, fmt.Errorf("venue %q: bottle needs a brand and a positive total_volume_ml", v.Name)
			}
			_, err := st.CreateBottle(ctx, models.Bottle{
				ID:            uuid.NewString(),
				VenueID:       venue.ID,
				Brand:         b.Brand,
				Type:          b.Type,
				Size:          b.Size,
				Price:         b.Price,
				TotalVolumeML: b.TotalVolumeML,
				Active:        !b.Inactive,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
			if err != nil {
				return venues, bottles, fmt.Errorf("create bottle %q: %w", b.Brand, err)
			}
			bottles++
		}
	}
	return venues, bottles, nil
}
