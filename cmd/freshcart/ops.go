// README: Operational commands: schema migration, stale-assignment sweep and partner seeding.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jaswdr/faker"
	"github.com/spf13/cobra"

	"freshcart/internal/geo"
	"freshcart/internal/infra"
	"freshcart/internal/modules/partner"
	"freshcart/internal/types"
)

const shutdownTimeout = 15 * time.Second

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQL migrations to the configured database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		dir, err := infra.MigrationsDir()
		if err != nil {
			return err
		}
		if err := infra.ApplyMigrations(ctx, pool, dir); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations applied from %s\n", dir)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Release partners still holding delivered, cancelled or missing orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.partners.CleanupStaleAssignments(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d partners\n", n)
		return nil
	},
}

var seedCount int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Enroll fake delivery partners spread across the service area",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.Backend == "memory" {
			return errors.New("seeding the memory backend has no effect; use postgres")
		}
		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		enrolled, err := seedPartners(cmd.Context(), a.partners, a.evaluator.Current().CenterLat, a.evaluator.Current().CenterLng, a.evaluator.Current().RadiusKm, seedCount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enrolled %d partners\n", enrolled)
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 20, "number of partners to enroll")
}

var vehicles = []partner.VehicleType{partner.VehicleBike, partner.VehicleScooter, partner.VehicleBicycle}

// seedPartners enrolls n partners and drops each one somewhere inside the
// radius so auto-assignment has candidates to pick from.
func seedPartners(ctx context.Context, partners *partner.Service, lat, lng, radiusKm float64, n int) (int, error) {
	fake := faker.New()
	now := time.Now()
	for i := 0; i < n; i++ {
		p, err := partners.Enroll(ctx, partner.EnrollCommand{
			Name:        fake.Person().Name(),
			Phone:       fake.Phone().Number(),
			Email:       fake.Internet().Email(),
			VehicleType: vehicles[fake.IntBetween(0, len(vehicles)-1)],
			Rating:      float64(fake.IntBetween(35, 50)) / 10,
		})
		if err != nil {
			return i, fmt.Errorf("enrolling partner %d: %w", i, err)
		}
		pos := scatter(lat, lng, radiusKm*float64(fake.IntBetween(0, 90))/100, float64(fake.IntBetween(0, 359)))
		if err := partners.UpdateLocation(ctx, p.ID, pos, now); err != nil {
			return i + 1, fmt.Errorf("placing partner %s: %w", p.ID, err)
		}
	}
	return n, nil
}

// scatter returns the point distKm from the origin along bearingDeg, using a
// flat-earth step that is accurate enough inside a city-sized radius.
func scatter(lat, lng, distKm, bearingDeg float64) types.Point {
	rad := bearingDeg * math.Pi / 180
	north := distKm * math.Cos(rad)
	east := distKm * math.Sin(rad)
	outLat := geo.OffsetNorthKm(lat, north)
	outLng := lng + east/(111.32*math.Cos(lat*math.Pi/180))
	return types.Point{Lat: outLat, Lng: outLng}
}
