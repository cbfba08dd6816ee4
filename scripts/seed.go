package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/Yulya9904/cars-insurance/internal/adapters/database"
	"github.com/Yulya9904/cars-insurance/internal/application/services"
	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/clients/postgres"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/observability"
	"github.com/Yulya9904/cars-insurance/pkg/config"
	"github.com/Yulya9904/cars-insurance/pkg/secrets"
)

const seedActor = "seed"

func main() {
	if _, err := secrets.Apply(context.Background(), secrets.ConfigFromEnv("")); err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	observability.InitLogger("cars-insurance-seed", cfg.Env)
	logger := observability.GetLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	defer pgClient.Close()

	migration := os.Getenv("MIGRATION_FILE")
	if migration == "" {
		migration = "migrations/001_insurances.sql"
	}
	schema, err := os.ReadFile(migration)
	if err != nil {
		logger.Fatal().Err(err).Str("file", migration).Msg("Failed to read migration")
	}
	if _, err := pgClient.DB().ExecContext(ctx, string(schema)); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply migration")
	}

	if os.Getenv("RESET_DB") == "true" {
		logger.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE audit_log, insurances, cars, districts RESTART IDENTITY CASCADE
		`)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to reset tables")
		}
	}

	dialect := goqu.Dialect("postgres")

	// 1. Districts
	districts := []goqu.Record{
		{"district_id": 1, "district_name": "North"},
		{"district_id": 2, "district_name": "South"},
	}
	query, args, err := dialect.Insert("districts").Rows(districts).OnConflict(goqu.DoNothing()).ToSQL()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build districts insert")
	}
	if _, err := pgClient.DB().ExecContext(ctx, query, args...); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed districts")
	}

	// 2. Vehicles
	cars := []goqu.Record{
		{"car_id": 1, "car_model": "Lada Vesta", "state_number": "A123BC", "home_district_id": 1},
		{"car_id": 2, "car_model": "Kia Rio", "state_number": "B777OP", "home_district_id": 2},
		{"car_id": 3, "car_model": "GAZelle Next", "state_number": "K001MM", "home_district_id": nil},
	}
	query, args, err = dialect.Insert("cars").Rows(cars).OnConflict(goqu.DoNothing()).ToSQL()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build cars insert")
	}
	if _, err := pgClient.DB().ExecContext(ctx, query, args...); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed cars")
	}

	// Explicit ids leave the sequences behind
	for _, table := range []struct{ name, id string }{{"districts", "district_id"}, {"cars", "car_id"}} {
		if _, err := pgClient.DB().ExecContext(ctx,
			"SELECT setval(pg_get_serial_sequence($1, $2), (SELECT MAX("+table.id+") FROM "+table.name+"))",
			table.name, table.id); err != nil {
			logger.Warn().Err(err).Str("table", table.name).Msg("Failed to advance sequence")
		}
	}

	// 3. Policies go through the service so they are validated and audited
	service := services.NewInsuranceService(
		database.NewInsuranceAdapter(pgClient.X(), nil),
		database.NewVehicleAdapter(pgClient.X(), nil),
		database.NewAuditLogAdapter(pgClient.X()),
		nil, nil, nil,
	)

	today := time.Now()
	policies := []entities.InsuranceForm{
		seedForm(1, "Acme Mutual", today.AddDate(0, -6, 0), today.AddDate(0, 6, 0), "12500.00"),
		seedForm(1, "Acme Mutual", today.AddDate(-1, -6, 0), today.AddDate(0, -6, -1), "11800.00"),
		seedForm(2, "Northwind Insurance", today.AddDate(0, -11, 0), today.AddDate(0, 0, 20), "9400.50"),
		seedForm(3, "Northwind Insurance", today.AddDate(0, -11, -20), today.AddDate(0, 0, 10), "15000"),
	}

	added := 0
	for _, form := range policies {
		result := service.AddInsurance(ctx, seedActor, form)
		if !result.OK() {
			logger.Warn().Str("vehicle_id", form.VehicleID).Str("error", result.Err.Message).Msg("Skipped policy")
			continue
		}
		added++
	}

	logger.Info().Int("policies", added).Msg("Seeding completed")
}

func seedForm(vehicleID int, insurer string, start, end time.Time, cost string) entities.InsuranceForm {
	return entities.InsuranceForm{
		VehicleID:   strconv.Itoa(vehicleID),
		InsurerName: insurer,
		StartDate:   entities.FormatDate(start),
		EndDate:     entities.FormatDate(end),
		Cost:        cost,
	}
}
