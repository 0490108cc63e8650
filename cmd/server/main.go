package main

import (
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/api"
	"github.com/pastrop/feeaudit/internal/logger"
	"github.com/pastrop/feeaudit/internal/repository"
)

func main() {
	loadErr := godotenv.Load()

	log := logger.NewWithLevel(envOr("LOG_LEVEL", "info"))
	if loadErr != nil && !os.IsNotExist(loadErr) {
		log.Warn().Err(loadErr).Msg("could not load .env file")
	}

	port := envOr("PORT", "8080")
	dbPath := envOr("DB_PATH", "feeaudit.db")

	tolerance, err := decimal.NewFromString(envOr("FEE_TOLERANCE", "0.01"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid FEE_TOLERANCE")
	}
	threshold, err := strconv.ParseFloat(envOr("CONFIDENCE_THRESHOLD", "0.5"), 64)
	if err != nil || threshold <= 0 || threshold > 1 {
		log.Fatal().Str("value", os.Getenv("CONFIDENCE_THRESHOLD")).Msg("CONFIDENCE_THRESHOLD must be in (0, 1]")
	}

	log.Info().Str("path", dbPath).Msg("initializing database")
	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("init database")
	}
	defer db.Close()

	router := api.NewRouter(
		log,
		repository.NewRunRepo(db),
		repository.NewClusterRepo(db),
		repository.NewVerificationRepo(db),
		repository.NewDiscrepancyRepo(db),
		api.Defaults{Tolerance: tolerance, ConfidenceThreshold: threshold},
	)

	log.Info().
		Str("port", port).
		Str("tolerance", tolerance.String()).
		Float64("confidence_threshold", threshold).
		Msg("transaction fee audit service listening")
	log.Info().Msg("POST /api/v1/runs/verify")
	log.Info().Msg("POST /api/v1/runs/cluster")
	log.Info().Msg("GET  /api/v1/runs")
	log.Info().Msg("GET  /api/v1/runs/{id}")
	log.Info().Msg("GET  /api/v1/runs/{id}/verifications")
	log.Info().Msg("GET  /api/v1/runs/{id}/discrepancies")
	log.Info().Msg("GET  /api/v1/runs/{id}/clusters")
	log.Info().Msg("GET  /api/v1/dashboard")

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
