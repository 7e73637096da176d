package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"pisos/internal/adapters/observability"
	"pisos/internal/adapters/pisosapi"
	redisad "pisos/internal/adapters/redis"
	"pisos/internal/app"
	"pisos/internal/domain"
	"pisos/internal/shared"
	mysqlrepo "pisos/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	remote := flag.String("remote", cfg.ImportBaseURL, "base URL of a running API; empty imports straight into MySQL")
	seed := flag.Bool("seed-neighborhoods", false, "register the known neighborhood list before importing")
	workers := flag.Int("workers", cfg.ImportWorkers, "concurrent inserts in direct mode")
	province := flag.String("province", cfg.DefaultProvince, "province for records and neighborhoods without one")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file.json [file.json ...]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	files := flag.Args()
	if len(files) == 0 && !*seed {
		flag.Usage()
		os.Exit(2)
	}

	mode := "direct"
	if *remote != "" {
		mode = "remote"
	}
	log.Info().
		Str("mode", mode).
		Int("files", len(files)).
		Int("workers", *workers).
		Msg("importer starting")

	var total domain.ImportResult
	if mode == "remote" {
		if *seed {
			log.Warn().Msg("-seed-neighborhoods needs direct database access; ignored in remote mode")
		}
		total = runRemote(ctx, *remote, cfg.ImportRPS, files)
	} else {
		total = runDirect(ctx, cfg, *workers, *province, *seed, files)
	}

	log.Info().
		Int("total", total.Total).
		Int("imported", total.Imported).
		Int("skipped", total.Skipped).
		Int("errors", len(total.Errors)).
		Msg("import completed")
	if len(total.Errors) > 0 {
		os.Exit(1)
	}
}

func loadFile(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return app.DecodeRecords(f)
}

// runRemote posts each file as one batch; the client paces and retries.
func runRemote(ctx context.Context, base string, rps int, files []string) domain.ImportResult {
	client, err := pisosapi.New(base, rps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize API client")
	}
	if err := client.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("base", base).Msg("remote API not reachable")
	}
	log.Info().Str("base", base).Msg("remote ping ok")
	return pushFiles(ctx, client, files)
}

func pushFiles(ctx context.Context, client domain.ImportClient, files []string) domain.ImportResult {
	var total domain.ImportResult
	for _, path := range files {
		recs, err := loadFile(path)
		if err != nil {
			log.Warn().Str("file", path).Err(err).Msg("skipping unreadable file")
			continue
		}
		if len(recs) == 0 {
			continue
		}
		res, err := client.Import(ctx, recs)
		if err != nil {
			log.Error().Str("file", path).Err(err).Msg("remote import failed")
			total.Add(domain.ImportResult{Total: len(recs), Errors: []domain.ImportError{{Link: path, Error: err.Error()}}})
			continue
		}
		log.Info().Str("file", path).Int("imported", res.Imported).Int("skipped", res.Skipped).
			Int("errors", len(res.Errors)).Msg("file imported")
		total.Add(res)
	}
	return total
}

func runDirect(ctx context.Context, cfg shared.Config, workers int, province string, seed bool, files []string) domain.ImportResult {
	if workers <= 0 {
		workers = 1
	}
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)

	// the API's cached stats must see the new rows; a missing redis only costs freshness
	var cache domain.Cache
	rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := rc.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, cached stats will expire on their own")
		_ = rc.Close()
	} else {
		defer rc.Close()
		cache = rc
	}
	svc := app.NewImportService(repo, cache, province)

	if seed {
		if err := svc.SeedNeighborhoods(ctx, app.SeedNeighborhoods, province); err != nil {
			log.Fatal().Err(err).Msg("seeding neighborhoods failed")
		}
		log.Info().Int("count", len(app.SeedNeighborhoods)).Str("province", province).Msg("neighborhoods seeded")
	}

	sem := semaphore.NewWeighted(int64(workers))
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total domain.ImportResult
	)
	record := func(out app.Outcome, link string, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch out {
		case app.OutcomeImported:
			total.Imported++
		case app.OutcomeSkipped:
			total.Skipped++
		default:
			total.Errors = append(total.Errors, domain.ImportError{Link: link, Error: err.Error()})
		}
	}

	for _, path := range files {
		recs, err := loadFile(path)
		if err != nil {
			log.Warn().Str("file", path).Err(err).Msg("skipping unreadable file")
			continue
		}
		total.Total += len(recs)
		log.Info().Str("file", path).Int("records", len(recs)).Msg("importing file")

		for _, rec := range recs {
			// acquire before launching the goroutine; release inside it
			if err := sem.Acquire(ctx, 1); err != nil {
				log.Warn().Err(err).Msg("import interrupted")
				break
			}
			wg.Add(1)
			go func(rec map[string]any) {
				defer wg.Done()
				defer sem.Release(1)

				link := app.RecordLink(rec)
				out, err := svc.ImportOne(ctx, rec)
				if err != nil {
					log.Debug().Str("link", link).Err(err).Msg("record failed")
				}
				record(out, link, err)
			}(rec)
		}
	}
	wg.Wait()

	if total.Imported > 0 {
		svc.Invalidate(ctx)
	}
	observability.ObserveImport(total.Imported, total.Skipped, len(total.Errors))
	return total
}
