package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"virosync/internal/clients"
	"virosync/internal/config"
	"virosync/internal/models"
	"virosync/internal/repository"
	"virosync/internal/service"
	"virosync/internal/storage"
	"virosync/internal/worker"
	"virosync/pkg/database"
	"virosync/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	log.Println("=== virosync starting ===")

	cfg := config.Load()

	db, err := database.Connect(database.Config(cfg.DB))
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	redisClient, err := redis.Connect(redis.Config(cfg.Redis))
	if err != nil {
		log.Fatal("Failed to connect to Redis: ", err)
	}
	defer redisClient.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database: ", err)
	}

	// The flat-file cache tree must be writable before anything else runs.
	store, err := storage.NewFlatFileStore(cfg.Storage.BaseDir, cfg.NCBI.Taxon)
	if err != nil {
		log.Fatal("Failed to initialize storage: ", err)
	}

	projectRepo := repository.NewProjectRepository(db)
	genbankRepo := repository.NewGenBankFileRepository(db)
	isolateRepo := repository.NewIsolateRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	if err := provisionProject(projectRepo, cfg); err != nil {
		log.Fatal("Failed to provision project: ", err)
	}

	entrezClient := clients.NewEntrezClient(clients.EntrezConfig{BaseURL: cfg.NCBI.BaseURL})

	syncService := service.NewSyncService(entrezClient, store, genbankRepo, isolateRepo, cacheRepo, service.SyncConfig{
		DB:          cfg.NCBI.Database,
		Organism:    cfg.NCBI.Organism,
		RetMax:      cfg.NCBI.RetMax,
		MinInterval: cfg.NCBI.MinInterval,
	})
	reportService := service.NewReportService(isolateRepo, cfg.Storage.ReportDir)

	scheduler := worker.NewScheduler()
	if cfg.Workers.SyncEnabled {
		scheduler.AddWorker(worker.NewSyncWorker(syncService, cfg.Workers.SyncInterval))
		log.Printf("Sync Worker enabled (interval: %v)", cfg.Workers.SyncInterval)
	}

	go scheduler.Start()
	defer scheduler.Stop()

	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
		log.Println("Running in DEBUG mode")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"http://localhost:3000"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	api := r.Group("/api/v1")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "ok",
			"organism":  cfg.NCBI.Organism,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api.GET("/isolates", func(c *gin.Context) {
		ctx := c.Request.Context()
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		cacheKey := "isolates:list:" + strconv.Itoa(page) + ":" + strconv.Itoa(limit)
		var isolates []models.Isolate
		if err := cacheRepo.GetJSON(ctx, cacheKey, &isolates); err == nil && len(isolates) > 0 {
			c.JSON(200, gin.H{"items": isolates})
			return
		}

		isolates, err := isolateRepo.GetPaginated(ctx, page, limit)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to get isolates"})
			return
		}
		if err := cacheRepo.SetJSON(ctx, cacheKey, isolates, 5*time.Minute); err != nil {
			log.Printf("Failed to cache isolate list: %v", err)
		}
		c.JSON(200, gin.H{"items": isolates})
	})

	api.GET("/isolates/:accession", func(c *gin.Context) {
		ctx := c.Request.Context()
		isolate, err := isolateRepo.GetByAccession(ctx, c.Param("accession"))
		if err != nil {
			c.JSON(404, gin.H{"error": "Isolate not found"})
			return
		}
		c.JSON(200, isolate)
	})

	api.GET("/genbank", func(c *gin.Context) {
		ctx := c.Request.Context()
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		files, err := genbankRepo.GetPaginated(ctx, page, limit)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to get GenBank files"})
			return
		}
		c.JSON(200, gin.H{"items": files})
	})

	api.GET("/genbank/:accession", func(c *gin.Context) {
		ctx := c.Request.Context()
		files, err := genbankRepo.GetByAccession(ctx, c.Param("accession"))
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to get GenBank files"})
			return
		}
		c.JSON(200, gin.H{"items": files})
	})

	api.GET("/reports/isolates", func(c *gin.Context) {
		ctx := c.Request.Context()
		path, err := reportService.ExportIsolates(ctx)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to export isolates"})
			return
		}
		c.File(path)
	})

	api.GET("/system/stats", func(c *gin.Context) {
		ctx := c.Request.Context()

		redisStats, _ := redis.GetStats(redisClient)
		genbankCount, _ := genbankRepo.Count(ctx)
		featureCount, _ := genbankRepo.CountFeatures(ctx)
		isolateCount, _ := isolateRepo.Count(ctx)

		c.JSON(200, gin.H{
			"database": gin.H{
				"genbank_files": genbankCount,
				"features":      featureCount,
				"isolates":      isolateCount,
			},
			"redis": redisStats,
			"cache": gin.H{
				"genbank_dir": store.GenBankDir(),
			},
			"workers": gin.H{
				"sync_enabled":  cfg.Workers.SyncEnabled,
				"sync_interval": cfg.Workers.SyncInterval.String(),
			},
		})
	})

	api.POST("/refresh/sync", func(c *gin.Context) {
		// A full run is slow under the remote rate limit; run it in the
		// background and let the lock reject overlapping requests.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
			defer cancel()
			if _, err := syncService.SyncNCBI(ctx); err != nil && !errors.Is(err, service.ErrSyncLocked) {
				log.Printf("Manual sync error: %v", err)
			}
		}()
		c.JSON(202, gin.H{"message": "Sync started"})
	})

	if cfg.App.Debug {
		api.POST("/fetch/:id", func(c *gin.Context) {
			ctx := c.Request.Context()
			if err := syncService.FetchRecord(ctx, c.Param("id")); err != nil {
				c.JSON(500, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"message": "Record fetched"})
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%s", cfg.App.Port)
		log.Printf("API available at http://localhost:%s/api/v1", cfg.App.Port)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start: ", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exited properly")
}

// provisionProject creates the Project row for the configured organism once.
func provisionProject(repo repository.ProjectRepository, cfg *config.Config) error {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	project, err := repo.Ensure(ctx, &models.Project{
		Organism:  cfg.NCBI.Organism,
		Alias:     cfg.NCBI.Taxon,
		CreatedBy: username,
		BaseDir:   cfg.Storage.BaseDir,
	})
	if err != nil {
		return err
	}

	log.Printf("Project ready: %s (%s)", project.Organism, project.Alias)
	return nil
}
