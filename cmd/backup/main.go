package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"covid-news/auditlog"
	"covid-news/storage"
)

type BackupConfig struct {
	PostgresHost     string `envconfig:"POSTGRES_HOST"`
	PostgresUser     string `envconfig:"POSTGRES_USER"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD"`
	PostgresDB       string `envconfig:"POSTGRES_DB"`
	LogDir           string `envconfig:"LOG_DIR" default:"./log"`
	BackupBucket     string `envconfig:"BACKUP_S3_BUCKET" required:"true"`
	BackupEndpoint   string `envconfig:"BACKUP_S3_ENDPOINT" required:"true"`
	BackupAccessKey  string `envconfig:"BACKUP_S3_ACCESS_KEY" required:"true"`
	BackupSecretKey  string `envconfig:"BACKUP_S3_SECRET_KEY" required:"true"`
	BackupRegion     string `envconfig:"BACKUP_S3_REGION" required:"true"`
	KeepBackups      int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

const (
	dumpPrefix = "backup-"
	logPrefix  = "auditlog-"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("Starte Backup-Prozess...")

	var cfg BackupConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatal("Fehler beim Laden der Konfiguration", zap.Error(err))
	}

	ctx := context.Background()
	archive, err := storage.NewArchive(ctx, storage.ArchiveConfig{
		Endpoint:  cfg.BackupEndpoint,
		Region:    cfg.BackupRegion,
		AccessKey: cfg.BackupAccessKey,
		SecretKey: cfg.BackupSecretKey,
		Bucket:    cfg.BackupBucket,
	})
	if err != nil {
		logger.Fatal("Fehler beim Erstellen des S3-Clients", zap.Error(err))
	}
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")

	// 1. Audit-Logs (Reviews, Feedback, Zählerstände) sichern
	audit, err := auditlog.New(cfg.LogDir, logger)
	if err != nil {
		logger.Fatal("Log-Verzeichnis nicht lesbar", zap.Error(err))
	}
	logs, err := archiveFiles(audit.Files())
	if err != nil {
		logger.Fatal("Fehler beim Packen der Audit-Logs", zap.Error(err))
	}
	upload(ctx, logger, archive, logPrefix, logPrefix+stamp+".tar.gz", logs, cfg.KeepBackups)

	// 2. Datenbank-Dump, nur für das Postgres-Backend
	if cfg.PostgresHost == "" {
		logger.Info("Kein POSTGRES_HOST gesetzt, überspringe DB-Dump.")
	} else {
		dump, err := createDump(ctx, cfg)
		if err != nil {
			logger.Fatal("Fehler beim Erstellen des DB-Dumps", zap.Error(err))
		}
		upload(ctx, logger, archive, dumpPrefix, dumpPrefix+stamp+".sql.gz", dump, cfg.KeepBackups)
	}

	logger.Info("Backup-Prozess erfolgreich abgeschlossen.")
}

func upload(ctx context.Context, logger *zap.Logger, archive *storage.Archive, prefix, key string, data []byte, keep int) {
	link, err := archive.Upload(ctx, key, data)
	if err != nil {
		logger.Fatal("Fehler beim Hochladen nach S3", zap.String("key", key), zap.Error(err))
	}
	logger.Info("Backup hochgeladen", zap.String("link", link), zap.Int("bytes", len(data)))

	deleted, err := archive.Rotate(ctx, prefix, keep)
	for _, k := range deleted {
		logger.Info("Altes Backup gelöscht", zap.String("key", k))
	}
	if err != nil {
		logger.Error("Fehler bei der Rotation alter Backups", zap.Error(err))
	}
}

// archiveFiles packs the given files into a tar.gz; missing files are skipped.
func archiveFiles(paths []string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, path := range paths {
		if err := addFile(tw, path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addFile(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	return nil
}

// createDump streams pg_dump through gzip; stderr is attached to the error.
func createDump(ctx context.Context, cfg BackupConfig) ([]byte, error) {
	dump := exec.CommandContext(ctx, "pg_dump",
		"--host", cfg.PostgresHost,
		"--username", cfg.PostgresUser,
		"--dbname", cfg.PostgresDB,
		"--no-password",
		"--table", "pages", "--table", "reviews", "--table", "tweets",
	)
	dump.Env = append(os.Environ(), "PGPASSWORD="+cfg.PostgresPassword)
	var stderr bytes.Buffer
	dump.Stderr = &stderr

	out, err := dump.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := dump.Start(); err != nil {
		return nil, fmt.Errorf("start pg_dump: %w", err)
	}

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, copyErr := io.Copy(zw, out)
	closeErr := zw.Close()
	if err := dump.Wait(); err != nil {
		return nil, fmt.Errorf("pg_dump: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	if copyErr != nil {
		return nil, copyErr
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return compressed.Bytes(), nil
}
