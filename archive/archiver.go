// Package archive writes parquet snapshots of the chosen prices to S3
// whenever the held view is refreshed.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "priceflow/config"
	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
)

// PriceRow is the flattened parquet schema: one row per held security with
// its chosen price for the date.
type PriceRow struct {
	BatchID    string   `parquet:"name=batch_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	DataDate   string   `parquet:"name=data_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	LWID       string   `parquet:"name=lw_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source     string   `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price      *float64 `parquet:"name=price, type=DOUBLE"`
	Yield      *float64 `parquet:"name=yield, type=DOUBLE"`
	Duration   *float64 `parquet:"name=duration, type=DOUBLE"`
	ModifiedAt int64    `parquet:"name=modified_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	ArchivedAt int64    `parquet:"name=archived_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// ViewSource loads the held view for a date.
type ViewSource interface {
	Get(ctx context.Context, date dates.Date) ([]models.SecurityWithPrices, error)
}

// SnapshotArchiver listens for refresh notifications, debounces them per
// flush interval and uploads one parquet snapshot per refreshed date.
type SnapshotArchiver struct {
	config    *appconfig.Config
	view      ViewSource
	s3Client  *s3.Client
	refreshes <-chan dates.Date
	ctx       context.Context
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	log       *logger.Log
}

func NewSnapshotArchiver(cfg *appconfig.Config, view ViewSource, refreshes <-chan dates.Date) (*SnapshotArchiver, error) {
	if !cfg.Storage.S3.Enabled {
		return nil, fmt.Errorf("s3 archival not enabled")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	a := &SnapshotArchiver{
		config:    cfg,
		view:      view,
		s3Client:  client,
		refreshes: refreshes,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
	}
	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"bucket": cfg.Storage.S3.Bucket,
		"region": cfg.Storage.S3.Region,
	}).Debug("snapshot archiver initialized")
	return a, nil
}

func (a *SnapshotArchiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("snapshot archiver already running")
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	a.log.WithComponent("archiver").Debug("starting snapshot archiver")

	a.wg.Add(1)
	go a.run()

	return nil
}

func (a *SnapshotArchiver) run() {
	defer a.wg.Done()

	pending := make(map[dates.Date]struct{})
	ticker := time.NewTicker(a.config.Storage.S3.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.flush(pending)
			return
		case d, ok := <-a.refreshes:
			if !ok {
				a.flush(pending)
				return
			}
			pending[d] = struct{}{}
		case <-ticker.C:
			a.flush(pending)
		}
	}
}

func (a *SnapshotArchiver) flush(pending map[dates.Date]struct{}) {
	for d := range pending {
		if err := a.archiveDate(d); err != nil {
			a.log.WithComponent("archiver").WithError(err).WithFields(logger.Fields{
				"date": d.String(),
			}).Error("failed to archive snapshot")
			continue
		}
		delete(pending, d)
	}
}

func (a *SnapshotArchiver) archiveDate(d dates.Date) error {
	// Detached from the consumer context so an in-flight upload survives
	// shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	swps, err := a.view.Get(ctx, d)
	if err != nil {
		return fmt.Errorf("failed to load held view: %w", err)
	}
	if len(swps) == 0 {
		return nil
	}

	batchID := uuid.New().String()
	data, rows, err := buildParquet(batchID, d, swps)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("snapshots/%04d/%02d/%02d/held_prices_%s.parquet", d.Year, int(d.Month), d.Day, batchID)
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.config.Storage.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot %s: %w", key, err)
	}
	logger.IncrementArchiveWrite(int64(len(data)))

	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"batch_id": batchID,
		"date":     d.String(),
		"rows":     rows,
		"bytes":    len(data),
		"key":      key,
	}).Info("snapshot archived")
	return nil
}

func buildParquet(batchID string, d dates.Date, swps []models.SecurityWithPrices) ([]byte, int, error) {
	fw := buffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(PriceRow), 1)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	archivedAt := time.Now().UnixMilli()
	rows := 0
	for _, swp := range swps {
		chosen := swp.ChosenPrice()
		if chosen == nil {
			continue
		}
		row := PriceRow{
			BatchID:    batchID,
			DataDate:   d.String(),
			LWID:       swp.Security.LWID,
			Source:     chosen.Source.Name,
			ModifiedAt: chosen.ModifiedAt.UnixMilli(),
			ArchivedAt: archivedAt,
		}
		for _, v := range chosen.Values {
			switch v.Type {
			case models.TypePrice:
				row.Price = v.Value
			case models.TypeYield:
				row.Yield = v.Value
			case models.TypeDuration:
				row.Duration = v.Value
			}
		}
		if err := pw.Write(row); err != nil {
			return nil, 0, fmt.Errorf("failed to write parquet row: %w", err)
		}
		rows++
	}
	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet: %w", err)
	}
	return fw.Bytes(), rows, nil
}

func (a *SnapshotArchiver) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	a.log.WithComponent("archiver").Debug("stopping snapshot archiver")
	a.wg.Wait()
	a.log.WithComponent("archiver").Debug("snapshot archiver stopped")
}
