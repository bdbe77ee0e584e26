package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type topicStat struct {
	messages int64
	bytes    int64
}

var (
	errorsConsumer   int64
	errorsReadModel  int64
	warnsConsumer    int64
	warnsReadModel   int64
	eventsConsumed   int64
	eventsCommitted  int64
	eventsRetried    int64
	readModelWrites  int64
	archiveWrites    int64
	topics           sync.Map // map[string]*topicStat
)

func recordWarn(component string) {
	if strings.Contains(component, "consumer") {
		atomic.AddInt64(&warnsConsumer, 1)
	} else if strings.Contains(component, "read_model") {
		atomic.AddInt64(&warnsReadModel, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "consumer") {
		atomic.AddInt64(&errorsConsumer, 1)
	} else if strings.Contains(component, "read_model") {
		atomic.AddInt64(&errorsReadModel, 1)
	}
}

// IncrementEventConsumed records one fetched broker message and its size.
func IncrementEventConsumed(topic string, size int) {
	atomic.AddInt64(&eventsConsumed, 1)
	recordTopic(topic, size)
}

// IncrementEventCommitted records one committed offset.
func IncrementEventCommitted() {
	atomic.AddInt64(&eventsCommitted, 1)
}

// IncrementEventRetried records one message left uncommitted for redelivery.
func IncrementEventRetried() {
	atomic.AddInt64(&eventsRetried, 1)
}

// IncrementReadModelWrite records one persisted view collection and its size.
func IncrementReadModelWrite(size int) {
	atomic.AddInt64(&readModelWrites, 1)
}

// IncrementArchiveWrite records one snapshot archived to S3.
func IncrementArchiveWrite(size int64) {
	atomic.AddInt64(&archiveWrites, 1)
}

func recordTopic(name string, size int) {
	v, _ := topics.LoadOrStore(name, &topicStat{})
	ts := v.(*topicStat)
	atomic.AddInt64(&ts.messages, 1)
	atomic.AddInt64(&ts.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and consumer statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	topicData := map[string]map[string]int64{}
	topics.Range(func(k, v any) bool {
		name := k.(string)
		ts := v.(*topicStat)
		topicData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&ts.messages),
			"bytes":    atomic.LoadInt64(&ts.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_consumer":   atomic.LoadInt64(&errorsConsumer),
		"errors_read_model": atomic.LoadInt64(&errorsReadModel),
		"warns_consumer":    atomic.LoadInt64(&warnsConsumer),
		"warns_read_model":  atomic.LoadInt64(&warnsReadModel),
		"events_consumed":   atomic.LoadInt64(&eventsConsumed),
		"events_committed":  atomic.LoadInt64(&eventsCommitted),
		"events_retried":    atomic.LoadInt64(&eventsRetried),
		"read_model_writes": atomic.LoadInt64(&readModelWrites),
		"archive_writes":    atomic.LoadInt64(&archiveWrites),
		"goroutines":        runtime.NumGoroutine(),
		"cpu_percent":       cpuPct,
		"memory_mb":         int64(memStats.Used) / 1024 / 1024,
		"disk_mb":           int64(diskStats.Used) / 1024 / 1024,
		"topics":            topicData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsConsumer"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_consumer"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsReadModel"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_read_model"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsConsumer"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_consumer"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsReadModel"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_read_model"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("EventsConsumed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["events_consumed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("EventsCommitted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["events_committed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("EventsRetried"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["events_retried"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ReadModelWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["read_model_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ArchiveWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["archive_writes"].(int64)))},
	)

	for name, stats := range topicData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("TopicMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Topic"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("TopicBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Topic"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
