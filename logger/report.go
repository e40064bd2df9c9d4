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
	gnet "github.com/shirou/gopsutil/v3/net" //cloudwatch

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type endpointStat struct {
	responses int64
	bytes     int64
}

var (
	errorsPoller    int64
	errorsBot       int64
	warnsPoller     int64
	warnsBot        int64
	pollBatches     int64
	ordersPlaced    int64
	ordersCancelled int64
	endpoints       sync.Map // map[string]*endpointStat
)

func recordWarn(component string) {
	if strings.Contains(component, "poller") {
		atomic.AddInt64(&warnsPoller, 1)
	} else if strings.Contains(component, "bot") {
		atomic.AddInt64(&warnsBot, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "poller") {
		atomic.AddInt64(&errorsPoller, 1)
	} else if strings.Contains(component, "bot") {
		atomic.AddInt64(&errorsBot, 1)
	}
}

func IncrementPollBatch() {
	atomic.AddInt64(&pollBatches, 1)
}

func IncrementOrderPlaced() {
	atomic.AddInt64(&ordersPlaced, 1)
}

func IncrementOrderCancelled() {
	atomic.AddInt64(&ordersCancelled, 1)
}

// RecordEndpointResponse accounts a decoded exchange response for the named
// endpoint.
func RecordEndpointResponse(name string, size int) {
	v, _ := endpoints.LoadOrStore(name, &endpointStat{})
	es := v.(*endpointStat)
	atomic.AddInt64(&es.responses, 1)
	atomic.AddInt64(&es.bytes, int64(size))
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

// StartReport begins periodic logging of system and endpoint statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	endpointData := map[string]map[string]int64{}
	endpoints.Range(func(k, v any) bool {
		name := k.(string)
		es := v.(*endpointStat)
		endpointData[name] = map[string]int64{
			"responses": atomic.LoadInt64(&es.responses),
			"bytes":     atomic.LoadInt64(&es.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_poller":    atomic.LoadInt64(&errorsPoller),
		"errors_bot":       atomic.LoadInt64(&errorsBot),
		"warns_poller":     atomic.LoadInt64(&warnsPoller),
		"warns_bot":        atomic.LoadInt64(&warnsBot),
		"poll_batches":     atomic.LoadInt64(&pollBatches),
		"orders_placed":    atomic.LoadInt64(&ordersPlaced),
		"orders_cancelled": atomic.LoadInt64(&ordersCancelled),
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memStats.Used) / 1024 / 1024,
		"disk_mb":          int64(diskStats.Used) / 1024 / 1024,
		"endpoints":        endpointData,
		"net_bytes_sent":   int64(bytesSent),
		"net_bytes_recv":   int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-ErrorsPoller"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_poller"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-ErrorsBot"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_bot"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-WarnsPoller"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_poller"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-WarnsBot"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_bot"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-PollBatches"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["poll_batches"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-OrdersPlaced"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["orders_placed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-OrdersCancelled"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["orders_cancelled"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("Sellflow-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range endpointData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Sellflow-EndpointResponses"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Endpoint"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["responses"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Sellflow-EndpointBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Endpoint"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
