package opmon

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/roomsync/roomsync/engine/consts"
	"github.com/roomsync/roomsync/engine/rslog"
)

var (
	operationAllocPool = sync.Pool{
		New: func() interface{} {
			return &Operation{}
		},
	}

	monitor = newMonitor()
)

func init() {
	if consts.OPMON_DUMP_INTERVAL > 0 {
		go func() {
			for {
				time.Sleep(consts.OPMON_DUMP_INTERVAL)
				Dump(os.Stderr)
			}
		}()
	}
}

type _OpInfo struct {
	count         uint64
	totalDuration time.Duration
	maxDuration   time.Duration
}

type _Monitor struct {
	sync.Mutex
	opInfos map[string]*_OpInfo
}

func newMonitor() *_Monitor {
	m := &_Monitor{
		opInfos: map[string]*_OpInfo{},
	}
	return m
}

func (monitor *_Monitor) record(opname string, duration time.Duration) {
	monitor.Lock()
	info := monitor.opInfos[opname]
	if info == nil {
		info = &_OpInfo{}
		monitor.opInfos[opname] = info
	}
	info.count += 1
	info.totalDuration += duration
	if duration > info.maxDuration {
		info.maxDuration = duration
	}
	monitor.Unlock()
}

// OpStat is the statistics of one operation name since the last dump
type OpStat struct {
	Name  string
	Count uint64
	Avg   time.Duration
	Max   time.Duration
}

// Collect returns and resets the recorded statistics, sorted by name
func Collect() []OpStat {
	monitor.Lock()
	opInfos := monitor.opInfos
	monitor.opInfos = map[string]*_OpInfo{} // clear to be empty
	monitor.Unlock()

	stats := make([]OpStat, 0, len(opInfos))
	for name, info := range opInfos {
		stats = append(stats, OpStat{
			Name:  name,
			Count: info.count,
			Avg:   info.totalDuration / time.Duration(info.count),
			Max:   info.maxDuration,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Name < stats[j].Name
	})
	return stats
}

// Dump prints and resets the recorded statistics
func Dump(out io.Writer) {
	fmt.Fprint(out, "=====================================================================================\n")
	for _, s := range Collect() {
		fmt.Fprintf(out, "%-30sx%-10d AVG %-10s MAX %-10s\n", s.Name, s.Count, s.Avg, s.Max)
	}
}

// Operation is the type of operation to be monitored
type Operation struct {
	name      string
	startTime time.Time
}

// StartOperation creates a new operation
func StartOperation(operationName string) *Operation {
	op := operationAllocPool.Get().(*Operation)
	op.name = operationName
	op.startTime = time.Now()
	return op
}

// Finish finishes the operation and records the duration of operation
func (op *Operation) Finish(warnThreshold time.Duration) {
	takeTime := time.Since(op.startTime)
	monitor.record(op.name, takeTime)
	sinkObserveOperation(op.name, takeTime)
	if takeTime >= warnThreshold {
		rslog.Warnf("opmon: operation %s takes %s > %s", op.name, takeTime, warnThreshold)
	}
	operationAllocPool.Put(op)
}
