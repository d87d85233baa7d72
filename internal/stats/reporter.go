// Package stats samples relay counters and process usage.
package stats

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/process"

	"github.com/dkeye/lanmeet/internal/adapters/udp"
	"github.com/dkeye/lanmeet/internal/app"
)

type RoomCounter interface {
	Count() (meetings, participants int)
}

type RouterCounter interface {
	Stats() app.RouterStats
}

type TransferCounter interface {
	Active() int
}

type MediaCounter interface {
	Stats() udp.Stats
}

type Snapshot struct {
	At           time.Time       `json:"at"`
	Uptime       string          `json:"uptime"`
	Meetings     int             `json:"meetings"`
	Participants int             `json:"participants"`
	Transfers    int             `json:"transfers"`
	Router       app.RouterStats `json:"router"`
	Media        udp.Stats       `json:"media"`
	Goroutines   int             `json:"goroutines"`
	CPUPercent   float64         `json:"cpu_percent"`
	RSSBytes     uint64          `json:"rss_bytes"`
}

// Reporter collects a Snapshot from its sources. Any source may be nil.
type Reporter struct {
	Rooms     RoomCounter
	Router    RouterCounter
	Transfers TransferCounter
	Media     MediaCounter

	started time.Time
	logger  zerolog.Logger

	once sync.Once
	proc *process.Process
}

func NewReporter(rooms RoomCounter, router RouterCounter, transfers TransferCounter, media MediaCounter) *Reporter {
	return &Reporter{
		Rooms:     rooms,
		Router:    router,
		Transfers: transfers,
		Media:     media,
		started:   time.Now(),
		logger:    log.With().Str("module", "stats").Logger(),
	}
}

func (r *Reporter) process() *process.Process {
	r.once.Do(func() {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			r.logger.Debug().Err(err).Msg("process stats unavailable")
			return
		}
		r.proc = p
	})
	return r.proc
}

func (r *Reporter) Snapshot() Snapshot {
	now := time.Now()
	s := Snapshot{
		At:         now,
		Uptime:     now.Sub(r.started).Truncate(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}
	if r.Rooms != nil {
		s.Meetings, s.Participants = r.Rooms.Count()
	}
	if r.Router != nil {
		s.Router = r.Router.Stats()
	}
	if r.Transfers != nil {
		s.Transfers = r.Transfers.Active()
	}
	if r.Media != nil {
		s.Media = r.Media.Stats()
	}
	if p := r.process(); p != nil {
		if cpu, err := p.CPUPercent(); err == nil {
			s.CPUPercent = cpu
		}
		if mem, err := p.MemoryInfo(); err == nil {
			s.RSSBytes = mem.RSS
		}
	}
	return s
}

// Table renders s as a borderless two column table.
func Table(s Snapshot) string {
	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.AppendBulk([][]string{
		{"uptime", s.Uptime},
		{"meetings", fmt.Sprint(s.Meetings)},
		{"participants", fmt.Sprint(s.Participants)},
		{"transfers", fmt.Sprint(s.Transfers)},
		{"frames routed", fmt.Sprint(s.Router.Routed)},
		{"frames delivered", fmt.Sprint(s.Router.Delivered)},
		{"frames dropped", fmt.Sprint(s.Router.Dropped)},
		{"rtp packets", fmt.Sprint(s.Media.Packets)},
		{"rtp rejected", fmt.Sprint(s.Media.Rejected)},
		{"goroutines", fmt.Sprint(s.Goroutines)},
		{"cpu", fmt.Sprintf("%.1f%%", s.CPUPercent)},
		{"rss", fmt.Sprintf("%.1f MiB", float64(s.RSSBytes)/(1<<20))},
	})
	table.Render()
	return b.String()
}

// Run logs a stats table every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s := r.Snapshot()
			if zerolog.GlobalLevel() <= zerolog.DebugLevel {
				r.logger.Debug().Msg("\n" + Table(s))
				continue
			}
			r.logger.Info().
				Int("meetings", s.Meetings).
				Int("participants", s.Participants).
				Int("transfers", s.Transfers).
				Uint64("dropped", s.Router.Dropped).
				Msg("stats")
		}
	}
}
