// Package hostinfo reports what the operator sees about the machine: where
// it is, how big it is, and how busy it is right now.
package hostinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/errgroup"
)

// Unknown is reported for any detail that could not be determined.
const Unknown = "Unknown"

const (
	// DefaultGeoURL answers with {"country": ..., "query": <public ip>}.
	DefaultGeoURL = "http://ip-api.com/json"
	geoTimeout    = 5 * time.Second
)

// Details describes the host for the session-ready notice
type Details struct {
	Country string
	IP      string
	CPUs    string // logical core count
	RAMGB   string // total memory, one decimal
	OS      string
}

// Usage is a point-in-time load reading
type Usage struct {
	CPUPercent float64
	RAMPercent float64
}

// Probe collects host facts. The zero value is not usable; use New.
type Probe struct {
	geoURL string
	http   *http.Client
}

// New returns a Probe that looks the public address up at geoURL. An empty
// geoURL uses DefaultGeoURL.
func New(geoURL string, client *http.Client) *Probe {
	if geoURL == "" {
		geoURL = DefaultGeoURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Probe{geoURL: geoURL, http: client}
}

// Collect gathers Details. Individual failures degrade to Unknown; it never
// returns an error.
func (p *Probe) Collect(ctx context.Context) Details {
	d := Details{Country: Unknown, IP: Unknown, CPUs: Unknown, RAMGB: Unknown, OS: Unknown}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		country, ip, err := p.lookupLocation(ctx)
		if err == nil {
			d.Country, d.IP = country, ip
		}
		return nil
	})
	g.Go(func() error {
		if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
			d.CPUs = fmt.Sprintf("%d", n)
		}
		return nil
	})
	g.Go(func() error {
		if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
			gb := float64(vm.Total) / (1 << 30)
			d.RAMGB = fmt.Sprintf("%.1f", math.Round(gb*10)/10)
		}
		return nil
	})
	g.Go(func() error {
		d.OS = osDescription(ctx)
		return nil
	})
	_ = g.Wait()

	return d
}

func (p *Probe) lookupLocation(ctx context.Context) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, geoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.geoURL, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("geo lookup: HTTP %d", resp.StatusCode)
	}

	var body struct {
		Country string `json:"country"`
		Query   string `json:"query"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return "", "", fmt.Errorf("geo lookup: %w", err)
	}
	if body.Country == "" {
		body.Country = Unknown
	}
	if body.Query == "" {
		body.Query = Unknown
	}
	return body.Country, body.Query, nil
}

func osDescription(ctx context.Context) string {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return runtime.GOOS
	}
	switch {
	case info.Platform != "" && info.PlatformVersion != "":
		return info.Platform + " " + info.PlatformVersion
	case info.KernelVersion != "":
		return info.OS + " " + info.KernelVersion
	default:
		return info.OS
	}
}

// sampleUsage reads current CPU and RAM utilisation. CPU is measured over
// interval; zero compares against the previous call.
func sampleUsage(ctx context.Context, interval time.Duration) (Usage, error) {
	var u Usage

	pcts, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return u, fmt.Errorf("failed to read CPU usage: %w", err)
	}
	if len(pcts) > 0 {
		u.CPUPercent = math.Round(pcts[0]*10) / 10
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return u, fmt.Errorf("failed to read memory usage: %w", err)
	}
	u.RAMPercent = math.Round(vm.UsedPercent*10) / 10

	return u, nil
}

// Sample reads current utilisation without blocking, relative to the
// previous reading.
func (p *Probe) Sample(ctx context.Context) (Usage, error) {
	return sampleUsage(ctx, 0)
}
