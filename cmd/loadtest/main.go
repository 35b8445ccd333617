// Command loadtest drives the detector's symptom endpoint with rotating
// Vietnamese descriptions and reports throughput, latency and the mix of
// confident and inconclusive outcomes.
//
// Usage:
//
//	loadtest --url http://localhost:8080 --concurrency 20 --duration 1m [--descriptions file.txt]
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var defaultDescriptions = []string{
	"lá vàng và khô",
	"lá có vết đốm hình thoi, tâm xám, viền nâu",
	"mép lá vàng rồi trắng bạc từ chóp lá",
	"bẹ lá có vết vằn da hổ màu xám xanh",
	"cây lùn, lá vàng cam, rầy nâu nhiều",
	"mặt lá phủ lớp phấn trắng như bột",
	"đốm úng nước xanh xám, mặt dưới lá có mốc trắng",
	"nốt mụn màu cam như gỉ sắt dưới lá",
	"gốc thân thối nhũn, chảy dịch nhầy có mùi hôi",
	"lá héo rũ nhanh, cắt thân thấy dịch trắng đục",
	"quả có vết lõm màu nâu đen",
	"lá bị xoăn lại và biến màu nghiêm trọng",
	"cây trông không được khỏe",
	"gì đó lạ",
	"",
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:   "loadtest",
		Usage:  "Load-test the symptom detection endpoint",
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "Detector base URL"},
			&cli.IntFlag{Name: "concurrency", Value: 10, Usage: "Concurrent workers"},
			&cli.DurationFlag{Name: "duration", Value: 30 * time.Second, Usage: "Test length"},
			&cli.StringFlag{Name: "descriptions", Usage: "File with one description per line"},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	descriptions := defaultDescriptions
	if path := c.String("descriptions"); path != "" {
		var err error
		if descriptions, err = readDescriptions(path); err != nil {
			return err
		}
	}
	concurrency := c.Int("concurrency")
	if concurrency < 1 {
		return errors.New("--concurrency must be at least 1")
	}

	w := c.App.Writer
	fmt.Fprintln(w, "=== Detector Load Test ===")
	fmt.Fprintf(w, "Target:       %s\n", c.String("url"))
	fmt.Fprintf(w, "Concurrency:  %d\n", concurrency)
	fmt.Fprintf(w, "Duration:     %s\n", c.Duration("duration"))
	fmt.Fprintf(w, "Descriptions: %d\n\n", len(descriptions))

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("duration"))
	defer cancel()

	d := &driver{
		endpoint: strings.TrimRight(c.String("url"), "/") + "/api/v1/detections/symptoms",
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{MaxIdleConnsPerHost: concurrency * 2},
		},
		stats: newStats(),
	}
	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for worker := 0; worker < concurrency; worker++ {
		g.Go(func() error {
			d.work(gctx, descriptions, worker)
			return nil
		})
	}
	_ = g.Wait()

	d.stats.report(w, time.Since(started))
	if d.stats.total() == 0 {
		return errors.New("no requests completed; is the detector running?")
	}
	return nil
}

func readDescriptions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening descriptions: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading descriptions: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s has no descriptions", path)
	}
	return out, nil
}

type driver struct {
	endpoint string
	client   *http.Client
	stats    *stats
}

// reply is the part of a detection result the report needs.
type reply struct {
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	DiseaseName string `json:"disease_name"`
}

// work sends descriptions round-robin, each worker starting at its own
// offset, until ctx ends.
func (d *driver) work(ctx context.Context, descriptions []string, offset int) {
	for i := offset; ctx.Err() == nil; i++ {
		start := time.Now()
		status, r, err := d.detect(ctx, descriptions[i%len(descriptions)])
		if ctx.Err() != nil {
			return
		}
		d.stats.record(time.Since(start), status, r, err)
	}
}

func (d *driver) detect(ctx context.Context, description string) (int, *reply, error) {
	body, err := json.Marshal(map[string]string{"description": description})
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var r reply
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&r) != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, &r, nil
}
