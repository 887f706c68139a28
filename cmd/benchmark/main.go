package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/Xausdorf/vaultpay/internal/infrastructure/grpcclient"
	"github.com/Xausdorf/vaultpay/internal/usecase/transfer"
)

const (
	outcomeCreated  = "created"
	outcomeReplayed = "replayed"
)

type options struct {
	addr     string
	accounts string
	workers  int
	duration time.Duration
	workload string
	reuse    float64
	amount   string
}

type stats struct {
	mu        sync.Mutex
	outcomes  map[string]int
	latencies []time.Duration
}

func (s *stats) record(outcome string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[outcome]++
	s.latencies = append(s.latencies, d)
}

func main() {
	var opts options
	flag.StringVar(&opts.addr, "addr", "localhost:50051", "gRPC address")
	flag.StringVar(&opts.accounts, "accounts", "accounts.txt", "file with one account id per line")
	flag.IntVar(&opts.workers, "workers", 10, "number of concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.StringVar(&opts.workload, "workload", "uniform", "workload type: uniform | hotspot")
	flag.Float64Var(&opts.reuse, "reuse", 0.1, "probability of retrying the previous request with the same key")
	flag.StringVar(&opts.amount, "amount", "1.00", "amount per transfer")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(opts, logger); err != nil {
		logger.Error("benchmark failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger) error {
	if opts.workload != "uniform" && opts.workload != "hotspot" {
		return fmt.Errorf("unknown workload %q", opts.workload)
	}

	ids, err := readAccounts(opts.accounts)
	if err != nil {
		return err
	}
	if len(ids) < 2 {
		return fmt.Errorf("need at least 2 accounts, got %d", len(ids))
	}

	client, err := grpcclient.NewClient(opts.addr)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("starting benchmark", "workload", opts.workload, "workers", opts.workers, "duration", opts.duration)

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	st := &stats{outcomes: make(map[string]int)}
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(opts.workers)
	for w := range opts.workers {
		go func() {
			defer wg.Done()
			worker(ctx, w, client, ids, opts, st)
		}()
	}
	wg.Wait()

	report(os.Stdout, opts, st, time.Since(start))
	return nil
}

func worker(ctx context.Context, id int, client *grpcclient.Client, ids []string, opts options, st *stats) {
	var (
		prev grpcclient.TransferRequest
		seq  int
	)
	for ctx.Err() == nil {
		req := prev
		if prev.IdempotencyKey == "" || rand.Float64() >= opts.reuse {
			from, to := pick(ids, opts.workload)
			seq++
			req = grpcclient.TransferRequest{
				SenderID:       from,
				Receiver:       to,
				Amount:         opts.amount,
				IdempotencyKey: fmt.Sprintf("bench-%d-%d-%d", id, seq, time.Now().UnixNano()),
			}
		}

		callCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		began := time.Now()
		res, err := client.Transfer(callCtx, req)
		cancel()

		switch {
		case err == nil && res.Replayed:
			st.record(outcomeReplayed, time.Since(began))
		case err == nil:
			st.record(outcomeCreated, time.Since(began))
		default:
			st.record(string(transfer.KindOf(err)), time.Since(began))
		}
		prev = req
	}
}

// pick sends 90% of hotspot traffic between the first two accounts.
func pick(ids []string, workload string) (string, string) {
	if workload == "hotspot" && rand.Float64() < 0.9 {
		if rand.IntN(2) == 0 {
			return ids[0], ids[1]
		}
		return ids[1], ids[0]
	}

	a := rand.IntN(len(ids))
	b := rand.IntN(len(ids) - 1)
	if b >= a {
		b++
	}
	return ids[a], ids[b]
}

func readAccounts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	return ids, sc.Err()
}

func report(out *os.File, opts options, st *stats, elapsed time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()

	total := len(st.latencies)
	slices.Sort(st.latencies)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Outcome", "Count", "Share"})
	keys := make([]string, 0, len(st.outcomes))
	for k := range st.outcomes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		table.Append([]string{k, fmt.Sprint(st.outcomes[k]), fmt.Sprintf("%.2f%%", 100*float64(st.outcomes[k])/float64(max(total, 1)))})
	}
	table.Render()

	summary := tablewriter.NewWriter(out)
	summary.SetHeader([]string{"Workload", "Workers", "Requests", "Throughput (req/s)", "p50 (ms)", "p99 (ms)"})
	summary.Append([]string{
		opts.workload,
		fmt.Sprint(opts.workers),
		fmt.Sprint(total),
		fmt.Sprintf("%.1f", float64(total)/elapsed.Seconds()),
		fmt.Sprintf("%.2f", percentile(st.latencies, 0.50)),
		fmt.Sprintf("%.2f", percentile(st.latencies, 0.99)),
	})
	summary.Render()
}

func percentile(sorted []time.Duration, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return float64(sorted[idx]) / float64(time.Millisecond)
}
