// README: Benchmark cases; HTTP surface, DB schema, Redis, and partner-claim / delivery-code contention.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"freshcart/internal/config"
	"freshcart/internal/infra"
	"freshcart/internal/modules/order"
	"freshcart/internal/modules/partner"
	"freshcart/internal/modules/pricing"
	"freshcart/internal/store/memory"
	"freshcart/internal/types"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				if err := infra.ApplyMigrations(ctx, r.db, filepath.Dir(r.cfg.MigrationPath)); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("%d tables", len(tables))}
			},
		},

		httpCase("API: health", base+"/health", http.StatusOK),
		httpCase("API: metrics exposed", base+"/metrics", http.StatusOK),
		httpCase("API: geofence readable without auth", base+"/api/geofence", http.StatusOK),
		httpCase("API: geofence check rejects bad coordinates", base+"/api/geofence/check?lat=x&lng=y", http.StatusBadRequest),
		httpCase("API: orders require a token", base+"/api/orders/abc", http.StatusUnauthorized),
		httpCase("API: admin routes require a token", base+"/api/admin/partners", http.StatusUnauthorized),

		{
			Name: "Claim: one order per partner (in-process)",
			Run: func(ctx context.Context, r *Runner) Result {
				svc := partner.NewService(memory.NewPartners(), memory.NewOrders(), nil)
				return r.oneOrderPerPartner(ctx, svc, "")
			},
		},
		{
			Name: "Claim: one partner per order (in-process)",
			Run: func(ctx context.Context, r *Runner) Result {
				svc := partner.NewService(memory.NewPartners(), memory.NewOrders(), nil)
				return r.onePartnerPerOrder(ctx, svc, "")
			},
		},
		{
			Name: "Claim: one order per partner (postgres)",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				defer r.cleanupBenchPartners(ctx)
				svc := partner.NewService(partner.NewStore(r.db), order.NewStore(r.db), nil)
				return r.oneOrderPerPartner(ctx, svc, "bench_")
			},
		},
		{
			Name: "Claim: one partner per order (postgres)",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				defer r.cleanupBenchPartners(ctx)
				svc := partner.NewService(partner.NewStore(r.db), order.NewStore(r.db), nil)
				return r.onePartnerPerOrder(ctx, svc, "bench_")
			},
		},
		{
			Name: "Delivery code: single consumption under contention",
			Run:  deliveryCodeContention,
		},
		{
			Name: "Perf: geofence check load",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, base+"/api/geofence/check?lat=13.0827&lng=80.2707")
			},
		},
	}
}

func httpCase(name, url string, want int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			start := time.Now()
			resp, err := r.httpc.Do(req)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			latency := time.Since(start)
			if resp.StatusCode != want {
				return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d want=%d", resp.StatusCode, want)}
			}
			return Result{Status: "PASS", Latency: latency}
		},
	}
}

func enrollBench(ctx context.Context, svc *partner.Service, prefix string) (*partner.Partner, error) {
	cmd := partner.EnrollCommand{Name: "bench rider", Phone: "0000000000"}
	if prefix != "" {
		cmd.ID = types.ID(prefix + string(types.NewID()))
	}
	return svc.Enroll(ctx, cmd)
}

// oneOrderPerPartner races many orders for one idle partner.
func (r *Runner) oneOrderPerPartner(ctx context.Context, svc *partner.Service, prefix string) Result {
	p, err := enrollBench(ctx, svc, prefix)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	wins := race(r.cfg.Concurrency, func(int) error {
		_, err := svc.Claim(ctx, p.ID, types.NewID())
		return err
	})
	if wins != 1 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("winners=%d", wins)}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("contenders=%d winners=1", r.cfg.Concurrency)}
}

// onePartnerPerOrder races many idle partners for one order.
func (r *Runner) onePartnerPerOrder(ctx context.Context, svc *partner.Service, prefix string) Result {
	ids := make([]types.ID, r.cfg.Concurrency)
	for i := range ids {
		p, err := enrollBench(ctx, svc, prefix)
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		ids[i] = p.ID
	}
	orderID := types.NewID()
	wins := race(len(ids), func(i int) error {
		_, err := svc.Claim(ctx, ids[i], orderID)
		return err
	})
	if wins != 1 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("winners=%d", wins)}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("contenders=%d winners=1", len(ids))}
}

func (r *Runner) cleanupBenchPartners(ctx context.Context) {
	if _, err := r.db.Exec(ctx, "DELETE FROM delivery_partners WHERE id LIKE 'bench_%'"); err != nil {
		fmt.Fprintf(os.Stderr, "cleanup bench partners: %v\n", err)
	}
}

// deliveryCodeContention submits the right code from many goroutines at once;
// exactly one submission may deliver the order.
func deliveryCodeContention(ctx context.Context, r *Runner) Result {
	orders := memory.NewOrders()
	partners := partner.NewService(memory.NewPartners(), orders, nil)
	svc := order.NewService(orders, pricing.NewService(config.PricingConfig{DeliveryFee: 25, Currency: "INR"}), partners)

	p, err := enrollBench(ctx, partners, "")
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	o, err := svc.Create(ctx, order.CreateCommand{
		CustomerID:      "bench_customer",
		Items:           []order.Item{{ProductID: "milk", Name: "Milk", Qty: 2, Price: 30}},
		DeliveryAddress: "bench street",
	})
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	step := order.PartnerCommand{OrderID: o.ID, PartnerID: p.ID}
	if _, err := svc.Accept(ctx, order.AdminCommand{OrderID: o.ID, AdminID: "bench_admin"}); err != nil {
		return Result{Status: "FAIL", Note: "accept: " + err.Error()}
	}
	for _, advance := range []func(context.Context, order.PartnerCommand) (*order.Order, error){svc.PartnerAccept, svc.PickUp, svc.Arrive} {
		if _, err := advance(ctx, step); err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
	}
	reached, err := svc.Get(ctx, o.ID)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	start := time.Now()
	wins := race(r.cfg.Concurrency, func(int) error {
		_, err := svc.ConfirmDelivery(ctx, order.ConfirmCommand{
			OrderID:   o.ID,
			ActorType: order.ActorCustomer,
			ActorID:   o.CustomerID,
			OTP:       reached.DeliveryOTP,
		})
		return err
	})
	if wins != 1 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("deliveries=%d", wins)}
	}
	return Result{Status: "PASS", Latency: time.Since(start), Note: fmt.Sprintf("contenders=%d deliveries=1", r.cfg.Concurrency)}
}

// race runs fn from n goroutines released together and counts nil results.
func race(n int, fn func(i int) error) int {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if fn(i) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()
	return wins
}

func perfLoad(ctx context.Context, r *Runner, url string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count int64
	var errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
				resp, err := r.httpc.Do(req)
				if err != nil {
					mu.Lock()
					errCount++
					mu.Unlock()
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}
