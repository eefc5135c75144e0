package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/lms-client/internal/apiclient"
	"github.com/and161185/lms-client/internal/errs"
	"github.com/and161185/lms-client/internal/events"
	"github.com/and161185/lms-client/internal/migrate"
	"github.com/and161185/lms-client/internal/routeguard"
	"github.com/and161185/lms-client/internal/service"
	"github.com/and161185/lms-client/internal/session"
	"github.com/and161185/lms-client/internal/tokenstore"
)

var errUsage = errors.New("usage")

type redirectError struct{ To routeguard.View }

func (e *redirectError) Error() string { return "redirect to " + string(e.To) }

// app is the view layer: one session, one navigator and the services around them.
type app struct {
	log     *zap.Logger
	store   tokenstore.Store
	api     *apiclient.Client
	bus     *events.Bus
	nav     *routeguard.Navigator
	sess    *session.Machine
	loans   service.LoanService
	profile service.ProfileService
	admin   service.AdminService

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	closer []func()
}

func newApp(ctx context.Context, cfg config, log *zap.Logger) (*app, error) {
	base := apiBase(cfg.API)
	store, closeStore, err := openStore(ctx, cfg, base)
	if err != nil {
		return nil, fmt.Errorf("token store: %w", err)
	}
	a, err := wire(base, store, log)
	if err != nil {
		closeStore()
		return nil, err
	}
	a.closer = append(a.closer, closeStore)
	return a, nil
}

// wire assembles the session stack over an already opened store.
func wire(base string, store tokenstore.Store, log *zap.Logger) (*app, error) {
	a := &app{
		log:    log,
		store:  store,
		bus:    events.NewBus(),
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	a.nav = routeguard.NewNavigator(routeguard.Landing, a.bus)
	api, err := apiclient.New(base, store, apiclient.WithLogger(log), apiclient.WithAuthViewCheck(a.nav.OnAuthView))
	if err != nil {
		return nil, err
	}
	a.api = api
	a.sess = session.New(api, store, session.WithLogger(log), session.WithBus(a.bus))
	a.nav.BindFlows(a.sess)
	a.loans = service.NewLoanService(api, a.bus)
	a.profile = service.NewProfileService(api, a.bus)
	a.admin = service.NewAdminService(api, a.bus)
	a.closer = append(a.closer, a.sess.Close)

	a.bus.Subscribe(events.Navigate, func(_ context.Context, ev events.Event) {
		log.Debug("navigate", zap.Any("to", ev.Payload))
	})
	return a, nil
}

// Close releases the store and detaches subscribers.
func (a *app) Close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
}

// openStore picks the token backend. The origin is the API base so that
// one store file or table can serve several servers.
func openStore(ctx context.Context, cfg config, origin string) (tokenstore.Store, func(), error) {
	switch cfg.Store {
	case "", "file":
		return tokenstore.NewFile(tokenPath(), origin, []byte(cfg.Passphrase)), func() {}, nil
	case "memory":
		return tokenstore.NewMemory(), func() {}, nil
	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return tokenstore.NewRedis(rdb, "", origin), func() { _ = rdb.Close() }, nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, nil, errors.New("-dsn is required for -store postgres")
		}
		return tokenstore.OpenPostgres(ctx, cfg.DSN, origin, func(ctx context.Context, pool *pgxpool.Pool) error {
			if _, err := migrate.Up(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return nil
		})
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// enter runs the startup check and the route guard for path, then moves there.
func (a *app) enter(ctx context.Context, path string) error {
	if err := a.sess.Startup(ctx); err != nil {
		return err
	}
	route, ok := routeguard.Lookup(path)
	if !ok {
		return fmt.Errorf("unknown view %q", path)
	}
	d := routeguard.CanEnter(a.sess, route)
	switch d.Outcome {
	case routeguard.Allow:
		a.nav.Go(ctx, route.View)
		return nil
	case routeguard.Redirect:
		a.nav.Go(ctx, d.To)
		return &redirectError{To: d.To}
	}
	return errors.New("session still loading")
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprintf(a.errOut, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

// otpLoop prompts until verify succeeds, input ends or a non-retryable error occurs.
// Typing "resend" requests a new code.
func (a *app) otpLoop(verify func(code string) error, resend func() error) error {
	for {
		code, err := a.prompt(`OTP (or "resend")`)
		if err != nil {
			return err
		}
		if code == "resend" {
			if err := resend(); err != nil {
				if !errors.Is(err, errs.ErrRateLimited) {
					return err
				}
				fmt.Fprintln(a.errOut, errs.Message(err))
				continue
			}
			fmt.Fprintln(a.errOut, "A new code has been sent.")
			continue
		}

		err = verify(code)
		if err == nil {
			return nil
		}
		var ve *errs.ValidationError
		if !errors.Is(err, errs.ErrInvalidOTP) && !errors.As(err, &ve) {
			return err
		}
		var ae *errs.APIError
		if errors.As(err, &ae) && ae.AttemptsLeft != nil && *ae.AttemptsLeft == 0 {
			return err
		}
		fmt.Fprintln(a.errOut, errs.Message(err))
	}
}
