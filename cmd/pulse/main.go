package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/claudepulse/pulse/credentials"
	"github.com/claudepulse/pulse/internal/config"
	errs "github.com/claudepulse/pulse/internal/errors"
	"github.com/claudepulse/pulse/oauthflow"
	"github.com/claudepulse/pulse/pacing"
	"github.com/claudepulse/pulse/poller"
	"github.com/claudepulse/pulse/status"
	"github.com/claudepulse/pulse/token"
	"github.com/claudepulse/pulse/usage"
)

func main() {
	login := flag.Bool("login", false, "run the browser authorization flow before polling")
	once := flag.Bool("once", false, "fetch usage once, print it, and exit")
	flag.Parse()

	if err := run(*login, *once); err != nil {
		log.Fatalf("Error: %s\n", err)
	}
	log.Printf("Stopped\n")
}

func run(login, once bool) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logger := newLogger(c.GetLogLevel())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := credentials.NewStore(c.GetDataFolder())
	if err != nil {
		return err
	}
	manager, err := token.NewManager(store, c, token.WithLogger(logger))
	if err != nil {
		return err
	}

	events := make(chan status.Event, 16)
	sink := func(e status.Event) {
		select {
		case events <- e:
		default:
		}
	}

	orchestrator, err := oauthflow.NewOrchestrator(manager.OAuthConfig(), c, manager,
		oauthflow.WithLogger(logger), oauthflow.WithEvents(sink))
	if err != nil {
		return err
	}

	client := usage.NewClient(c)
	p, err := poller.New(manager, client, c,
		poller.WithLogger(logger), poller.WithEvents(sink))
	if err != nil {
		return err
	}

	if once {
		return pollOnce(ctx, p)
	}

	displayAppname(c.GetAppName())

	if login {
		if _, err := orchestrator.Authorize(ctx); err != nil {
			return fmt.Errorf("authorize: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case e := <-events:
			handleEvent(ctx, e, orchestrator, p, logger)
		}
	}
}

// handleEvent reacts to poller and flow events. An unauthenticated event
// drives the interactive re-authorization and resumes polling once it
// succeeds.
func handleEvent(ctx context.Context, e status.Event, orchestrator *oauthflow.Orchestrator, p *poller.Poller, logger zerolog.Logger) {
	switch e.Kind {
	case status.KindUnauthenticated:
		logger.Info().Msg("authorization required, opening browser")
		if _, err := orchestrator.Authorize(ctx); err != nil {
			if errs.Is(err, context.Canceled) {
				return
			}
			logger.Error().Err(err).Msg("authorization failed, polling stays suspended")
			return
		}
		p.Resume()
	case status.KindUsageUpdated:
		printSnapshot(e.Snapshot, logger)
	case status.KindDegraded:
		logger.Warn().Str("reason", e.Reason).Msg("usage fetch degraded")
	case status.KindRateLimited:
		logger.Warn().Msg("usage endpoint rate limited, polling slowed")
	case status.KindAuthorized:
		logger.Info().Msg("authorized")
	}
}

func pollOnce(ctx context.Context, p *poller.Poller) error {
	p.PollNow(ctx)
	st := p.Snapshot()
	if st.LastSnapshot == nil {
		return fmt.Errorf("usage fetch failed: %s", st.LastError)
	}

	snap := st.LastSnapshot
	fmt.Printf("Session (5h): %.1f%%\n", snap.FiveHour.Utilization)
	if snap.FiveHour.ResetsAt != nil {
		proj := pacing.Project(time.Now(), snap.FiveHour.Utilization, *snap.FiveHour.ResetsAt, pacing.FiveHourWindow)
		fmt.Printf("  projected at reset: %.1f%% (%s)\n", proj.ProjectedPercent, proj.Indicator())
	}
	fmt.Printf("Week (7d):    %.1f%%\n", snap.SevenDay.Utilization)
	weekly := pacing.WeeklyPacing(time.Now(), snap.SevenDay.Utilization, snap.SevenDay.ResetsAt)
	if weekly.Status != pacing.BudgetUnknown {
		fmt.Printf("  %.1f%% of week elapsed, %s budget\n", weekly.ElapsedPercent, weekly.Status)
	}
	fmt.Printf("Opus (7d):    %.1f%%\n", snap.SevenDayOpus.Utilization)
	return nil
}

func printSnapshot(snap *usage.Snapshot, logger zerolog.Logger) {
	if snap == nil {
		return
	}
	logger.Info().
		Float64("five_hour", snap.FiveHour.Utilization).
		Float64("seven_day", snap.SevenDay.Utilization).
		Float64("seven_day_opus", snap.SevenDayOpus.Utilization).
		Msg("usage")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(lvl)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
