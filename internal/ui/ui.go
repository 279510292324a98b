package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/nstepura/examly/internal/store"
)

// errQuit ends the run loop cleanly.
var errQuit = errors.New("quit")

// UI owns the screen loop: it resolves navigation through the route guard,
// renders the active screen and dispatches user intents into the stores.
type UI struct {
	auth  *store.AuthStore
	exams *store.ExamStore
	in    *input
	out   io.Writer
	log   *zap.Logger

	// tickInterval is the countdown period; tests shrink it.
	tickInterval time.Duration
}

// New constructs the UI over the given streams.
func New(auth *store.AuthStore, exams *store.ExamStore, r io.Reader, w io.Writer, log *zap.Logger) *UI {
	if log == nil {
		log = zap.NewNop()
	}
	return &UI{
		auth:         auth,
		exams:        exams,
		in:           newInput(r),
		out:          w,
		log:          log,
		tickInterval: time.Second,
	}
}

// Run drives the screen loop until quit, EOF or ctx cancellation. A failed
// store call never ends the loop; only the user can.
func (u *UI) Run(ctx context.Context) error {
	u.printf("examly - exam platform client\n")

	screen := ScreenDashboard
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// The guard applies to every render, not just the first.
		screen = Resolve(screen, u.auth.Authenticated(), u.exams.HasSession(), u.exams.HasResult())

		var next Screen
		var err error
		switch screen {
		case ScreenLogin:
			next, err = u.loginScreen(ctx)
		case ScreenRegister:
			next, err = u.registerScreen(ctx)
		case ScreenDashboard:
			next, err = u.dashboardScreen(ctx)
		case ScreenExam:
			next, err = u.examScreen(ctx)
		case ScreenResults:
			next, err = u.resultsScreen(ctx)
		case ScreenHistory:
			next, err = u.historyScreen(ctx)
		default:
			next = ScreenDashboard
		}

		switch {
		case errors.Is(err, errQuit), errors.Is(err, io.EOF):
			u.printf("bye\n")
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			// Screen-level failures are already surfaced; keep going.
			u.log.Warn("screen error", zap.String("screen", string(screen)), zap.Error(err))
		}
		screen = next
	}
}

func (u *UI) printf(format string, args ...any) {
	fmt.Fprintf(u.out, format, args...)
}

// prompt prints the prompt text and reads one trimmed line.
func (u *UI) prompt(ctx context.Context, text string) (string, error) {
	u.printf("%s", text)
	return u.in.readLine(ctx, nil)
}

// promptSecret reads without echo when attached to a terminal.
func (u *UI) promptSecret(ctx context.Context, text string) (string, error) {
	u.printf("%s", text)
	line, err := u.in.readSecret(ctx)
	u.printf("\n")
	return line, err
}

// showError prints a store error slot, if set, and clears it.
func (u *UI) showError(msg string, clear func()) {
	if msg == "" {
		return
	}
	u.printf("! %s\n", msg)
	clear()
}
