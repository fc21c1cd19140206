package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EPC-MSU/EPCore/internal/board"
	"github.com/EPC-MSU/EPCore/internal/config"
	"github.com/EPC-MSU/EPCore/internal/measure"
	"github.com/EPC-MSU/EPCore/internal/options"
	"github.com/EPC-MSU/EPCore/internal/plan"
	"github.com/EPC-MSU/EPCore/internal/store"
	"github.com/EPC-MSU/EPCore/internal/ufiv"
)

// MeasureOptions holds flags for the measure command.
type MeasureOptions struct {
	*RootOptions
	Out       string
	Database  string
	Reference bool
	Frequency string
	Voltage   string
	Sensitive string

	Measurer    string
	Multiplexer string
}

// PinScore is the comparison result of one pin against its reference.
type PinScore struct {
	Pin   string  `json:"pin"`
	Score float64 `json:"score"`
}

// MeasureResult is the success payload of the measure command.
type MeasureResult struct {
	Board     string                       `json:"board"`
	Output    string                       `json:"output"`
	BoardID   string                       `json:"board_id"`
	SessionID string                       `json:"session_id"`
	Reference bool                         `json:"reference"`
	Pins      int                          `json:"pins"`
	Captures  int                          `json:"captures"`
	Options   map[options.Parameter]string `json:"options"`
	Scores    []PinScore                   `json:"scores,omitempty"`
}

func (r MeasureResult) String() string {
	role := "test"
	if r.Reference {
		role = "reference"
	}
	s := fmt.Sprintf("✓ Measured %d pins (%s) from %s, saved to %s\n  session %s, %d captures",
		r.Pins, role, r.Board, r.Output, r.SessionID, r.Captures)
	for _, sc := range r.Scores {
		s += fmt.Sprintf("\n  %s score %.3f", sc.Pin, sc.Score)
	}
	return s
}

// NewMeasureCommand creates the measure command.
func NewMeasureCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MeasureOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "measure <board>",
		Short: "Walk a board's test plan with the configured devices",
		Long: `Measure loads a universal board document, applies the selected
measurement presets to every configured measurer and captures one curve
per pin in plan order. Curves are recorded in the database and the
updated board is written to --out.

Pins that already have a reference curve are scored against it unless
--reference is given, in which case the new curves become references.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeasure(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "destination for the measured board")
	cmd.Flags().StringVar(&opts.Database, "db", "", "database file (overrides the configuration)")
	cmd.Flags().BoolVar(&opts.Reference, "reference", false, "store captured curves as references")
	cmd.Flags().StringVar(&opts.Frequency, "frequency", "", "frequency preset name")
	cmd.Flags().StringVar(&opts.Voltage, "voltage", "", "voltage preset name")
	cmd.Flags().StringVar(&opts.Sensitive, "sensitive", "", "sensitivity preset name")
	cmd.Flags().StringVar(&opts.Measurer, "measurer", "", "measurer whose curve is kept on the board (default: smallest id)")
	cmd.Flags().StringVar(&opts.Multiplexer, "multiplexer", "", "route channels through this multiplexer only")

	return cmd
}

func runMeasure(cmd *cobra.Command, opts *MeasureOptions, boardPath string) error {
	formatter := newFormatter(cmd, opts.RootOptions)
	if opts.Out == "" {
		return commandError(formatter, CodeGeneric, "--out is required", nil)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return commandError(formatter, CodeConfig, "invalid configuration", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, cfg.Level())
	defer func() { _ = logger.Sync() }()

	doc := options.Default()
	if cfg.Options != "" {
		if doc, err = options.Load(cfg.Options); err != nil {
			return commandError(formatter, CodeConfig, "invalid options document", err)
		}
	}
	product := options.NewProduct(doc, logger)

	b, err := ufiv.Load(boardPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return commandError(formatter, CodeNotFound, "cannot read board", err)
		}
		return report(formatter, "invalid board", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	sys := cfg.NewSystem(logger, measure.WithNoiseAmplitude(product.NoiseAmplitude))
	defer func() {
		if err := sys.DisconnectAll(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("disconnect failed", zap.Error(err))
		}
	}()

	settings, err := applyPresets(ctx, sys, product, opts)
	if err != nil {
		return report(formatter, "cannot apply settings", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return commandError(formatter, CodeGeneric, "cannot open database", err)
	}
	defer st.Close()

	boardID, err := st.SaveBoard(ctx, b)
	if err != nil {
		return report(formatter, "cannot save board", err)
	}
	session, err := st.BeginSession(ctx, boardID, settings, opts.Reference)
	if err != nil {
		return report(formatter, "cannot start session", err)
	}
	logger.Info("session started",
		zap.String("board_id", boardID),
		zap.String("session_id", session.ID),
		zap.Bool("reference", opts.Reference))

	noiseV, noiseA := product.NoiseAmplitude(settings)
	p := plan.New(b)
	p.AssignMeasurer(opts.Measurer)
	p.AssignMultiplexer(opts.Multiplexer)
	w := &walker{
		plan:       p,
		rec:        &recorder{sys: sys},
		store:      st,
		session:    session.ID,
		reference:  opts.Reference,
		comparator: measure.NewComparator(noiseV, noiseA),
		logger:     logger,
	}
	if err := w.run(ctx); err != nil {
		return report(formatter, "measurement failed", err)
	}

	if err := st.UpdateBoard(ctx, boardID, b); err != nil {
		return report(formatter, "cannot save board", err)
	}
	if err := ufiv.Save(opts.Out, b); err != nil {
		return commandError(formatter, CodeWriteFailed, "cannot write board", err)
	}

	return formatter.Success(MeasureResult{
		Board:     boardPath,
		Output:    opts.Out,
		BoardID:   boardID,
		SessionID: session.ID,
		Reference: opts.Reference,
		Pins:      w.plan.Len(),
		Captures:  w.captures,
		Options:   product.CurrentOptions(settings),
		Scores:    w.scores,
	})
}

// applyPresets applies the preset flags on top of the devices' current
// settings and returns the settings in effect.
func applyPresets(ctx context.Context, sys *measure.System, product *options.Product, opts *MeasureOptions) (board.MeasureSettings, error) {
	current, err := sys.ReadSettings(ctx)
	if err != nil {
		return board.MeasureSettings{}, err
	}
	selected := make(map[options.Parameter]string)
	for param, name := range map[options.Parameter]string{
		options.Frequency: opts.Frequency,
		options.Voltage:   opts.Voltage,
		options.Sensitive: opts.Sensitive,
	} {
		if name != "" {
			selected[param] = name
		}
	}
	settings, err := product.SettingsFromOptions(selected, current)
	if err != nil {
		return board.MeasureSettings{}, err
	}
	if err := sys.ApplySettings(ctx, settings); err != nil {
		return board.MeasureSettings{}, err
	}
	return settings, nil
}

// recorder passes capture calls through to the system and remembers the
// selected output and the curves of every device for the store.
type recorder struct {
	sys    *measure.System
	out    *board.MultiplexerOutput
	curves map[string]board.IVCurve
}

func (r *recorder) SetActiveChannel(ctx context.Context, out board.MultiplexerOutput) error {
	if err := r.sys.SetActiveChannel(ctx, out); err != nil {
		return err
	}
	r.out = &out
	return nil
}

func (r *recorder) SetActiveChannelOn(ctx context.Context, mux string, out board.MultiplexerOutput) error {
	if err := r.sys.SetActiveChannelOn(ctx, mux, out); err != nil {
		return err
	}
	r.out = &out
	return nil
}

// CaptureAll arms manual-trigger measurers before each capture, so every
// pin gets a fresh measurement from them too.
func (r *recorder) CaptureAll(ctx context.Context) (map[string]board.IVCurve, error) {
	if err := r.sys.TriggerManual(ctx); err != nil {
		return nil, err
	}
	curves, err := r.sys.CaptureAll(ctx)
	if err != nil {
		return nil, err
	}
	r.curves = curves
	return curves, nil
}

func (r *recorder) reset() {
	r.out = nil
	r.curves = nil
}

// walker measures every pin of a plan in order.
type walker struct {
	plan       *plan.Plan
	rec        *recorder
	store      *store.Store
	session    string
	reference  bool
	comparator *measure.Comparator
	logger     *zap.Logger

	captures int
	scores   []PinScore
}

func (w *walker) run(ctx context.Context) error {
	if w.plan.Len() == 0 {
		return plan.ErrEmptyPlan
	}
	for {
		if err := w.measureCurrent(ctx); err != nil {
			return err
		}
		err := w.plan.Next()
		if errors.Is(err, plan.ErrBoundary) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (w *walker) measureCurrent(ctx context.Context) error {
	ref, ok := w.plan.Board().Locate(w.plan.Index())
	if !ok {
		return &plan.OutOfRangeError{Index: w.plan.Index(), Len: w.plan.Len()}
	}
	w.rec.reset()
	if _, err := w.plan.Measure(ctx, w.rec); err != nil {
		return fmt.Errorf("%s: %w", ref, err)
	}

	if w.reference {
		if err := w.plan.MarkLastAsReference(); err != nil {
			return err
		}
	} else {
		if err := w.plan.MarkLastAsTest(); err != nil {
			return err
		}
		pin, err := w.plan.Current()
		if err != nil {
			return err
		}
		if _, hasRef := pin.Reference(); hasRef {
			score, err := w.comparator.Score(pin)
			if err != nil {
				return fmt.Errorf("%s: %w", ref, err)
			}
			w.scores = append(w.scores, PinScore{Pin: ref.String(), Score: score})
		}
	}

	seq, err := w.store.RecordCaptures(ctx, w.session, ref, w.rec.out, w.rec.curves)
	if err != nil {
		return err
	}
	w.captures += len(w.rec.curves)
	w.logger.Debug("pin measured",
		zap.Stringer("pin", ref),
		zap.Int64("seq", seq),
		zap.Int("devices", len(w.rec.curves)))
	return nil
}
