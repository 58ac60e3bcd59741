// Package main plans picks and sweeps the ik workspace from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/robosim/armcore/config"
	"github.com/robosim/armcore/examplestore"
	"github.com/robosim/armcore/logging"
	"github.com/robosim/armcore/motionplan/bridge"
	"github.com/robosim/armcore/motionplan/grasp"
	"github.com/robosim/armcore/motionplan/ik"
	"github.com/robosim/armcore/motionplan/trajectory"
	"github.com/robosim/armcore/utils"
)

const (
	flagConfig     = "config"
	flagDebug      = "debug"
	flagLogFile    = "log-file"
	flagX          = "x"
	flagY          = "y"
	flagZ          = "z"
	flagType       = "type"
	flagScale      = "scale"
	flagValidate   = "validate"
	flagTiming     = "timing"
	flagJSON       = "json"
	flagHorizontal = "horizontal"
	flagBase       = "base"
	flagWrist      = "wrist"
	flagReachMin   = "reach-min"
	flagReachMax   = "reach-max"
	flagReachStep  = "reach-step"
	flagHeightMax  = "height-max"
	flagHeightStep = "height-step"
	flagBearings   = "bearings"
	flagSuccess    = "success-error"
	flagFile       = "file"
)

func main() {
	if err := realMain(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	logger logging.Logger
	cfg    *config.Config
}

func realMain(args []string) error {
	a := &app{}
	targetFlags := []cli.Flag{
		&cli.Float64Flag{Name: flagX, Usage: "target X in meters, forward", Required: true},
		&cli.Float64Flag{Name: flagY, Usage: "target Y in meters, up", Required: true},
		&cli.Float64Flag{Name: flagZ, Usage: "target Z in meters, lateral"},
	}
	cliApp := &cli.App{
		Name:  "cmd-pick",
		Usage: "plan picks for the SO-101 arm",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated at 10 MB",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				a.logger = logging.NewDebugLogger("cmd-pick")
			} else {
				a.logger = logging.NewLogger("cmd-pick")
			}
			if path := c.String(flagLogFile); path != "" {
				a.logger.AddAppender(logging.NewRotatingFileAppender(path, 10))
			}
			logging.ReplaceGlobal(a.logger)
			a.cfg = &config.Config{}
			if path := c.String(flagConfig); path != "" {
				cfg, err := config.Read(path)
				if err != nil {
					return err
				}
				a.cfg = cfg
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "plan",
				Usage: "plan a pick for one object",
				Flags: append(append([]cli.Flag{}, targetFlags...),
					&cli.StringFlag{Name: flagType, Value: string(grasp.Cube), Usage: "cube, cylinder or ball"},
					&cli.Float64Flag{Name: flagScale, Value: grasp.DefaultScale, Usage: "object scale in meters"},
					&cli.BoolFlag{Name: flagValidate, Usage: "validate the resulting trajectory"},
					&cli.BoolFlag{Name: flagTiming, Usage: "print planner phase timings"},
					&cli.BoolFlag{Name: flagJSON, Usage: "print the plan as JSON"},
				),
				Action: a.planAction,
			},
			{
				Name:  "solve",
				Usage: "run one ik solve",
				Flags: append(append([]cli.Flag{}, targetFlags...),
					&cli.BoolFlag{Name: flagHorizontal, Usage: "prefer a horizontal wrist"},
					&cli.Float64Flag{Name: flagBase, Usage: "pin the base angle in degrees"},
					&cli.Float64Flag{Name: flagWrist, Usage: "pin the wrist angle in degrees"},
				),
				Action: a.solveAction,
			},
			{
				Name:  "sweep",
				Usage: "solve a grid of workspace targets and summarize the errors",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: flagReachMin, Value: 0.10},
					&cli.Float64Flag{Name: flagReachMax, Value: 0.28},
					&cli.Float64Flag{Name: flagReachStep, Value: 0.06},
					&cli.Float64Flag{Name: flagHeightMax, Value: 0.35},
					&cli.Float64Flag{Name: flagHeightStep, Value: 0.07},
					&cli.Float64SliceFlag{Name: flagBearings, Value: cli.NewFloat64Slice(0, 30, -30)},
					&cli.Float64Flag{Name: flagSuccess, Value: 0.03, Usage: "error in meters counted as a success"},
				},
				Action: a.sweepAction,
			},
			{
				Name:  "examples",
				Usage: "inspect a verified example store",
				Subcommands: []*cli.Command{
					{
						Name:  "stats",
						Usage: "print coverage statistics",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: flagFile, Usage: "example store `FILE`, defaults to the configured one"},
						},
						Action: a.exampleStatsAction,
					},
				},
			},
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	return cliApp.RunContext(ctx, args)
}

func target(c *cli.Context) r3.Vector {
	return r3.Vector{X: c.Float64(flagX), Y: c.Float64(flagY), Z: c.Float64(flagZ)}
}

func (a *app) newBridge() (*bridge.Bridge, error) {
	return a.cfg.NewBridge(a.logger, nil)
}

func (a *app) planAction(c *cli.Context) error {
	objType, err := grasp.ParseObjectType(c.String(flagType))
	if err != nil {
		return err
	}
	b, err := a.newBridge()
	if err != nil {
		return err
	}
	defer b.Terminate()

	planner, err := a.cfg.NewPlanner(grasp.NewBridgeSolver(b), a.logger.Sublogger("grasp"))
	if err != nil {
		return err
	}
	plan, err := planner.Plan(c.Context, grasp.Object{Position: target(c), Type: objType, Scale: c.Float64(flagScale)})
	if err != nil {
		return err
	}

	if c.Bool(flagJSON) {
		out, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encoding plan")
		}
		fmt.Fprintln(c.App.Writer, string(out))
	} else {
		fmt.Fprintln(c.App.Writer, plan.Table())
	}
	if c.Bool(flagTiming) {
		plan.Meta.OutputTiming(c.App.Writer)
	}
	if !c.Bool(flagValidate) {
		return nil
	}

	cons, err := a.cfg.Constraints()
	if err != nil {
		return err
	}
	res := trajectory.Validate(plan.Trajectory(0), cons)
	fmt.Fprintln(c.App.Writer, validationTable(res))
	if !res.Valid {
		return errors.Errorf("trajectory has %d errors", len(res.Errors))
	}
	return nil
}

func validationTable(res *trajectory.Result) string {
	t := table.NewWriter()
	t.SetTitle("valid: %v, %d frames over %.0f ms", res.Valid, res.Stats.FrameCount, res.Stats.DurationMs)
	t.AppendHeader(table.Row{"Level", "Code", "Frame", "Joint", "Message"})
	for _, i := range res.Errors {
		t.AppendRow(table.Row{"error", i.Code, i.Frame, i.Joint, i.Message})
	}
	for _, i := range res.Warnings {
		t.AppendRow(table.Row{"warning", i.Code, i.Frame, i.Joint, i.Message})
	}
	return t.Render()
}

func (a *app) solveAction(c *cli.Context) error {
	b, err := a.newBridge()
	if err != nil {
		return err
	}
	defer b.Terminate()

	opts := ik.Options{PreferHorizontal: c.Bool(flagHorizontal)}
	if c.IsSet(flagBase) {
		opts.FixedBase = ik.Angle(c.Float64(flagBase))
	}
	if c.IsSet(flagWrist) {
		opts.FixedWrist = ik.Angle(c.Float64(flagWrist))
	}
	goal := target(c)
	res, err := b.SolveSync(c.Context, goal, opts)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetTitle("target (%.3f, %.3f, %.3f)", goal.X, goal.Y, goal.Z)
	t.AppendRows([]table.Row{
		{"joints", res.Joints.String()},
		{"position", fmt.Sprintf("(%.4f, %.4f, %.4f)", res.Position.X, res.Position.Y, res.Position.Z)},
		{"error", fmt.Sprintf("%.5f m", res.Error)},
		{"cost", fmt.Sprintf("%.5f", res.Cost)},
		{"seed", res.Seed},
		{"evaluations", res.Evaluations},
	})
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

func (a *app) sweepAction(c *cli.Context) error {
	b, err := a.newBridge()
	if err != nil {
		return err
	}
	defer b.Terminate()

	var targets []r3.Vector
	for reach := c.Float64(flagReachMin); reach <= c.Float64(flagReachMax)+1e-9; reach += c.Float64(flagReachStep) {
		for height := 0.0; height <= c.Float64(flagHeightMax)+1e-9; height += c.Float64(flagHeightStep) {
			for _, bearing := range c.Float64Slice(flagBearings) {
				rad := utils.DegToRad(bearing)
				targets = append(targets, r3.Vector{X: reach * math.Cos(rad), Y: height, Z: reach * math.Sin(rad)})
			}
		}
	}
	if len(targets) == 0 {
		return errors.New("sweep grid is empty")
	}

	// Queue everything up front; the bridge works through it on its single worker.
	futures := make([]*bridge.Future, 0, len(targets))
	for _, tgt := range targets {
		futures = append(futures, b.Solve(c.Context, tgt, ik.Options{}))
	}
	errs := make([]float64, len(futures))
	group, ctx := errgroup.WithContext(c.Context)
	for i, f := range futures {
		group.Go(func() error {
			res, err := f.Await(ctx)
			if err != nil {
				return err
			}
			errs[i] = res.Error
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	success := 0
	for _, e := range errs {
		if e < c.Float64(flagSuccess) {
			success++
		}
	}

	data := stats.Float64Data(errs)
	mean, err := data.Mean()
	if err != nil {
		return err
	}
	median, err := data.Median()
	if err != nil {
		return err
	}
	p90, err := data.Percentile(90)
	if err != nil {
		return err
	}
	maxErr, err := data.Max()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetTitle("%d targets", len(targets))
	t.AppendHeader(table.Row{"Mean", "Median", "P90", "Max", "Success"})
	t.AppendRow(table.Row{
		fmt.Sprintf("%.4f", mean),
		fmt.Sprintf("%.4f", median),
		fmt.Sprintf("%.4f", p90),
		fmt.Sprintf("%.4f", maxErr),
		fmt.Sprintf("%.1f%%", 100*float64(success)/float64(len(targets))),
	})
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

func (a *app) exampleStatsAction(c *cli.Context) error {
	path := c.String(flagFile)
	if path == "" {
		path = a.cfg.ExamplesFile
	}
	if path == "" {
		return errors.New("no example store given, pass --file or set examples_file in the config")
	}
	store, err := examplestore.NewFromFile(path)
	if err != nil {
		return err
	}
	st := store.Stats()

	types := table.NewWriter()
	types.SetTitle("%d examples", st.Total)
	types.AppendHeader(table.Row{"Type", "Count"})
	for _, name := range examplestore.ObjectTypes {
		types.AppendRow(table.Row{name, st.ByType[name]})
	}
	fmt.Fprintln(c.App.Writer, types.Render())

	heat := table.NewWriter()
	heat.SetTitle("coverage, %.0f cm cells", examplestore.HeatmapGridSize*100)
	heat.AppendHeader(table.Row{"X", "Z", "Count"})
	for _, cell := range st.Heatmap {
		heat.AppendRow(table.Row{fmt.Sprintf("%.2f", cell.X), fmt.Sprintf("%.2f", cell.Z), cell.Count})
	}
	fmt.Fprintln(c.App.Writer, heat.Render())
	return nil
}
