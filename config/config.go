// Package config defines the armcore settings file and builds the configured components from it.
package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/robosim/armcore/examplestore"
	"github.com/robosim/armcore/kinematics"
	"github.com/robosim/armcore/logging"
	"github.com/robosim/armcore/motionplan/bridge"
	"github.com/robosim/armcore/motionplan/grasp"
	"github.com/robosim/armcore/motionplan/ik"
	"github.com/robosim/armcore/motionplan/trajectory"
	"github.com/robosim/armcore/referenceframe"
)

// Config is the full set of armcore settings. Every section is optional.
type Config struct {
	IK        *ik.Config                    `json:"ik,omitempty"`
	Planner   *grasp.Options                `json:"planner,omitempty"`
	Validator *trajectory.ConstraintsConfig `json:"validator,omitempty"`
	Bridge    *bridge.Config                `json:"bridge,omitempty"`
	// ExamplesFile is a verified example store to load for the planner's fallback.
	ExamplesFile string `json:"examples_file,omitempty"`
	// ChainFile replaces the built in SO-101 chain.
	ChainFile string `json:"chain_file,omitempty"`
	// ChainName overrides the name recorded in ChainFile.
	ChainName string `json:"chain_name,omitempty"`
}

// Validate ensures all parts of the config are valid. Every section is checked and all failures
// are returned together.
func (c *Config) Validate(path string) error {
	if c == nil {
		return nil
	}
	var err error
	err = multierr.Append(err, c.IK.Validate(path+".ik"))
	err = multierr.Append(err, c.Planner.Validate(path+".planner"))
	err = multierr.Append(err, c.Validator.Validate(path+".validator"))
	err = multierr.Append(err, c.Bridge.Validate(path+".bridge"))
	if c.ChainName != "" && c.ChainFile == "" {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "chain_file"))
	}
	return err
}

// Kinematics returns the configured chain, the SO-101 when no chain file is set.
func (c *Config) Kinematics() (*kinematics.Chain, error) {
	if c.ChainFile == "" {
		return kinematics.SO101(), nil
	}
	return kinematics.ParseChainFile(c.ChainFile, c.ChainName)
}

// JointLimits returns the limits of the configured chain.
func (c *Config) JointLimits() (referenceframe.JointLimits, error) {
	kin, err := c.Kinematics()
	if err != nil {
		return nil, err
	}
	return kin.Limits(), nil
}

// NewSolver builds the configured ik solver.
func (c *Config) NewSolver(logger logging.Logger) (*ik.Solver, error) {
	kin, err := c.Kinematics()
	if err != nil {
		return nil, err
	}
	return ik.NewSolver(kin, logger, ik.WithConfig(c.IK), ik.WithJointLimits(kin.Limits())), nil
}

// NewBridge builds a bridge over the configured solver. reg may be nil.
func (c *Config) NewBridge(logger logging.Logger, reg prometheus.Registerer) (*bridge.Bridge, error) {
	solver, err := c.NewSolver(logger.Sublogger("ik"))
	if err != nil {
		return nil, err
	}
	return bridge.New(solver, logger.Sublogger("ik.bridge"), bridge.WithConfig(c.Bridge), bridge.WithRegisterer(reg))
}

// NewExampleStore loads ExamplesFile. It returns nil without error when no file is configured.
func (c *Config) NewExampleStore() (*examplestore.MemoryStore, error) {
	if c.ExamplesFile == "" {
		return nil, nil
	}
	return examplestore.NewFromFile(c.ExamplesFile)
}

// NewPlanner builds a planner that sends its solves through solver.
func (c *Config) NewPlanner(solver grasp.Solver, logger logging.Logger) (*grasp.Planner, error) {
	kin, err := c.Kinematics()
	if err != nil {
		return nil, err
	}
	opts := []grasp.PlannerOption{
		grasp.WithOptions(c.Planner),
		grasp.WithKinematics(kin),
		grasp.WithJointLimits(kin.Limits()),
	}
	store, err := c.NewExampleStore()
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, grasp.WithExampleStore(store))
	}
	return grasp.NewPlanner(solver, logger, opts...), nil
}

// Constraints returns the validator constraints, using the chain's joint limits.
func (c *Config) Constraints() (trajectory.Constraints, error) {
	limits, err := c.JointLimits()
	if err != nil {
		return trajectory.Constraints{}, err
	}
	cons := c.Validator.Constraints()
	cons.Limits = limits
	return cons, nil
}
