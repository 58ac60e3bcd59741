package main

import (
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/robosim/armcore/examplestore"
	"github.com/robosim/armcore/referenceframe"
)

func TestExampleStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples.json")
	store := examplestore.NewMemoryStore()
	store.Add(examplestore.Example{
		ObjectType:     "ball",
		ObjectPosition: r3.Vector{X: 0.2, Y: 0.03},
		JointSequence: []examplestore.SequenceStep{
			{JointAngles: referenceframe.JointAngles{Shoulder: 10}},
			{JointAngles: referenceframe.JointAngles{Shoulder: 20}},
			{JointAngles: referenceframe.JointAngles{Shoulder: 0}},
		},
	})
	test.That(t, store.SaveFile(path), test.ShouldBeNil)

	test.That(t, realMain([]string{"cmd-pick", "examples", "stats", "--file", path}), test.ShouldBeNil)
	test.That(t, realMain([]string{"cmd-pick", "examples", "stats"}), test.ShouldNotBeNil)
}

func TestPlanRejectsUnknownType(t *testing.T) {
	err := realMain([]string{"cmd-pick", "plan", "--x", "0.2", "--y", "0.02", "--type", "pyramid"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pyramid")
}
